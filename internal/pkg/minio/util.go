package minio

import (
	"Zalor/internal/api/config"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
)

// Storage 附件对象存储
type Storage struct{}

func NewStorage() *Storage {
	return &Storage{}
}

// UploadFile 上传本地暂存文件，返回公共访问 URL
func (s *Storage) UploadFile(ctx context.Context, objectName, filePath, contentType string) (string, error) {
	if Client == nil {
		return "", fmt.Errorf("minio client is not initialized")
	}

	info, err := Client.FPutObject(ctx, MainBucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return GetPublicURL(info.Key), nil
}

// DeleteFile 删除MinIO中的文件
func (s *Storage) DeleteFile(ctx context.Context, objectName string) error {
	if Client == nil {
		return fmt.Errorf("minio client is not initialized")
	}

	err := Client.RemoveObject(ctx, MainBucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// GetPublicURL 获取文件的公共访问URL
func GetPublicURL(objectName string) string {
	cfg := config.Cfg.MinIO

	protocol := "http"
	if cfg.ExternalUseSSL {
		protocol = "https"
	}

	return fmt.Sprintf("%s://%s/%s/%s", protocol, cfg.ExternalEndpoint, cfg.MainBucket, objectName)
}
