package util

import (
	"Zalor/internal/pkg/consts"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var ErrMimeNotAllowed = errors.New("mime type not allowed")

// 允许上传的附件类型
var allowedMimes = []string{
	"image/jpeg",
	"image/png",
	"video/mp4",
	"video/quicktime",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

// DetectAttachment 嗅探暂存文件并校验白名单，返回规范化的 MIME 与扩展名
func DetectAttachment(filePath string) (string, string, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return "", "", err
	}
	for _, allowed := range allowedMimes {
		if mtype.Is(allowed) {
			return allowed, mtype.Extension(), nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrMimeNotAllowed, mtype.String())
}

// MessageTypeOf 根据 MIME 大类确定消息类型：image、video，其余为 file
func MessageTypeOf(mime string) string {
	switch {
	case strings.HasPrefix(mime, consts.MimePrefixImage):
		return consts.MessageTypeImage
	case strings.HasPrefix(mime, consts.MimePrefixVideo):
		return consts.MessageTypeVideo
	default:
		return consts.MessageTypeFile
	}
}

// ObjectName 对象存储路径：zalor/<type>s/YYYY/MM/DD/<uuid><ext>
func ObjectName(msgType, fileName, fallbackExt string, now time.Time) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		ext = fallbackExt
	}
	return fmt.Sprintf("%s/%ss/%s%s%s", consts.ObjectFolder, msgType, now.Format("2006/01/02/"), uuid.NewString(), ext)
}
