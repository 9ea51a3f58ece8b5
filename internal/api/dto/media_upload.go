package dto

// Attachment 已落到暂存目录的上传文件
type Attachment struct {
	Path     string // 暂存文件路径，处理结束后删除
	FileName string // 客户端上传时的原始文件名
	Size     int64
}
