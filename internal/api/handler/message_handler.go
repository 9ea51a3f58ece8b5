package handler

import (
	"Zalor/internal/api/dto"
	"Zalor/internal/pkg/consts"
	"Zalor/internal/pkg/response"
	"Zalor/internal/pkg/util"
	"Zalor/internal/service"
	"errors"
	log "log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 附件之外的表单字段预留空间
const formOverhead = 1 << 20

type MessageHandler struct {
	messageService service.MessageService
	stagingDir     string
	maxUploadSize  int64
}

func NewMessageHandler(messageService service.MessageService, stagingDir string, maxUploadSize int64) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		stagingDir:     stagingDir,
		maxUploadSize:  maxUploadSize,
	}
}

// SendMessage 发送消息，multipart 表单，可选 file 附件
func (s *MessageHandler) SendMessage(c *gin.Context) {
	if s.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadSize+formOverhead)
	}

	var req dto.SendMessageReq
	if err := c.ShouldBind(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, service.ErrFileTooLarge)
			return
		}
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := util.ValidateDTO(&req); err != nil {
		response.Error(c, err)
		return
	}

	attachment, err := s.stage(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	senderID := c.GetUint64(consts.CtxUserID)
	res, err := s.messageService.SendMessage(c.Request.Context(), senderID, &req, attachment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessCreated(c, res)
}

// stage 将上传文件落到暂存目录，未上传文件时返回 nil
func (s *MessageHandler) stage(c *gin.Context) (*dto.Attachment, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, service.ErrParamInvalid
	}
	if s.maxUploadSize > 0 && fileHeader.Size > s.maxUploadSize {
		return nil, service.ErrFileTooLarge
	}

	dst := filepath.Join(s.stagingDir, uuid.NewString()+filepath.Ext(fileHeader.Filename))
	if err = c.SaveUploadedFile(fileHeader, dst); err != nil {
		_ = os.Remove(dst)
		log.ErrorContext(c.Request.Context(), "stage upload failed", "err", err)
		return nil, service.UnExpectedError
	}
	return newAttachment(dst, fileHeader), nil
}

func newAttachment(path string, fileHeader *multipart.FileHeader) *dto.Attachment {
	return &dto.Attachment{
		Path:     path,
		FileName: filepath.Base(fileHeader.Filename),
		Size:     fileHeader.Size,
	}
}

// GetHistory 获取与某用户或某群的全部消息
func (s *MessageHandler) GetHistory(c *gin.Context) {
	userID := c.GetUint64(consts.CtxUserID)
	isGroup := c.Query("isGroup") == "true"

	res, err := s.messageService.GetHistory(c.Request.Context(), userID, c.Param("receiverId"), isGroup)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MarkAsRead 标记会话已读，isGroup 可放在 query 或表单中
func (s *MessageHandler) MarkAsRead(c *gin.Context) {
	userID := c.GetUint64(consts.CtxUserID)
	isGroup := c.Query("isGroup") == "true" || c.PostForm("isGroup") == "true"

	count, err := s.messageService.MarkAsRead(c.Request.Context(), userID, c.Param("receiverId"), isGroup)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.MarkReadResult{Count: count})
}

// RecallMessage 撤回消息
func (s *MessageHandler) RecallMessage(c *gin.Context) {
	userID := c.GetUint64(consts.CtxUserID)

	if err := s.messageService.RecallMessage(c.Request.Context(), userID, c.Param("messageId")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// EditMessage 编辑消息内容
func (s *MessageHandler) EditMessage(c *gin.Context) {
	var req dto.EditMessageReq
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := util.ValidateDTO(&req); err != nil {
		response.Error(c, err)
		return
	}

	userID := c.GetUint64(consts.CtxUserID)
	res, err := s.messageService.EditMessage(c.Request.Context(), userID, c.Param("messageId"), req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
