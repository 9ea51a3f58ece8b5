package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid       = errors.New("参数错误")
	ErrMessageEmpty       = errors.New("消息内容不能为空")
	ErrReceiverInvalid    = errors.New("接收者无效")
	ErrMessageIDInvalid   = errors.New("消息 ID 无效")
	ErrFileNotSupported   = errors.New("不支持的文件类型")
	ErrFileTooLarge       = errors.New("文件大小超过限制")
	ErrMessageRecalled    = errors.New("消息已撤回")
	ErrMessageNotEditable = errors.New("该类型消息不支持编辑")
	ErrReceiverNotFound   = errors.New("接收者不存在")
	ErrMessageNotFound    = errors.New("消息不存在")
	ErrNotMessageSender   = errors.New("只能操作自己发送的消息")
	UnauthorizedError     = errors.New("未登录或登录已过期")
	UnExpectedError       = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:       BadRequest,
	ErrMessageEmpty:       BadRequest,
	ErrReceiverInvalid:    BadRequest,
	ErrMessageIDInvalid:   BadRequest,
	ErrFileNotSupported:   BadRequest,
	ErrFileTooLarge:       BadRequest,
	ErrMessageRecalled:    BadRequest,
	ErrMessageNotEditable: BadRequest,
	ErrReceiverNotFound:   NotFound,
	ErrMessageNotFound:    NotFound,
	ErrNotMessageSender:   Forbidden,
	UnauthorizedError:     Unauthorized,
	UnExpectedError:       InternalServerError,
}

// Resolve 按 errors.Is 匹配业务错误，返回对应状态码与对外错误
func Resolve(err error) (int, error, bool) {
	for target, code := range ErrorMap {
		if errors.Is(err, target) {
			return code, target, true
		}
	}
	return InternalServerError, UnExpectedError, false
}
