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
	ServiceUnavailable  = 503
)

var (
	ErrParamInvalid        = errors.New("参数错误")
	ErrEmptyMessage        = errors.New("消息内容不能为空")
	ErrInvalidCursor       = errors.New("分页游标无效")
	ErrInvalidLimit        = errors.New("分页大小应在 1 到 100 之间")
	ErrInvalidScope        = errors.New("删除范围无效")
	ErrSelfConversation    = errors.New("不能与自己建立会话")
	ErrSelfCall            = errors.New("不能呼叫自己")
	ErrInvalidCallType     = errors.New("通话类型无效")
	ErrMessageNotText      = errors.New("只能编辑文本消息")
	ErrFileNotSupported    = errors.New("不支持的文件类型")
	ErrFileTooLarge        = errors.New("文件过大")
	ErrUserNotFound        = errors.New("用户不存在")
	ErrThreadNotFound      = errors.New("会话不存在")
	ErrMessageNotFound     = errors.New("消息不存在")
	ErrReplyNotFound       = errors.New("引用的消息不存在")
	ErrCallNotFound        = errors.New("通话不存在")
	ErrContentNotFound     = errors.New("分享的内容不存在或已删除")
	ErrMediaNotFound       = errors.New("媒体不存在或链接已过期")
	ErrNotParticipant      = errors.New("不是会话成员")
	ErrThreadBlocked       = errors.New("会话已被屏蔽")
	ErrNotSender           = errors.New("只有发送者可以执行此操作")
	ErrEditWindowExpired   = errors.New("消息已超过可编辑时间")
	ErrDeleteWindowExpired = errors.New("消息已超过可撤回时间")
	ErrCallNotReceiver     = errors.New("只有被叫方可以执行此操作")
	ErrNotBlocker          = errors.New("只有屏蔽者可以解除屏蔽")
	ErrCallStateInvalid    = errors.New("通话状态不允许此操作")
	ErrStoreUnavailable    = errors.New("服务暂时不可用")
	UnauthorizedError      = errors.New("权限不足")
	UnExpectedError        = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:        BadRequest,
	ErrEmptyMessage:        BadRequest,
	ErrInvalidCursor:       BadRequest,
	ErrInvalidLimit:        BadRequest,
	ErrInvalidScope:        BadRequest,
	ErrSelfConversation:    BadRequest,
	ErrSelfCall:            BadRequest,
	ErrInvalidCallType:     BadRequest,
	ErrMessageNotText:      BadRequest,
	ErrFileNotSupported:    BadRequest,
	ErrFileTooLarge:        BadRequest,
	ErrUserNotFound:        NotFound,
	ErrThreadNotFound:      NotFound,
	ErrMessageNotFound:     NotFound,
	ErrReplyNotFound:       NotFound,
	ErrCallNotFound:        NotFound,
	ErrContentNotFound:     NotFound,
	ErrMediaNotFound:       NotFound,
	ErrNotParticipant:      Forbidden,
	ErrThreadBlocked:       Forbidden,
	ErrNotSender:           Forbidden,
	ErrEditWindowExpired:   Forbidden,
	ErrDeleteWindowExpired: Forbidden,
	ErrCallNotReceiver:     Forbidden,
	ErrNotBlocker:          Forbidden,
	ErrCallStateInvalid:    BadRequest,
	ErrStoreUnavailable:    ServiceUnavailable,
	UnauthorizedError:      Unauthorized,
	UnExpectedError:        InternalServerError,
}

// CodeOf 返回 err 链上第一个已登记错误及其业务码，未登记时 known 为 nil
func CodeOf(err error) (code int, known error) {
	if code, ok := ErrorMap[err]; ok {
		return code, err
	}
	for k, c := range ErrorMap {
		if errors.Is(err, k) {
			return c, k
		}
	}
	return InternalServerError, nil
}
