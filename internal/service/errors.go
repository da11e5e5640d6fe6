package service

import (
	"errors"

	"referralhub/internal/biz"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// store 错误的细节只进日志，不返回给调用方
const storeErrorMessage = "member store unavailable, try again later"

// toTransportError 把 biz 错误映射成 kratos 错误，reason 即错误类型
func toTransportError(err error) error {
	if err == nil {
		return nil
	}
	var ke *kerrors.Error
	if errors.As(err, &ke) {
		return ke
	}
	kind := biz.ErrorKind(err)
	switch {
	case errors.Is(err, biz.ErrInvalidArgument):
		return kerrors.BadRequest(kind, err.Error())
	case errors.Is(err, biz.ErrNotFound):
		return kerrors.NotFound(kind, err.Error())
	case errors.Is(err, biz.ErrUnauthorized):
		return kerrors.Unauthorized(kind, err.Error())
	case errors.Is(err, biz.ErrForbidden):
		return kerrors.Forbidden(kind, err.Error())
	default:
		return kerrors.InternalServer(kind, storeErrorMessage).WithCause(err)
	}
}
