package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/semsim/internal/pkg/errcode"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, AsCodeErr(uint32(code), message))
}

// Fail writes err with the code of its kind. Caller-facing kinds keep their
// message; anything unclassified is reported as an internal error.
func Fail(c *gin.Context, err error) {
	code, msg := Classify(err)
	Error(c, code, msg)
}

func Classify(err error) (int, string) {
	switch {
	case err == nil:
		return errcode.ErrUnknown, "unknown error"
	case appErr.IsNotFound(err):
		return errcode.ErrNotFound, err.Error()
	case appErr.IsCallerError(err):
		return errcode.ErrInvalid, err.Error()
	case appErr.IsConflict(err):
		return errcode.ErrConflict, err.Error()
	case appErr.IsUnauthorized(err):
		return errcode.ErrUnauthorized, "unauthorized"
	case appErr.IsModelError(err):
		return errcode.ErrModel, err.Error()
	case appErr.IsTrainingError(err):
		return errcode.ErrTraining, err.Error()
	default:
		return errcode.ErrInternal, "internal error"
	}
}
