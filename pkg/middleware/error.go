package middleware

import (
	"context"
	"errors"

	"smallbiznis-tenancy/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Error renders the last error pushed with c.Error as a BaseError JSON body
// unless the handler already wrote a response.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		be := asBaseError(last.Err)
		if be.Code.HTTPStatus() >= 500 {
			zap.L().Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(last.Err),
			)
		}

		c.JSON(be.Code.HTTPStatus(), be.JSON())
	}
}

func asBaseError(err error) errutil.BaseError {
	var be errutil.BaseError
	switch {
	case errors.As(err, &be):
		return be
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errutil.BaseError{Code: errutil.StatusConflict, Message: "record already exists", Err: err}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errutil.BaseError{Code: errutil.StatusNotFound, Message: "record not found", Err: err}
	case errors.Is(err, context.Canceled):
		return errutil.BaseError{Code: errutil.StatusClientClosedRequest, Message: "request canceled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return errutil.BaseError{Code: errutil.StatusGatewayTimeout, Message: "request timed out", Err: err}
	default:
		return errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error", Err: err}
	}
}
