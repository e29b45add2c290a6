package middleware

import (
	"cesworld/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error pushed with c.Error. Anything that is not a
// BaseError is reported as an internal error.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		be, ok := errutil.As(last.Err)
		if !ok {
			zap.L().Error("unhandled error",
				zap.String("path", c.FullPath()),
				zap.String("request_id", RequestID(c)),
				zap.Error(last.Err),
			)
			be = errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error"}
		} else if be.Code.HTTPStatus() >= 500 {
			zap.L().Error("request failed",
				zap.String("path", c.FullPath()),
				zap.String("request_id", RequestID(c)),
				zap.Error(be),
			)
		}

		c.JSON(be.Code.HTTPStatus(), be.JSON())
	}
}
