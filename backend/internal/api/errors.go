package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "graphclone/backend/pkg/errors"
)

// ErrorHandler turns the last error a handler attached with c.Error into a
// {"detail": ...} response. Not-found errors become 404, malformed payloads
// and bodies 400, anything else an opaque 500.
func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		last := c.Errors.Last()
		err := last.Err

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		}

		var (
			status int
			detail string
		)
		switch {
		case apperrors.IsNotFound(err):
			log.Error("Record not found", fields...)
			status, detail = http.StatusNotFound, messageOf(err)
		case last.IsType(gin.ErrorTypeBind), apperrors.IsValidation(err), apperrors.IsErrorType(err, apperrors.ErrorTypeSchema):
			log.Warn("Invalid request", fields...)
			status, detail = http.StatusBadRequest, messageOf(err)
		default:
			log.Error("Request failed", fields...)
			status, detail = http.StatusInternalServerError, "internal error"
		}

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(status, gin.H{"detail": detail})
	}
}

// messageOf returns the message of the outermost typed error in err's chain,
// without the category prefix BaseError.Error adds.
func messageOf(err error) string {
	type baser interface{ Base() *apperrors.BaseError }
	for e := err; e != nil; e = errors.Unwrap(e) {
		if b, ok := e.(baser); ok {
			return b.Base().Message
		}
	}
	return err.Error()
}
