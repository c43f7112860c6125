package middlewares

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSONBody guards routes that take a JSON document: writes must declare
// application/json, and the body is capped at maxBytes. A declared length
// over the cap is refused before the handler runs; an undeclared one trips
// the reader and surfaces as a bind error.
func JSONBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			mt, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
			if err != nil || mt != "application/json" {
				abortWithError(c, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
				return
			}
		}

		if maxBytes > 0 {
			if c.Request.ContentLength > maxBytes {
				abortWithError(c, http.StatusBadRequest, "body_too_large", "Request body is too large")
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()
	}
}
