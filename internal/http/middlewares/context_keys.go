package middlewares

import "github.com/gin-gonic/gin"

// Keys stored on the gin context. CtxRequestID matches the key the
// handlers' error envelope reads.
const (
	CtxRequestID = "request_id"
	ctxUserIDKey = "auth.userID"
)

func abortWithError(c *gin.Context, status int, code, message string) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if id := c.GetString(CtxRequestID); id != "" {
		body["requestId"] = id
	}

	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
