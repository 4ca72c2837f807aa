package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"content-api/internal/logger"
)

// RequestID garante que toda requisição carregue um X-Request-ID e propaga
// as informações da requisição para o contexto usado pelos logs
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)

		ctx := logger.ContextWithRequestInfo(
			c.Request.Context(),
			requestID,
			ClientIP(c),
			c.Request.Method,
			c.Request.URL.Path,
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
