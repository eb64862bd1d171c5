package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"theralink-server/internal/utils"
)

// RequestTimeout sets a deadline on each request's context. Storage calls
// and feedback providers observe it through the context; if the deadline
// passed and the handler wrote nothing, a 504 is returned.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			utils.GatewayTimeout(c, "request processing exceeded the allowed time limit")
			c.Abort()
		}
	}
}
