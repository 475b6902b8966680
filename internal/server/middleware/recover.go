package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/clinichub/clinichub/internal/log"
)

// Recovery returns a middleware that recovers from panics in handlers and
// responds with 500. The panic value and stack are logged with the request
// trace fields already in the context.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(c.Request.Context(), "panic recovered",
					log.Any("panic", r),
					log.String("method", c.Request.Method),
					log.String("path", c.Request.URL.Path),
					log.String("stack", string(debug.Stack())),
				)

				AbortWithError(c, http.StatusInternalServerError, fmt.Errorf("internal server error"))
			}
		}()

		c.Next()
	}
}
