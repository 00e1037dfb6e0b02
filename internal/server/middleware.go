package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Clacks adds the X-Clacks-Overhead header to every response, including
// health checks, as a tribute to Sir Terry Pratchett.
//
// In "Going Postal" the clacks semaphore network carried the code GNU to keep
// the names of dead operators moving through the towers forever: G send the
// message on, N do not log it, U turn it around at the end of the line. The
// header does the same for his name on the internet.
// See: http://www.gnuterrypratchett.com/
func Clacks() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Clacks-Overhead", "GNU Terry Pratchett")
		c.Next()
	}
}

// CORSAny allows any origin on the ingest surface. SDKs submit from arbitrary
// client environments; there is nothing cookie-scoped to protect here.
func CORSAny() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "*")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogger emits one structured log line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
