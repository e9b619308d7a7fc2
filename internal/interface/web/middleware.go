package web

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func setupMiddleware(engine *gin.Engine) {
	engine.Use(gin.Recovery(), requestLogger)
}

func requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	entry := log.WithFields(log.Fields{
		"method":  c.Request.Method,
		"path":    c.FullPath(),
		"status":  c.Writer.Status(),
		"elapsed": time.Since(start).String(),
	})
	if len(c.Errors) > 0 {
		entry.WithError(c.Errors.Last()).Debug("request failed")
		return
	}
	entry.Trace("request served")
}
