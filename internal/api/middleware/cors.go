package middleware

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORS добавляет заголовки CORS к ответам
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		// Обработка preflight запросов
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Logger логирует каждый запрос к API (кроме health и websocket)
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if path == "/health" || path == "/ws" {
			return
		}

		status := c.Writer.Status()
		icon := "📨"
		switch {
		case status >= 500:
			icon = "❌"
		case status >= 400:
			icon = "⚠️ "
		}
		if q := c.Request.URL.RawQuery; q != "" && !strings.Contains(path, "/face") {
			path += "?" + q
		}
		log.Printf("%s [%s] %s %d %v", icon, c.Request.Method, path, status, time.Since(start).Round(time.Millisecond))
	}
}

// Recovery восстанавливает приложение после паники
func Recovery() gin.HandlerFunc {
	return gin.Recovery()
}
