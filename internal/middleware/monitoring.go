package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"askout/backend/internal/monitoring"
)

// Monitoring 记录 HTTP 请求指标的中间件
func Monitoring(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// 使用注册路由模板而不是原始路径，避免指标基数爆炸
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
