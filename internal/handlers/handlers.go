// Package handlers 提供HTTP和WebSocket处理器
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health 健康检查
func Health(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": service,
			"time":    time.Now().Format(time.RFC3339),
		})
	}
}

// Metrics Prometheus指标
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// errorResponse 统一的错误响应
func errorResponse(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
