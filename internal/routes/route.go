// Package routes 注册HTTP路由
package routes

import (
	"github.com/gin-gonic/gin"

	"ai_voice_chat/internal/handlers"
)

// DevHandlers 开发服务器用到的处理器
type DevHandlers struct {
	Dialog *handlers.DialogHandler
	TTS    *handlers.TTSHandler
	ASR    *handlers.ASRHandler
}

// RegisterRoutes 注册开发服务器的所有路由
func RegisterRoutes(r *gin.Engine, h DevHandlers) {
	r.GET("/health", handlers.Health("voicechat-devserver"))
	r.GET("/metrics", handlers.Metrics())

	RegisterDialogRoutes(r, h.Dialog, h.TTS)
	RegisterASRRoutes(r, h.ASR)
}

// RegisterStatusRoutes 注册客户端本地状态服务的路由
func RegisterStatusRoutes(r *gin.Engine, status *handlers.StatusHandler) {
	r.GET("/health", handlers.Health("voicechat"))
	r.GET("/metrics", handlers.Metrics())
	r.GET("/status", status.Status)
	r.GET("/messages", status.Messages)
}
