package routes

import (
	"github.com/gin-gonic/gin"

	"ai_voice_chat/internal/handlers"
)

// RegisterASRRoutes 注册模拟识别服务路由，handler为nil时不注册
func RegisterASRRoutes(r *gin.Engine, asr *handlers.ASRHandler) {
	if asr == nil {
		return
	}
	r.GET("/asr", asr.HandleWebSocket)
}
