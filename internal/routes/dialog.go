package routes

import (
	"github.com/gin-gonic/gin"

	"ai_voice_chat/internal/handlers"
)

// RegisterDialogRoutes 注册聊天和语音合成路由
func RegisterDialogRoutes(r *gin.Engine, dialog *handlers.DialogHandler, tts *handlers.TTSHandler) {
	r.GET("/ws", dialog.HandleWebSocket)
	r.POST("/message", dialog.PostMessage)
	r.GET("/dialogue", dialog.History)
	r.DELETE("/dialogue", dialog.ClearHistory)
	r.POST("/tts", tts.Synthesize)
}
