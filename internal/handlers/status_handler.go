package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ai_voice_chat/internal/models"
	"ai_voice_chat/internal/services"
)

// StatusResponse 客户端状态
type StatusResponse struct {
	Connection      models.ConnectionState   `json:"connection"`
	Error           string                   `json:"error,omitempty"`
	Messages        int                      `json:"messages"`
	Playback        *models.PlaybackSession  `json:"playback,omitempty"`
	Listening       *models.ListeningSession `json:"listening,omitempty"`
	SpeechAvailable bool                     `json:"speechInputAvailable"`
}

// StatusHandler 本地状态查询
type StatusHandler struct {
	store  *services.MessageStore
	output *services.SpeechOutput
	input  *services.SpeechInput
}

// NewStatusHandler 创建状态处理器
func NewStatusHandler(store *services.MessageStore, output *services.SpeechOutput, input *services.SpeechInput) *StatusHandler {
	return &StatusHandler{
		store:  store,
		output: output,
		input:  input,
	}
}

// Status 返回连接、播放和识别状态
func (h *StatusHandler) Status(c *gin.Context) {
	snap := h.store.Snapshot()
	resp := StatusResponse{
		Connection:      snap.Connection,
		Error:           snap.Error,
		Messages:        len(snap.Messages),
		SpeechAvailable: h.input.Available(),
	}
	if session, ok := h.output.Session(); ok {
		resp.Playback = &session
	}
	if session, ok := h.input.Session(); ok {
		resp.Listening = &session
	}
	c.JSON(http.StatusOK, resp)
}

// Messages 返回对话记录
func (h *StatusHandler) Messages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.store.Messages()})
}
