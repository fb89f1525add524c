package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai_voice_chat/internal/clients/ws"
	"ai_voice_chat/internal/models"
	"ai_voice_chat/internal/services"
)

// writeTimeout 单帧写超时
const writeTimeout = 5 * time.Second

// DialogSession 一条聊天连接
type DialogSession struct {
	ID   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// write 写入一帧，同一连接的写操作串行执行
func (s *DialogSession) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// DialogHandler 开发用聊天后端：用户消息转发给其他连接，并由回复生成器生成助手回复
type DialogHandler struct {
	dialog   *services.DialogService
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*DialogSession
}

// NewDialogHandler 创建对话处理器
func NewDialogHandler(dialog *services.DialogService, logger zerolog.Logger) *DialogHandler {
	return &DialogHandler{
		dialog: dialog,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:   logger.With().Str("component", "dialog_ws").Logger(),
		sessions: make(map[string]*DialogSession),
	}
}

// HandleWebSocket 处理 GET /ws
func (h *DialogHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("升级WebSocket连接失败")
		return
	}

	session := &DialogSession{ID: uuid.NewString(), conn: conn}
	h.mu.Lock()
	h.sessions[session.ID] = session
	h.mu.Unlock()
	h.logger.Info().Str("session", session.ID).Msg("聊天连接已建立")

	defer func() {
		h.mu.Lock()
		delete(h.sessions, session.ID)
		h.mu.Unlock()
		conn.Close()
		h.logger.Info().Str("session", session.ID).Msg("聊天连接已关闭")
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("读取WebSocket消息失败")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := ws.DecodeFrame(data)
		if err != nil {
			h.logger.Debug().Err(err).Msg("忽略无效消息")
			continue
		}
		h.handleMessage(c, session, msg)
	}
}

// handleMessage 转发消息，用户消息还会触发助手回复
func (h *DialogHandler) handleMessage(c *gin.Context, session *DialogSession, msg models.Message) {
	h.Broadcast(msg, session.ID)

	if msg.Role != models.RoleUser {
		h.dialog.Record(msg)
		return
	}

	reply, ok, err := h.dialog.ProcessMessage(c.Request.Context(), msg)
	if err != nil || !ok {
		return
	}
	h.Broadcast(reply, "")
}

// Broadcast 将消息发送给除except之外的所有连接，返回成功发送的连接数
func (h *DialogHandler) Broadcast(msg models.Message, except string) int {
	data, err := ws.EncodeFrame(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("序列化消息失败")
		return 0
	}

	h.mu.RLock()
	targets := make([]*DialogSession, 0, len(h.sessions))
	for id, s := range h.sessions {
		if id != except {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if err := s.write(data); err != nil {
			h.logger.Warn().Err(err).Str("session", s.ID).Msg("发送消息失败")
			continue
		}
		delivered++
	}
	return delivered
}

// PostMessage 处理 POST /message，向所有连接推送一条消息
func (h *DialogHandler) PostMessage(c *gin.Context) {
	var msg models.Message
	if err := c.ShouldBindJSON(&msg); err != nil || !msg.Valid() {
		errorResponse(c, http.StatusBadRequest, "无效的消息")
		return
	}

	h.dialog.Record(msg)
	delivered := h.Broadcast(msg, "")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "delivered": delivered})
}

// History 处理 GET /dialogue
func (h *DialogHandler) History(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.dialog.History()})
}

// ClearHistory 处理 DELETE /dialogue
func (h *DialogHandler) ClearHistory(c *gin.Context) {
	h.dialog.ClearHistory()
	c.Status(http.StatusNoContent)
}

// Sessions 当前连接数
func (h *DialogHandler) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
