package handlers

import (
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// asrCommand 识别客户端发来的命令
type asrCommand struct {
	Type           string `json:"type"` // start/stop
	Lang           string `json:"lang"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
}

// asrEvent 下发给识别客户端的事件
type asrEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript,omitempty"`
	IsFinal    bool   `json:"is_final,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ASRHandler 模拟识别服务：收到start后返回固定文本
type ASRHandler struct {
	transcript string
	upgrader   websocket.Upgrader
	logger     zerolog.Logger

	// Delay 中间结果与最终结果之间的间隔
	Delay time.Duration
}

// NewASRHandler 创建新的ASR处理器实例
func NewASRHandler(transcript string, logger zerolog.Logger) *ASRHandler {
	return &ASRHandler{
		transcript: transcript,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With().Str("component", "asr_sim").Logger(),
		Delay:  300 * time.Millisecond,
	}
}

// HandleWebSocket 处理 GET /asr
func (h *ASRHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("升级WebSocket连接失败")
		return
	}
	defer conn.Close()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("读取WebSocket消息错误")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var cmd asrCommand
		if err := sonic.Unmarshal(message, &cmd); err != nil {
			h.send(conn, asrEvent{Type: "error", Error: "无效的命令"})
			continue
		}

		switch cmd.Type {
		case "start":
			h.logger.Info().Str("lang", cmd.Lang).Msg("开始模拟识别")
			if err := h.recognize(conn, cmd); err != nil {
				return
			}
		case "stop":
			h.send(conn, asrEvent{Type: "end"})
			return
		default:
			h.send(conn, asrEvent{Type: "error", Error: "不支持的命令: " + cmd.Type})
		}
	}
}

// recognize 依次下发中间结果和最终结果
func (h *ASRHandler) recognize(conn *websocket.Conn, cmd asrCommand) error {
	if h.transcript == "" {
		return h.send(conn, asrEvent{Type: "error", Error: "no-speech"})
	}

	if cmd.InterimResults {
		half := []rune(h.transcript)[:utf8.RuneCountInString(h.transcript)/2]
		if err := h.send(conn, asrEvent{Type: "result", Transcript: string(half)}); err != nil {
			return err
		}
		time.Sleep(h.Delay)
	}
	if err := h.send(conn, asrEvent{Type: "result", Transcript: h.transcript, IsFinal: true}); err != nil {
		return err
	}
	if !cmd.Continuous {
		return h.send(conn, asrEvent{Type: "end"})
	}
	return nil
}

func (h *ASRHandler) send(conn *websocket.Conn, ev asrEvent) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
