// Package asr 语音识别客户端
package asr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai_voice_chat/internal/models"
)

// ErrRecognizer 识别服务返回错误或连接中断
var ErrRecognizer = errors.New("识别服务错误")

// Recognizer 宿主提供的语音识别能力
type Recognizer interface {
	// Start 开始一次识别，返回的事件流在识别结束后关闭
	Start(ctx context.Context) (Stream, error)
}

// Stream 一次识别的事件流
type Stream interface {
	Events() <-chan models.RecognitionEvent
	// Stop 停止识别，之后不再产生事件，可重复调用
	Stop() error
}

// Config 识别服务配置
type Config struct {
	URL              string        // 识别服务WebSocket地址
	Language         string        // 识别语言
	Continuous       bool          // 连续识别
	InterimResults   bool          // 返回中间结果
	HandshakeTimeout time.Duration // 握手超时时间
}

// startMessage 开始识别请求
type startMessage struct {
	Type           string `json:"type"`
	Lang           string `json:"lang"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
}

// message 识别服务下发的消息
type message struct {
	Type       string `json:"type"` // result/error/end
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
	Error      string `json:"error"`
}

// WSRecognizer 通过WebSocket访问识别服务
type WSRecognizer struct {
	config Config
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewWSRecognizer 创建新的识别客户端
func NewWSRecognizer(config Config, logger zerolog.Logger) *WSRecognizer {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	return &WSRecognizer{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		logger: logger.With().Str("component", "asr").Logger(),
	}
}

// Start 连接识别服务并发送开始请求
func (r *WSRecognizer) Start(ctx context.Context) (Stream, error) {
	conn, _, err := r.dialer.DialContext(ctx, r.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("连接识别服务失败: %w", err)
	}

	start, err := sonic.Marshal(startMessage{
		Type:           "start",
		Lang:           r.config.Language,
		Continuous:     r.config.Continuous,
		InterimResults: r.config.InterimResults,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("发送开始请求失败: %w", err)
	}

	s := &session{
		conn:   conn,
		events: make(chan models.RecognitionEvent, 16),
		done:   make(chan struct{}),
		logger: r.logger,
	}
	go s.readLoop()

	r.logger.Info().Str("lang", r.config.Language).Msg("开始语音识别")
	return s, nil
}

// session 一次识别连接
type session struct {
	conn   *websocket.Conn
	events chan models.RecognitionEvent
	done   chan struct{}
	logger zerolog.Logger

	writeMu  sync.Mutex
	stopOnce sync.Once
}

func (s *session) Events() <-chan models.RecognitionEvent {
	return s.events
}

// Stop 通知识别服务停止并关闭连接
func (s *session) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		err = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		s.conn.Close()
		s.logger.Info().Msg("停止语音识别")
	})
	return err
}

// readLoop 读取识别结果，收到end或连接断开后关闭事件流
func (s *session) readLoop() {
	defer close(s.events)
	defer s.conn.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.stopped() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.emit(models.RecognitionEvent{Type: models.RecognitionEnd})
				return
			}
			s.emit(models.RecognitionEvent{
				Type: models.RecognitionError,
				Err:  fmt.Errorf("%w: %w", ErrRecognizer, err),
			})
			return
		}

		var msg message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("识别结果解析错误")
			continue
		}

		switch msg.Type {
		case "result":
			if !s.emit(models.RecognitionEvent{
				Type:       models.RecognitionResult,
				Transcript: msg.Transcript,
				IsFinal:    msg.IsFinal,
			}) {
				return
			}
		case "error":
			s.emit(models.RecognitionEvent{
				Type: models.RecognitionError,
				Err:  fmt.Errorf("%w: %s", ErrRecognizer, msg.Error),
			})
			return
		case "end":
			s.emit(models.RecognitionEvent{Type: models.RecognitionEnd})
			return
		default:
			s.logger.Debug().Str("type", msg.Type).Msg("忽略未知消息")
		}
	}
}

// emit 投递事件，停止后返回false
func (s *session) emit(ev models.RecognitionEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
