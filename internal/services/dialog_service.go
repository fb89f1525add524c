package services

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"ai_voice_chat/internal/clients/ollama"
	"ai_voice_chat/internal/config"
	"ai_voice_chat/internal/metrics"
	"ai_voice_chat/internal/models"
)

// Responder 根据对话历史生成助手回复
type Responder interface {
	Reply(ctx context.Context, history []models.Message) (string, error)
}

// EchoResponder 原样回显最后一条用户消息
type EchoResponder struct {
	Prefix string
}

// Reply 回显最后一条用户消息
func (r EchoResponder) Reply(ctx context.Context, history []models.Message) (string, error) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return r.Prefix + history[i].Content, nil
		}
	}
	return "", nil
}

// OllamaResponder 通过Ollama生成回复
type OllamaResponder struct {
	client  *ollama.Client
	options *ollama.Options
}

// NewOllamaResponder 创建Ollama回复生成器
func NewOllamaResponder(cfg config.OllamaConfig) *OllamaResponder {
	return &OllamaResponder{
		client: ollama.NewClient(ollama.Config{
			Host:  cfg.Host,
			Model: cfg.Model,
		}),
		options: &ollama.Options{
			Temperature: 0.7,
			NumPredict:  cfg.MaxTokens,
		},
	}
}

// Reply 调用Ollama生成回复
func (r *OllamaResponder) Reply(ctx context.Context, history []models.Message) (string, error) {
	resp, err := r.client.Chat(ctx, history, r.options)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// NewResponder 配置了Ollama时使用Ollama，否则回显
func NewResponder(cfg config.DevServerConfig) Responder {
	if cfg.Ollama.Host != "" {
		return NewOllamaResponder(cfg.Ollama)
	}
	return EchoResponder{Prefix: cfg.ReplyPrefix}
}

// DialogService 开发服务器的对话服务，所有连接共享一份对话历史
type DialogService struct {
	responder Responder
	logger    zerolog.Logger

	mu      sync.RWMutex
	history []models.Message
}

// NewDialogService 创建新的对话服务
func NewDialogService(responder Responder, logger zerolog.Logger) *DialogService {
	return &DialogService{
		responder: responder,
		logger:    logger.With().Str("component", "dialog").Logger(),
		history:   make([]models.Message, 0),
	}
}

// Record 记录一条消息
func (s *DialogService) Record(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
	metrics.DevMessages.WithLabelValues(string(msg.Role)).Inc()
}

// ProcessMessage 记录用户消息并生成助手回复，回复为空时返回false
func (s *DialogService) ProcessMessage(ctx context.Context, msg models.Message) (models.Message, bool, error) {
	s.Record(msg)

	text, err := s.responder.Reply(ctx, s.History())
	if err != nil {
		s.logger.Error().Err(err).Msg("生成回复失败")
		return models.Message{}, false, err
	}
	if text == "" {
		return models.Message{}, false, nil
	}

	reply := models.Message{Role: models.RoleAssistant, Content: text}
	s.Record(reply)
	return reply, true, nil
}

// History 获取对话历史
func (s *DialogService) History() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]models.Message, len(s.history))
	copy(history, s.history)
	return history
}

// ClearHistory 清除对话历史
func (s *DialogService) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make([]models.Message, 0)
}
