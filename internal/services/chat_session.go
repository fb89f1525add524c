// Package services 实现聊天会话的核心逻辑：消息存储、语音输入输出和会话控制
package services

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ai_voice_chat/internal/models"
)

// 会话相关错误
var (
	ErrNoSuchMessage = errors.New("消息不存在")
	ErrNotAssistant  = errors.New("只能朗读助手消息")
)

// Sender 发送消息到服务器
type Sender interface {
	Send(msg models.Message) error
}

// Speaker 朗读文本，立即返回
type Speaker interface {
	Speak(text string)
}

// ConnectionEvents 连接事件来源
type ConnectionEvents interface {
	OnState(handler func(models.ConnectionState))
	OnMessage(handler func(models.Message))
}

// ChatSession 会话控制器：接收用户输入（文字或语音），写入消息存储并发送到服务器；
// 收到的消息写入存储，助手消息自动朗读
type ChatSession struct {
	store   *MessageStore
	sender  Sender
	speaker Speaker
	logger  zerolog.Logger
}

// NewChatSession 创建会话控制器
func NewChatSession(store *MessageStore, sender Sender, speaker Speaker, logger zerolog.Logger) *ChatSession {
	return &ChatSession{
		store:   store,
		sender:  sender,
		speaker: speaker,
		logger:  logger.With().Str("component", "chat").Logger(),
	}
}

// Observe 订阅连接状态和入站消息，需在连接之前调用
func (c *ChatSession) Observe(events ConnectionEvents) {
	events.OnState(c.OnConnectionState)
	events.OnMessage(c.OnInboundMessage)
}

// AttachSpeechInput 将语音识别的最终结果作为用户输入提交
func (c *ChatSession) AttachSpeechInput(input *SpeechInput) {
	input.OnResult(func(transcript string) {
		if err := c.SubmitUserText(transcript); err != nil {
			c.logger.Warn().Err(err).Msg("语音输入发送失败")
		}
	})
}

// SubmitUserText 提交用户输入，空白输入不做任何事
//
// 消息先写入存储再发送，发送失败时记录错误状态但保留消息。
func (c *ChatSession) SubmitUserText(text string) error {
	msg := models.NewUserMessage(text)
	if msg.Content == "" {
		return nil
	}

	c.store.Append(msg)
	if err := c.sender.Send(msg); err != nil {
		c.store.SetError(err.Error())
		c.logger.Error().Err(err).Msg("消息发送失败")
		return err
	}
	return nil
}

// OnInboundMessage 处理服务器消息
func (c *ChatSession) OnInboundMessage(msg models.Message) {
	c.store.Append(msg)
	if msg.IsAssistant() {
		c.speaker.Speak(msg.Content)
	}
}

// OnConnectionState 同步连接状态到消息存储
func (c *ChatSession) OnConnectionState(state models.ConnectionState) {
	c.store.SetConnectionState(state)
	c.store.SetError(state.LastError)
}

// Replay 重新朗读第index条助手消息
func (c *ChatSession) Replay(index int) error {
	msg, ok := c.store.At(index)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchMessage, index)
	}
	if !msg.IsAssistant() {
		return ErrNotAssistant
	}
	c.speaker.Speak(msg.Content)
	return nil
}
