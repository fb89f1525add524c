package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai_voice_chat/internal/clients/asr"
	"ai_voice_chat/internal/metrics"
	"ai_voice_chat/internal/models"
)

// 语音识别相关错误
var (
	ErrRecognition           = errors.New("语音识别失败")
	ErrRecognizerUnavailable = errors.New("当前环境不支持语音识别")
)

// listening 一次进行中的识别
type listening struct {
	session models.ListeningSession
	stream  asr.Stream
}

// SpeechInput 语音输入控制器，状态为 idle → listening → idle
//
// 每次识别只产生一次最终结果，同一时间最多一个识别会话。
type SpeechInput struct {
	recognizer asr.Recognizer
	logger     zerolog.Logger

	mu       sync.Mutex
	current  *listening // nil 表示空闲
	handlers []func(string)
}

// NewSpeechInput 创建语音输入控制器，recognizer为nil时控制器不可用
func NewSpeechInput(recognizer asr.Recognizer, logger zerolog.Logger) *SpeechInput {
	return &SpeechInput{
		recognizer: recognizer,
		logger:     logger.With().Str("component", "speech_input").Logger(),
	}
}

// Available 是否具备识别能力
func (s *SpeechInput) Available() bool {
	return s.recognizer != nil
}

// OnResult 注册最终识别结果回调
func (s *SpeechInput) OnResult(handler func(transcript string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Listening 是否正在识别
func (s *SpeechInput) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Session 返回当前识别会话
func (s *SpeechInput) Session() (models.ListeningSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return models.ListeningSession{}, false
	}
	return s.current.session, true
}

// Start 开始识别，已在识别时不做任何事
func (s *SpeechInput) Start(ctx context.Context) error {
	if !s.Available() {
		return ErrRecognizerUnavailable
	}

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return nil
	}
	l := &listening{session: models.ListeningSession{ID: uuid.NewString(), StartedAt: time.Now()}}
	s.current = l
	s.mu.Unlock()

	stream, err := s.recognizer.Start(ctx)
	if err != nil {
		s.finish(l)
		metrics.RecognitionSessions.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Msg("启动语音识别失败")
		return fmt.Errorf("%w: %w", ErrRecognition, err)
	}

	s.mu.Lock()
	if s.current != l {
		// 启动过程中已被停止
		s.mu.Unlock()
		stream.Stop()
		return nil
	}
	l.stream = stream
	s.mu.Unlock()

	s.logger.Info().Str("session", l.session.ID).Msg("开始聆听")
	go s.consume(l, stream)
	return nil
}

// Stop 停止识别并丢弃该会话之后的所有结果
func (s *SpeechInput) Stop() {
	s.mu.Lock()
	l := s.current
	s.current = nil
	s.mu.Unlock()

	if l == nil {
		return
	}
	metrics.RecognitionSessions.WithLabelValues("stopped").Inc()
	s.logger.Info().Str("session", l.session.ID).Msg("停止聆听")
	if l.stream != nil {
		if err := l.stream.Stop(); err != nil {
			s.logger.Debug().Err(err).Msg("停止识别时出错")
		}
	}
}

// Toggle 空闲时开始识别，识别中时停止
func (s *SpeechInput) Toggle(ctx context.Context) error {
	if s.Listening() {
		s.Stop()
		return nil
	}
	return s.Start(ctx)
}

// consume 处理一个识别会话的事件
func (s *SpeechInput) consume(l *listening, stream asr.Stream) {
	for ev := range stream.Events() {
		if !s.isCurrent(l) {
			return
		}

		switch ev.Type {
		case models.RecognitionResult:
			if !ev.IsFinal {
				continue
			}
			if !s.finish(l) {
				return
			}
			stream.Stop()
			metrics.RecognitionSessions.WithLabelValues("final").Inc()
			s.deliver(strings.TrimSpace(ev.Transcript))
			return
		case models.RecognitionError:
			if s.finish(l) {
				stream.Stop()
				metrics.RecognitionSessions.WithLabelValues("error").Inc()
				s.logger.Error().Err(fmt.Errorf("%w: %w", ErrRecognition, ev.Err)).Msg("语音识别错误")
			}
			return
		case models.RecognitionEnd:
			if s.finish(l) {
				metrics.RecognitionSessions.WithLabelValues("end").Inc()
				s.logger.Info().Str("session", l.session.ID).Msg("识别结束")
			}
			return
		}
	}

	// 事件流未发送结束事件就关闭
	if s.finish(l) {
		metrics.RecognitionSessions.WithLabelValues("end").Inc()
	}
}

// finish 将l对应的会话切换为空闲，l已不是当前会话时返回false
func (s *SpeechInput) finish(l *listening) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != l {
		return false
	}
	s.current = nil
	return true
}

func (s *SpeechInput) isCurrent(l *listening) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == l
}

// deliver 调用结果回调
func (s *SpeechInput) deliver(transcript string) {
	s.mu.Lock()
	handlers := append([]func(string){}, s.handlers...)
	s.mu.Unlock()

	s.logger.Info().Str("transcript", transcript).Msg("识别完成")
	for _, handler := range handlers {
		handler(transcript)
	}
}
