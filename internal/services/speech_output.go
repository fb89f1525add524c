package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai_voice_chat/internal/audio"
	"ai_voice_chat/internal/clients/tts"
	"ai_voice_chat/internal/metrics"
	"ai_voice_chat/internal/models"
)

// Synthesizer 文本转语音
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*tts.Audio, error)
}

type outputKind int

const (
	outSpeak outputKind = iota
	outSynthesized
	outEnded
	outStop
	outClose
)

// outputEvent 播放事件循环中的事件
type outputEvent struct {
	kind    outputKind
	gen     uint64
	id      string
	text    string
	audio   *tts.Audio
	err     error
	elapsed time.Duration
	reply   chan struct{}
}

// active 正在播放的会话，只在事件循环中访问
type active struct {
	session  models.PlaybackSession
	playback audio.Playback
}

// SpeechOutput 语音输出控制器
//
// 同一时间最多播放一段音频：新的Speak会先停止并释放当前播放，
// 同时取消尚未完成的合成请求。合成失败只记录日志。
type SpeechOutput struct {
	synth  Synthesizer
	player audio.Player
	logger zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	mailbox   chan outputEvent
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	session  *models.PlaybackSession
	handlers []func(models.PlaybackSession)

	// 以下字段只在事件循环中访问
	gen         uint64
	cancelSynth context.CancelFunc
	current     *active
}

// NewSpeechOutput 创建语音输出控制器并启动事件循环
func NewSpeechOutput(synth Synthesizer, player audio.Player, logger zerolog.Logger) *SpeechOutput {
	ctx, cancel := context.WithCancel(context.Background())
	s := &SpeechOutput{
		synth:   synth,
		player:  player,
		logger:  logger.With().Str("component", "speech_output").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		mailbox: make(chan outputEvent),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

// OnPlayback 注册播放状态观察者，开始播放和播放结束时各调用一次
func (s *SpeechOutput) OnPlayback(handler func(models.PlaybackSession)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Speak 合成并播放文本，立即返回
func (s *SpeechOutput) Speak(text string) {
	s.post(outputEvent{kind: outSpeak, text: text})
}

// Stop 停止当前播放并取消未完成的合成，没有播放时不做任何事
func (s *SpeechOutput) Stop() {
	reply := make(chan struct{})
	if s.post(outputEvent{kind: outStop, reply: reply}) {
		<-reply
	}
}

// Session 返回当前播放会话
func (s *SpeechOutput) Session() (models.PlaybackSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return models.PlaybackSession{}, false
	}
	return *s.session, true
}

// Close 停止播放并结束事件循环
func (s *SpeechOutput) Close() {
	s.closeOnce.Do(func() {
		reply := make(chan struct{})
		s.mailbox <- outputEvent{kind: outClose, reply: reply}
		<-reply
		s.cancel()
		<-s.done
	})
}

func (s *SpeechOutput) post(ev outputEvent) bool {
	select {
	case s.mailbox <- ev:
		return true
	case <-s.done:
		return false
	}
}

// loop 事件循环
func (s *SpeechOutput) loop() {
	defer close(s.done)
	for ev := range s.mailbox {
		switch ev.kind {
		case outSpeak:
			s.handleSpeak(ev.text)
		case outSynthesized:
			s.handleSynthesized(ev)
		case outEnded:
			s.handleEnded(ev)
		case outStop:
			s.release("stopped")
			s.cancelPending()
			close(ev.reply)
		case outClose:
			s.release("stopped")
			s.cancelPending()
			close(ev.reply)
			return
		}
	}
}

// handleSpeak 停止当前播放后发起新的合成请求
func (s *SpeechOutput) handleSpeak(text string) {
	s.release("superseded")
	s.cancelPending()

	gen := s.gen
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelSynth = cancel

	s.logger.Debug().Str("text", text).Msg("请求语音合成")
	go func() {
		start := time.Now()
		result, err := s.synth.Synthesize(ctx, text)
		s.post(outputEvent{
			kind:    outSynthesized,
			gen:     gen,
			text:    text,
			audio:   result,
			err:     err,
			elapsed: time.Since(start),
		})
	}()
}

// handleSynthesized 合成完成后开始播放
func (s *SpeechOutput) handleSynthesized(ev outputEvent) {
	if ev.gen != s.gen {
		metrics.SynthesisRequests.WithLabelValues("canceled").Inc()
		return
	}
	s.cancelSynth()
	s.cancelSynth = nil
	s.gen++

	if ev.err != nil {
		if errors.Is(ev.err, context.Canceled) {
			metrics.SynthesisRequests.WithLabelValues("canceled").Inc()
			return
		}
		metrics.SynthesisRequests.WithLabelValues("error").Inc()
		s.logger.Error().Err(ev.err).Msg("TTS失败")
		return
	}
	metrics.SynthesisRequests.WithLabelValues("ok").Inc()
	metrics.SynthesisLatency.Observe(ev.elapsed.Seconds())

	playback, err := s.player.Play(s.ctx, ev.audio.Data)
	if err != nil {
		metrics.PlaybackSessions.WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Msg("播放音频失败")
		return
	}

	s.current = &active{
		session: models.PlaybackSession{
			ID:         uuid.NewString(),
			SourceText: ev.text,
			IsPlaying:  true,
			StartedAt:  time.Now(),
		},
		playback: playback,
	}
	s.publish(s.current.session)

	id := s.current.session.ID
	go func() {
		<-playback.Done()
		s.post(outputEvent{kind: outEnded, id: id})
	}()
}

// handleEnded 播放自然结束，释放资源
func (s *SpeechOutput) handleEnded(ev outputEvent) {
	if s.current == nil || s.current.session.ID != ev.id {
		return
	}

	if err := s.current.playback.Err(); err != nil {
		metrics.PlaybackSessions.WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Msg("播放异常结束")
	} else {
		metrics.PlaybackSessions.WithLabelValues("ended").Inc()
	}

	ended := s.current.session
	ended.IsPlaying = false
	s.current = nil
	s.publish(ended)
}

// release 停止并释放当前播放
func (s *SpeechOutput) release(outcome string) {
	if s.current == nil {
		return
	}
	s.current.playback.Stop()
	metrics.PlaybackSessions.WithLabelValues(outcome).Inc()

	stopped := s.current.session
	stopped.IsPlaying = false
	s.current = nil
	s.publish(stopped)
}

// cancelPending 取消未完成的合成请求，之后到达的结果会被丢弃
func (s *SpeechOutput) cancelPending() {
	if s.cancelSynth != nil {
		s.cancelSynth()
		s.cancelSynth = nil
	}
	s.gen++
}

// publish 更新会话快照并通知观察者
func (s *SpeechOutput) publish(session models.PlaybackSession) {
	s.mu.Lock()
	if session.IsPlaying {
		snapshot := session
		s.session = &snapshot
	} else {
		s.session = nil
	}
	handlers := append([]func(models.PlaybackSession){}, s.handlers...)
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(session)
	}
}
