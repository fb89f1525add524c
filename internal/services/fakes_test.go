package services

import (
	"context"
	"sync"
	"sync/atomic"

	"ai_voice_chat/internal/audio"
	"ai_voice_chat/internal/clients/asr"
	"ai_voice_chat/internal/clients/tts"
	"ai_voice_chat/internal/models"
)

// fakeSender 记录发送的消息
type fakeSender struct {
	mu   sync.Mutex
	sent []models.Message
	err  error
}

func (f *fakeSender) Send(msg models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) messages() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.sent...)
}

// fakeSpeaker 记录朗读的文本
type fakeSpeaker struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSpeaker) Speak(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeSpeaker) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// fakeStream 由测试投递识别事件
type fakeStream struct {
	events  chan models.RecognitionEvent
	stopped atomic.Int32
}

func (f *fakeStream) Events() <-chan models.RecognitionEvent {
	return f.events
}

func (f *fakeStream) Stop() error {
	f.stopped.Add(1)
	return nil
}

// fakeRecognizer 每次Start返回一个新的fakeStream
type fakeRecognizer struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
}

func (f *fakeRecognizer) Start(ctx context.Context) (asr.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	stream := &fakeStream{events: make(chan models.RecognitionEvent, 8)}
	f.streams = append(f.streams, stream)
	return stream, nil
}

func (f *fakeRecognizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeRecognizer) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[len(f.streams)-1]
}

// fakeSynth 按文本返回音频，block中的文本会一直等到请求被取消
type fakeSynth struct {
	mu       sync.Mutex
	requests []string
	fail     map[string]error
	block    map[string]bool
	canceled []string
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	f.mu.Lock()
	f.requests = append(f.requests, text)
	err := f.fail[text]
	block := f.block[text]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		f.mu.Lock()
		f.canceled = append(f.canceled, text)
		f.mu.Unlock()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &tts.Audio{Data: []byte(text), ContentType: "audio/wav"}, nil
}

func (f *fakeSynth) canceledTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.canceled...)
}

// fakePlayer 记录播放和停止的顺序，并检查是否有两段音频同时播放
type fakePlayer struct {
	mu         sync.Mutex
	log        []string
	active     int
	overlapped bool
	playbacks  map[string]*fakePlayback
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{playbacks: make(map[string]*fakePlayback)}
}

func (f *fakePlayer) Play(ctx context.Context, data []byte) (audio.Playback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active > 0 {
		f.overlapped = true
	}
	f.active++
	name := string(data)
	f.log = append(f.log, "play "+name)
	pb := &fakePlayback{player: f, name: name, done: make(chan struct{})}
	f.playbacks[name] = pb
	return pb, nil
}

func (f *fakePlayer) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *fakePlayer) playback(name string) *fakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playbacks[name]
}

func (f *fakePlayer) overlap() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlapped
}

type fakePlayback struct {
	player *fakePlayer
	name   string
	done   chan struct{}
	once   sync.Once
}

func (p *fakePlayback) Done() <-chan struct{} { return p.done }

func (p *fakePlayback) Err() error { return nil }

func (p *fakePlayback) Stop() {
	p.end("stop " + p.name)
}

// finish 模拟自然播放结束
func (p *fakePlayback) finish() {
	p.end("end " + p.name)
}

func (p *fakePlayback) end(entry string) {
	p.once.Do(func() {
		p.player.mu.Lock()
		p.player.active--
		p.player.log = append(p.player.log, entry)
		p.player.mu.Unlock()
		close(p.done)
	})
}
