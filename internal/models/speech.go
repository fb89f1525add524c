package models

import "time"

// PlaybackSession 一次语音播放会话
type PlaybackSession struct {
	ID         string    `json:"id"`
	SourceText string    `json:"sourceText"`
	IsPlaying  bool      `json:"isPlaying"`
	StartedAt  time.Time `json:"startedAt"`
}

// ListeningSession 一次语音识别会话
type ListeningSession struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
}

// RecognitionEventType 识别事件类型
type RecognitionEventType int

const (
	RecognitionResult RecognitionEventType = iota // 识别结果（中间或最终）
	RecognitionError                              // 识别错误
	RecognitionEnd                                // 识别结束
)

// RecognitionEvent 识别器产生的事件
type RecognitionEvent struct {
	Type       RecognitionEventType
	Transcript string
	IsFinal    bool
	Err        error
}
