package ws

import (
	"errors"

	"github.com/bytedance/sonic"

	"ai_voice_chat/internal/models"
)

// ErrMalformedFrame 帧格式不正确
var ErrMalformedFrame = errors.New("无效的消息帧")

// frame 线上帧格式，双向相同
type frame struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EncodeFrame 将消息编码为JSON文本帧
func EncodeFrame(msg models.Message) ([]byte, error) {
	return sonic.Marshal(frame{Role: string(msg.Role), Content: msg.Content})
}

// DecodeFrame 解析JSON文本帧，缺少role或content时返回ErrMalformedFrame
func DecodeFrame(data []byte) (models.Message, error) {
	var f frame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return models.Message{}, errors.Join(ErrMalformedFrame, err)
	}

	msg := models.Message{Role: models.Role(f.Role), Content: f.Content}
	if !msg.Valid() {
		return models.Message{}, ErrMalformedFrame
	}
	return msg, nil
}
