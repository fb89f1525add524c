package handlers

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"ai_voice_chat/internal/utils"
)

// 提示音参数
const (
	toneSampleRate = 16000
	toneFrequency  = 440
	minToneLength  = 300 * time.Millisecond
	maxToneLength  = 6 * time.Second
	perRuneLength  = 120 * time.Millisecond
)

// TTSRequest 语音合成请求
type TTSRequest struct {
	Text string `json:"text"`
}

// TTSHandler 开发用语音合成接口，返回固定音频文件或按文本长度生成的提示音
type TTSHandler struct {
	audio       []byte
	contentType string
	logger      zerolog.Logger
}

// NewTTSHandler 创建语音合成处理器，audioFile为空时生成提示音
func NewTTSHandler(audioFile string, logger zerolog.Logger) (*TTSHandler, error) {
	h := &TTSHandler{logger: logger.With().Str("component", "tts").Logger()}
	if audioFile != "" {
		data, err := os.ReadFile(audioFile)
		if err != nil {
			return nil, fmt.Errorf("读取音频文件失败: %w", err)
		}
		h.audio = data
		h.contentType = http.DetectContentType(data)
	}
	return h, nil
}

// Synthesize 处理 POST /tts
func (h *TTSHandler) Synthesize(c *gin.Context) {
	var req TTSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "请求格式错误")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		errorResponse(c, http.StatusBadRequest, "文本不能为空")
		return
	}

	if h.audio != nil {
		c.Data(http.StatusOK, h.contentType, h.audio)
		return
	}

	wav, err := utils.PCMToWAV(utils.Tone(toneFrequency, toneLength(text), toneSampleRate), 1, toneSampleRate)
	if err != nil {
		h.logger.Error().Err(err).Msg("生成音频失败")
		errorResponse(c, http.StatusInternalServerError, "TTS失败")
		return
	}
	h.logger.Debug().Int("chars", utf8.RuneCountInString(text)).Int("bytes", len(wav)).Msg("已生成提示音")
	c.Data(http.StatusOK, "audio/wav", wav)
}

// toneLength 提示音时长随文本长度增长
func toneLength(text string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(text)) * perRuneLength
	if d < minToneLength {
		return minToneLength
	}
	if d > maxToneLength {
		return maxToneLength
	}
	return d
}
