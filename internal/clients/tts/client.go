// Package tts 语音合成HTTP客户端
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// ErrSynthesis 合成服务返回非2xx或请求失败
var ErrSynthesis = errors.New("语音合成失败")

// maxAudioSize 单次合成音频的最大字节数
const maxAudioSize = 32 << 20

// Config 语音合成客户端配置
type Config struct {
	URL     string        // 合成接口完整地址
	Timeout time.Duration // 请求超时时间
}

// Client 语音合成客户端
type Client struct {
	config Config
	client *http.Client
}

// SynthesizeRequest 合成请求
type SynthesizeRequest struct {
	Text string `json:"text"` // 待合成文本
}

// errorResponse 合成服务的错误响应，兼容 error 和 detail 两种字段
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// Audio 合成得到的音频
type Audio struct {
	Data        []byte
	ContentType string
}

// NewClient 创建新的语音合成客户端，httpClient为nil时使用默认客户端
func NewClient(config Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &Client{
		config: config,
		client: httpClient,
	}
}

// Synthesize 合成文本对应的音频
func (c *Client) Synthesize(ctx context.Context, text string) (*Audio, error) {
	jsonData, err := sonic.Marshal(SynthesizeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: 发送请求失败: %w", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应失败: %w", ErrSynthesis, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: 服务器返回错误(%d): %s", ErrSynthesis, resp.StatusCode, errorMessage(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: 响应中没有音频数据", ErrSynthesis)
	}

	return &Audio{
		Data:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// errorMessage 从错误响应中提取说明
func errorMessage(body []byte) string {
	var resp errorResponse
	if err := sonic.Unmarshal(body, &resp); err == nil {
		if resp.Error != "" {
			return resp.Error
		}
		if resp.Detail != "" {
			return resp.Detail
		}
	}
	return strings.TrimSpace(string(body))
}
