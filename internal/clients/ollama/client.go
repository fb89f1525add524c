// Package ollama Ollama对话接口客户端，开发服务器用它生成助手回复
package ollama

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

	"ai_voice_chat/internal/models"
)

// ErrEmptyReply 模型没有返回内容
var ErrEmptyReply = errors.New("模型返回内容为空")

// Config Ollama客户端配置
type Config struct {
	Host    string        // Ollama服务器地址（完整URL）
	Model   string        // 使用的模型名称
	Timeout time.Duration // 请求超时时间
}

// Client Ollama客户端
type Client struct {
	config Config
	client *http.Client
}

// ChatRequest 对话请求参数
type ChatRequest struct {
	Model    string           `json:"model"`             // 模型名称
	Messages []models.Message `json:"messages"`          // 对话历史
	Stream   bool             `json:"stream"`            // 是否流式输出
	Options  *Options         `json:"options,omitempty"` // 可选参数
}

// Options 生成选项
type Options struct {
	Temperature float64 `json:"temperature,omitempty"` // 温度参数
	TopP        float64 `json:"top_p,omitempty"`       // Top-p采样
	NumPredict  int     `json:"num_predict,omitempty"` // 最大生成token数
}

// ChatResponse 对话响应
type ChatResponse struct {
	Model         string         `json:"model"`          // 模型名称
	CreatedAt     string         `json:"created_at"`     // 创建时间
	Message       models.Message `json:"message"`        // 助手回复
	Done          bool           `json:"done"`           // 是否完成
	TotalDuration int64          `json:"total_duration"` // 总耗时(纳秒)
	EvalCount     int            `json:"eval_count"`     // 生成token数
}

// NewClient 创建新的Ollama客户端
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Chat 根据对话历史生成下一条助手回复
func (c *Client) Chat(ctx context.Context, history []models.Message, options *Options) (*ChatResponse, error) {
	jsonData, err := sonic.Marshal(ChatRequest{
		Model:    c.config.Model,
		Messages: history,
		Stream:   false,
		Options:  options,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	url := strings.TrimRight(c.config.Host, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("服务器返回错误(%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response ChatResponse
	if err := sonic.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if strings.TrimSpace(response.Message.Content) == "" {
		return nil, ErrEmptyReply
	}
	return &response, nil
}
