package config

import "fmt"

// DevServerConfig 本地开发后端配置
type DevServerConfig struct {
	Host        string       `yaml:"host"`         // 监听地址
	Port        int          `yaml:"port"`         // 监听端口
	ReplyPrefix string       `yaml:"reply_prefix"` // 回声回复前缀
	AudioFile   string       `yaml:"audio_file"`   // 固定返回的音频文件，为空时生成提示音
	Transcript  string       `yaml:"transcript"`   // 模拟识别服务返回的文本
	Ollama      OllamaConfig `yaml:"ollama"`
}

// OllamaConfig Ollama配置，Host为空时使用回声回复
type OllamaConfig struct {
	Host      string `yaml:"host"`       // Ollama服务器地址
	Model     string `yaml:"model"`      // 模型名称
	MaxTokens int    `yaml:"max_tokens"` // 最大生成token数
}

// NewDevServerConfig 创建新的开发服务器配置
func NewDevServerConfig() *DevServerConfig {
	return &DevServerConfig{
		Host:        "127.0.0.1",
		Port:        8000,
		ReplyPrefix: "收到：",
		Transcript:  "你好，今天天气怎么样？",
		Ollama: OllamaConfig{
			MaxTokens: 2048,
		},
	}
}

// Addr 监听地址
func (c *DevServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate 验证开发服务器配置
func (c *DevServerConfig) Validate() error {
	if c.Host == "" {
		return ErrEmptyHost
	}
	if c.Port <= 0 {
		return ErrEmptyPort
	}
	return nil
}
