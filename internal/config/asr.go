package config

import (
	"fmt"
	"net/url"
)

// ASRConfig 语音识别配置，URL为空表示宿主不提供识别能力
type ASRConfig struct {
	URL            string `yaml:"url"`             // 识别服务WebSocket地址
	Language       string `yaml:"language"`        // 识别语言
	Continuous     bool   `yaml:"continuous"`      // 连续识别
	InterimResults bool   `yaml:"interim_results"` // 返回中间结果
}

// NewASRConfig 创建新的ASR配置
func NewASRConfig() *ASRConfig {
	return &ASRConfig{
		Language:       "zh-CN",
		Continuous:     true,
		InterimResults: true,
	}
}

// Enabled 是否配置了识别服务
func (c *ASRConfig) Enabled() bool {
	return c.URL != ""
}

// Validate 验证ASR配置
func (c *ASRConfig) Validate() error {
	if c.Language == "" {
		return ErrEmptyLanguage
	}
	if c.URL == "" {
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidASRURL, c.URL)
	}
	return nil
}
