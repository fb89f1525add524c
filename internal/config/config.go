// Package config 提供配置加载和管理功能
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用程序配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	TTS       TTSConfig       `yaml:"tts"`
	ASR       ASRConfig       `yaml:"asr"`
	Audio     AudioConfig     `yaml:"audio"`
	Log       LogConfig       `yaml:"log"`
	Status    StatusConfig    `yaml:"status"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// ServerConfig 后端服务配置
type ServerConfig struct {
	Origin string `yaml:"origin"` // 后端地址，例如 http://127.0.0.1:8000
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path              string        `yaml:"path"`               // WebSocket路径
	ReconnectInterval time.Duration `yaml:"reconnect_interval"` // 重连间隔
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`  // 握手超时时间
	ReadBufferSize    int           `yaml:"read_buffer_size"`   // 读缓冲区大小
	WriteBufferSize   int           `yaml:"write_buffer_size"`  // 写缓冲区大小
}

// TTSConfig 语音合成配置
type TTSConfig struct {
	Path    string        `yaml:"path"`    // 相对后端地址的路径
	URL     string        `yaml:"url"`     // 绝对地址，设置后优先于path
	Timeout time.Duration `yaml:"timeout"` // 请求超时时间
}

// AudioConfig 音频播放配置
type AudioConfig struct {
	Player []string `yaml:"player"` // 播放命令，音频文件路径作为最后一个参数
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug/info/warn/error
	Format string `yaml:"format"` // console/json
}

// StatusConfig 本地状态服务配置
type StatusConfig struct {
	Addr string `yaml:"addr"` // 监听地址，为空时不启动
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Origin: "http://127.0.0.1:8000",
		},
		WebSocket: WebSocketConfig{
			Path:              "/ws",
			ReconnectInterval: 3 * time.Second,
			HandshakeTimeout:  10 * time.Second,
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
		},
		TTS: TTSConfig{
			Path:    "/tts",
			Timeout: 30 * time.Second,
		},
		ASR:   *NewASRConfig(),
		Audio: AudioConfig{Player: []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		DevServer: *NewDevServerConfig(),
	}
}

// Load 从文件加载配置，filename为空时只使用默认值
func Load(filename string) (*Config, error) {
	config := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyDefaults(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return config, nil
}

// LoadOptional 配置文件不存在时回退到默认值
func LoadOptional(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return Load("")
	}
	return Load(filename)
}

// applyDefaults 设置默认值
func applyDefaults(config *Config) {
	if config.WebSocket.Path == "" {
		config.WebSocket.Path = "/ws"
	}
	if config.WebSocket.ReconnectInterval == 0 {
		config.WebSocket.ReconnectInterval = 3 * time.Second
	}
	if config.WebSocket.HandshakeTimeout == 0 {
		config.WebSocket.HandshakeTimeout = 10 * time.Second
	}
	if config.WebSocket.ReadBufferSize == 0 {
		config.WebSocket.ReadBufferSize = 1024
	}
	if config.WebSocket.WriteBufferSize == 0 {
		config.WebSocket.WriteBufferSize = 1024
	}
	if config.TTS.Path == "" && config.TTS.URL == "" {
		config.TTS.Path = "/tts"
	}
	if config.TTS.Timeout == 0 {
		config.TTS.Timeout = 30 * time.Second
	}
	if config.ASR.Language == "" {
		config.ASR.Language = "zh-CN"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
}

// validateConfig 验证配置是否有效
func validateConfig(config *Config) error {
	// 验证后端地址
	if _, err := parseOrigin(config.Server.Origin); err != nil {
		return err
	}

	// 验证WebSocket配置
	if !strings.HasPrefix(config.WebSocket.Path, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, config.WebSocket.Path)
	}
	if config.WebSocket.ReconnectInterval < 0 {
		return ErrInvalidInterval
	}

	// 验证TTS配置
	if config.TTS.URL != "" {
		u, err := url.Parse(config.TTS.URL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidTTSURL, config.TTS.URL)
		}
	} else if !strings.HasPrefix(config.TTS.Path, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, config.TTS.Path)
	}

	// 验证音频配置
	if len(config.Audio.Player) == 0 || config.Audio.Player[0] == "" {
		return ErrEmptyPlayer
	}

	if err := config.ASR.Validate(); err != nil {
		return err
	}
	return config.DevServer.Validate()
}

// parseOrigin 解析后端地址
func parseOrigin(origin string) (*url.URL, error) {
	if origin == "" {
		return nil, ErrEmptyOrigin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: 不支持的协议 %q", ErrInvalidOrigin, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: 缺少主机地址", ErrInvalidOrigin)
	}
	return u, nil
}

// secure 后端是否使用加密连接
func secure(u *url.URL) bool {
	return u.Scheme == "https" || u.Scheme == "wss"
}

// WebSocketURL 根据后端地址推导WebSocket地址，https对应wss，http对应ws
func (c *Config) WebSocketURL() string {
	u, err := parseOrigin(c.Server.Origin)
	if err != nil {
		return ""
	}
	scheme := "ws"
	if secure(u) {
		scheme = "wss"
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: c.WebSocket.Path}).String()
}

// TTSURL 返回语音合成地址
func (c *Config) TTSURL() string {
	if c.TTS.URL != "" {
		return c.TTS.URL
	}
	u, err := parseOrigin(c.Server.Origin)
	if err != nil {
		return ""
	}
	scheme := "http"
	if secure(u) {
		scheme = "https"
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: c.TTS.Path}).String()
}
