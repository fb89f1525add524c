package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv 加载.env文件到环境变量，已存在的环境变量不会被覆盖
func LoadDotEnv(filenames ...string) error {
	return godotenv.Load(filenames...)
}

// ApplyEnv 使用 VOICECHAT_* 环境变量覆盖配置，并重新验证
func ApplyEnv(config *Config) error {
	config.Server.Origin = getEnvOrDefault("VOICECHAT_ORIGIN", config.Server.Origin)
	config.WebSocket.Path = getEnvOrDefault("VOICECHAT_WS_PATH", config.WebSocket.Path)
	config.TTS.URL = getEnvOrDefault("VOICECHAT_TTS_URL", config.TTS.URL)
	config.ASR.URL = getEnvOrDefault("VOICECHAT_ASR_URL", config.ASR.URL)
	config.ASR.Language = getEnvOrDefault("VOICECHAT_ASR_LANGUAGE", config.ASR.Language)
	config.Log.Level = getEnvOrDefault("VOICECHAT_LOG_LEVEL", config.Log.Level)
	config.Log.Format = getEnvOrDefault("VOICECHAT_LOG_FORMAT", config.Log.Format)
	config.Status.Addr = getEnvOrDefault("VOICECHAT_STATUS_ADDR", config.Status.Addr)
	config.DevServer.Host = getEnvOrDefault("VOICECHAT_DEV_HOST", config.DevServer.Host)
	config.DevServer.Ollama.Host = getEnvOrDefault("VOICECHAT_OLLAMA_HOST", config.DevServer.Ollama.Host)
	config.DevServer.Ollama.Model = getEnvOrDefault("VOICECHAT_OLLAMA_MODEL", config.DevServer.Ollama.Model)

	if player := strings.Fields(os.Getenv("VOICECHAT_PLAYER")); len(player) > 0 {
		config.Audio.Player = player
	}

	interval, err := parseOptionalDurationEnv("VOICECHAT_RECONNECT_INTERVAL")
	if err != nil {
		return err
	}
	if interval != nil {
		config.WebSocket.ReconnectInterval = *interval
	}

	port, err := parseOptionalIntEnv("VOICECHAT_DEV_PORT")
	if err != nil {
		return err
	}
	if port != nil {
		config.DevServer.Port = *port
	}

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
