package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"ai_voice_chat/internal/config"
	"ai_voice_chat/internal/handlers"
	"ai_voice_chat/internal/logger"
	"ai_voice_chat/internal/middleware"
	"ai_voice_chat/internal/routes"
	"ai_voice_chat/internal/servers"
	"ai_voice_chat/internal/services"
)

func main() {
	configFile := flag.String("config", "config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", "环境变量文件路径")
	flag.Parse()

	if _, err := os.Stat(*envFile); err == nil {
		if err := config.LoadDotEnv(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "加载环境变量文件失败: %v\n", err)
			os.Exit(1)
		}
	}
	cfg, err := config.LoadOptional(*configFile)
	if err == nil {
		err = config.ApplyEnv(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r, err := newEngine(cfg.DevServer, log)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化开发服务器失败")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("addr", cfg.DevServer.Addr()).
		Bool("ollama", cfg.DevServer.Ollama.Host != "").
		Msg("开发服务器启动中...")
	if err := servers.NewServer(cfg.DevServer.Addr(), r, log).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("开发服务器异常退出")
	}
}

// newEngine 组装开发服务器的路由
func newEngine(cfg config.DevServerConfig, log zerolog.Logger) (*gin.Engine, error) {
	ttsHandler, err := handlers.NewTTSHandler(cfg.AudioFile, log)
	if err != nil {
		return nil, err
	}
	dialog := services.NewDialogService(services.NewResponder(cfg), log)

	r := gin.New()
	middleware.Setup(r, log)
	routes.RegisterRoutes(r, routes.DevHandlers{
		Dialog: handlers.NewDialogHandler(dialog, log),
		TTS:    ttsHandler,
		ASR:    handlers.NewASRHandler(cfg.Transcript, log),
	})
	return r, nil
}
