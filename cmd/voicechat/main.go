package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/peterh/liner"
	"github.com/rs/zerolog"

	"ai_voice_chat/internal/config"
	"ai_voice_chat/internal/handlers"
	"ai_voice_chat/internal/logger"
	"ai_voice_chat/internal/middleware"
	"ai_voice_chat/internal/routes"
	"ai_voice_chat/internal/servers"
)

func main() {
	configFile := flag.String("config", "config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", "环境变量文件路径")
	flag.Parse()

	// 加载配置
	if _, err := os.Stat(*envFile); err == nil {
		if err := config.LoadDotEnv(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "加载环境变量文件失败: %v\n", err)
			os.Exit(1)
		}
	}
	cfg, err := config.LoadOptional(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, log, os.Stdout)
	defer a.Close()

	if cfg.Status.Addr != "" {
		go runStatusServer(ctx, a, log)
	}

	log.Info().Str("url", cfg.WebSocketURL()).Msg("语音聊天客户端启动中...")
	if err := a.client.Connect(); err != nil {
		log.Fatal().Err(err).Msg("启动连接失败")
	}

	if err := runREPL(ctx, a); err != nil {
		log.Error().Err(err).Msg("读取输入失败")
	}
	log.Info().Msg("语音聊天客户端已退出")
}

// runStatusServer 启动本地状态服务
func runStatusServer(ctx context.Context, a *app, log zerolog.Logger) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	middleware.Setup(r, log)
	routes.RegisterStatusRoutes(r, handlers.NewStatusHandler(a.store, a.output, a.input))

	if err := servers.NewServer(a.cfg.Status.Addr, r, log).Run(ctx); err != nil {
		log.Error().Err(err).Msg("状态服务异常退出")
	}
}

// runREPL 读取用户输入直到退出
func runREPL(ctx context.Context, a *app) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	a.printf("%s\n", helpText)

	inputs := make(chan string)
	errs := make(chan error, 1)
	go func() {
		for {
			input, err := line.Prompt("> ")
			if err != nil {
				errs <- err
				return
			}
			if strings.TrimSpace(input) != "" {
				line.AppendHistory(input)
			}
			select {
			case inputs <- input:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case input := <-inputs:
			if a.handleLine(ctx, input) {
				return nil
			}
		}
	}
}
