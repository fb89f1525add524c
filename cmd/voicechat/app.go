package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"ai_voice_chat/internal/audio"
	"ai_voice_chat/internal/clients/asr"
	"ai_voice_chat/internal/clients/tts"
	"ai_voice_chat/internal/clients/ws"
	"ai_voice_chat/internal/config"
	"ai_voice_chat/internal/models"
	"ai_voice_chat/internal/services"
)

const helpText = `可用命令:
  <文本>       - 发送消息
  /listen      - 开始/停止语音输入
  /stop        - 停止朗读
  /say <序号>  - 重新朗读某条助手消息
  /history     - 显示对话记录
  /clear       - 清空对话记录
  /status      - 显示连接状态
  /help        - 显示帮助
  /quit        - 退出程序`

// app 终端聊天客户端
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	client  *ws.Client
	store   *services.MessageStore
	input   *services.SpeechInput
	output  *services.SpeechOutput
	session *services.ChatSession

	outMu sync.Mutex
	out   io.Writer

	// 订阅回调中使用，store保证回调串行执行
	shown      int
	lastStatus models.ConnectionStatus
	lastError  string
}

// newApp 按配置组装各组件
func newApp(cfg *config.Config, logger zerolog.Logger, out io.Writer) *app {
	client := ws.NewClient(ws.Config{
		URL:               cfg.WebSocketURL(),
		ReconnectInterval: cfg.WebSocket.ReconnectInterval,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
	}, ws.WithLogger(logger))

	var recognizer asr.Recognizer
	if cfg.ASR.Enabled() {
		recognizer = asr.NewWSRecognizer(asr.Config{
			URL:              cfg.ASR.URL,
			Language:         cfg.ASR.Language,
			Continuous:       cfg.ASR.Continuous,
			InterimResults:   cfg.ASR.InterimResults,
			HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		}, logger)
	}

	synth := tts.NewClient(tts.Config{URL: cfg.TTSURL(), Timeout: cfg.TTS.Timeout}, nil)
	player := audio.NewCommandPlayer(cfg.Audio.Player, logger)

	a := &app{
		cfg:    cfg,
		logger: logger,
		client: client,
		store:  services.NewMessageStore(),
		input:  services.NewSpeechInput(recognizer, logger),
		output: services.NewSpeechOutput(synth, player, logger),
		out:    out,
	}
	a.session = services.NewChatSession(a.store, a.client, a.output, logger)
	a.session.Observe(a.client)
	a.session.AttachSpeechInput(a.input)
	a.store.Subscribe(a.render)
	return a
}

// Close 释放连接、识别和播放资源
func (a *app) Close() {
	a.input.Stop()
	a.output.Close()
	a.client.Close()
}

func (a *app) printf(format string, args ...interface{}) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// render 输出新消息和状态变化
func (a *app) render(snap services.Snapshot) {
	if len(snap.Messages) < a.shown {
		a.shown = 0
	}
	for i := a.shown; i < len(snap.Messages); i++ {
		msg := snap.Messages[i]
		if msg.Role == models.RoleUser {
			continue
		}
		a.printf("[%d] 助手: %s\n", i, msg.Content)
	}
	a.shown = len(snap.Messages)

	if snap.Connection.Status != a.lastStatus {
		a.lastStatus = snap.Connection.Status
		a.printf("* 连接状态: %s\n", statusText(snap.Connection.Status))
	}
	if snap.Error != a.lastError {
		a.lastError = snap.Error
		if snap.Error != "" {
			a.printf("! %s\n", snap.Error)
		}
	}
}

// handleLine 处理一行输入，返回true表示退出
func (a *app) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		// 发送失败已记录在状态中
		a.session.SubmitUserText(line)
		return false
	}

	parts := strings.Fields(line)
	switch parts[0] {
	case "/listen":
		a.toggleListening(ctx)
	case "/stop":
		a.output.Stop()
	case "/say":
		if len(parts) != 2 {
			a.printf("用法: /say <序号>\n")
			return false
		}
		index, err := strconv.Atoi(parts[1])
		if err != nil {
			a.printf("无效的序号: %s\n", parts[1])
			return false
		}
		if err := a.session.Replay(index); err != nil {
			a.printf("无法朗读: %v\n", err)
		}
	case "/history":
		for i, msg := range a.store.Messages() {
			a.printf("[%d] %s: %s\n", i, roleText(msg.Role), msg.Content)
		}
	case "/clear":
		a.store.Clear()
	case "/status":
		a.printStatus()
	case "/help":
		a.printf("%s\n", helpText)
	case "/quit", "/exit":
		return true
	default:
		a.printf("未知命令: %s，输入 /help 查看帮助\n", parts[0])
	}
	return false
}

// toggleListening 切换语音输入
func (a *app) toggleListening(ctx context.Context) {
	wasListening := a.input.Listening()
	err := a.input.Toggle(ctx)
	switch {
	case errors.Is(err, services.ErrRecognizerUnavailable):
		a.printf("无法开始语音输入：未配置识别服务\n")
	case err != nil:
		a.printf("语音输入失败: %v\n", err)
	case wasListening:
		a.printf("* 已停止聆听\n")
	default:
		a.printf("* 正在聆听...\n")
	}
}

func (a *app) printStatus() {
	snap := a.store.Snapshot()
	a.printf("连接: %s (%s)\n", statusText(snap.Connection.Status), a.cfg.WebSocketURL())
	if snap.Error != "" {
		a.printf("错误: %s\n", snap.Error)
	}
	a.printf("消息: %d 条\n", len(snap.Messages))
	if session, ok := a.output.Session(); ok {
		a.printf("朗读中: %s\n", session.SourceText)
	}
	if a.input.Listening() {
		a.printf("语音输入: 聆听中\n")
	} else if !a.input.Available() {
		a.printf("语音输入: 不可用\n")
	}
}

func statusText(status models.ConnectionStatus) string {
	switch status {
	case models.StatusConnected:
		return "已连接"
	case models.StatusConnecting:
		return "连接中"
	default:
		return "未连接"
	}
}

func roleText(role models.Role) string {
	if role == models.RoleAssistant {
		return "助手"
	}
	return "我"
}
