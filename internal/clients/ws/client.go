// Package ws 提供带自动重连的聊天WebSocket客户端
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai_voice_chat/internal/metrics"
	"ai_voice_chat/internal/models"
)

// 连接相关错误
var (
	ErrNotConnected = errors.New("消息发送失败：未连接到服务器")
	ErrConnection   = errors.New("连接错误")
	ErrClosed       = errors.New("WebSocket客户端已关闭")
)

// Conn WebSocket连接，*websocket.Conn 满足该接口
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc 建立一条新连接
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Timer 可取消的定时器
type Timer interface {
	Stop() bool
}

// AfterFunc 在d之后执行f
type AfterFunc func(d time.Duration, f func()) Timer

// Config WebSocket客户端配置
type Config struct {
	URL               string        // WebSocket服务器地址
	ReconnectInterval time.Duration // 重连间隔，固定不递增
	HandshakeTimeout  time.Duration // 握手超时时间
	ReadBufferSize    int           // 读缓冲区大小
	WriteBufferSize   int           // 写缓冲区大小
}

// Option 客户端选项
type Option func(*Client)

// WithDialer 替换拨号函数
func WithDialer(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// WithAfterFunc 替换重连定时器
func WithAfterFunc(afterFunc AfterFunc) Option {
	return func(c *Client) { c.afterFunc = afterFunc }
}

// WithLogger 设置日志
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// DefaultDialer 基于gorilla/websocket的拨号函数
func DefaultDialer(config Config) DialFunc {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: config.HandshakeTimeout,
		ReadBufferSize:   config.ReadBufferSize,
		WriteBufferSize:  config.WriteBufferSize,
	}
	return func(ctx context.Context, url string) (Conn, error) {
		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

type eventKind int

const (
	evConnect eventKind = iota
	evDialed
	evFrame
	evClosed
	evSend
	evReconnect
	evClose
)

// event 事件循环中处理的事件，gen标识所属连接
type event struct {
	kind  eventKind
	gen   uint64
	seq   uint64
	conn  Conn
	data  []byte
	err   error
	msg   models.Message
	reply chan error
}

// Client 聊天WebSocket客户端
//
// 所有状态转换都在一个事件循环中完成：连接、收发、关闭和重连定时器都以事件
// 的形式投递。观察者回调也在事件循环中按顺序执行，回调中不能调用Send或Close。
type Client struct {
	config    Config
	dial      DialFunc
	afterFunc AfterFunc
	logger    zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	mailbox   chan event
	done      chan struct{}
	closeOnce sync.Once

	mu              sync.RWMutex
	state           models.ConnectionState
	stateHandlers   []func(models.ConnectionState)
	messageHandlers []func(models.Message)

	// 以下字段只在事件循环中访问
	conn       Conn
	generation uint64
	timer      Timer
	timerSeq   uint64
}

// NewClient 创建新的WebSocket客户端并启动事件循环
func NewClient(config Config, opts ...Option) *Client {
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = 3 * time.Second
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: config,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		logger:  zerolog.Nop(),
		ctx:     ctx,
		cancel:  cancel,
		mailbox: make(chan event),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		c.dial = DefaultDialer(config)
	}
	c.logger = c.logger.With().Str("component", "ws").Logger()

	go c.loop()
	return c
}

// OnState 注册连接状态观察者
func (c *Client) OnState(handler func(models.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandlers = append(c.stateHandlers, handler)
}

// OnMessage 注册入站消息观察者
func (c *Client) OnMessage(handler func(models.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageHandlers = append(c.messageHandlers, handler)
}

// State 返回当前连接状态
func (c *Client) State() models.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connect 连接到WebSocket服务器，已连接或正在连接时不做任何事
//
// 连接结果通过状态观察者通知，失败时按固定间隔自动重连。
func (c *Client) Connect() error {
	if !c.post(event{kind: evConnect}) {
		return ErrClosed
	}
	return nil
}

// Send 发送消息到服务器，未连接时返回ErrNotConnected，不缓存消息
func (c *Client) Send(msg models.Message) error {
	reply := make(chan error, 1)
	if !c.post(event{kind: evSend, msg: msg, reply: reply}) {
		return ErrNotConnected
	}
	return <-reply
}

// Close 关闭客户端：取消重连定时器并关闭连接，之后不再通知观察者
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		reply := make(chan error, 1)
		c.mailbox <- event{kind: evClose, reply: reply}
		err = <-reply
		c.cancel()
		<-c.done
	})
	return err
}

// post 投递事件，事件循环退出后返回false
//
// mailbox不带缓冲，投递成功即表示事件已被循环接收。
func (c *Client) post(ev event) bool {
	select {
	case c.mailbox <- ev:
		return true
	case <-c.done:
		return false
	}
}

// loop 事件循环
func (c *Client) loop() {
	defer close(c.done)
	for ev := range c.mailbox {
		switch ev.kind {
		case evConnect:
			c.handleConnect()
		case evDialed:
			c.handleDialed(ev)
		case evFrame:
			c.handleFrame(ev)
		case evClosed:
			c.handleClosed(ev)
		case evSend:
			ev.reply <- c.handleSend(ev.msg)
		case evReconnect:
			if c.timer == nil || ev.seq != c.timerSeq {
				continue
			}
			c.timer = nil
			c.logger.Info().Msg("尝试重新连接...")
			c.handleConnect()
		case evClose:
			ev.reply <- c.handleClose()
			return
		}
	}
}

// handleConnect 发起拨号
func (c *Client) handleConnect() {
	if c.State().Status != models.StatusDisconnected {
		return
	}

	c.generation++
	gen := c.generation
	c.setState(models.StatusConnecting, c.State().LastError, true)

	c.logger.Info().Str("url", c.config.URL).Msg("正在连接WebSocket服务器")
	go func() {
		conn, err := c.dial(c.ctx, c.config.URL)
		if !c.post(event{kind: evDialed, gen: gen, conn: conn, err: err}) && conn != nil {
			conn.Close()
		}
	}()
}

// handleDialed 处理拨号结果
func (c *Client) handleDialed(ev event) {
	if ev.gen != c.generation {
		if ev.conn != nil {
			ev.conn.Close()
		}
		return
	}

	if ev.err != nil {
		metrics.ConnectAttempts.WithLabelValues("error").Inc()
		c.logger.Error().Err(ev.err).Msg("WebSocket连接失败")
		// 未能打开的连接同样视为一次关闭
		c.setState(models.StatusDisconnected, ErrConnection.Error(), true)
		c.scheduleReconnect()
		return
	}

	metrics.ConnectAttempts.WithLabelValues("ok").Inc()
	c.conn = ev.conn
	c.stopTimer()
	c.setState(models.StatusConnected, "", true)
	c.logger.Info().Str("url", c.config.URL).Msg("WebSocket连接已建立")

	go c.readLoop(ev.gen, ev.conn)
}

// readLoop 接收消息循环，每条连接一个
func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.post(event{kind: evClosed, gen: gen, err: err})
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !c.post(event{kind: evFrame, gen: gen, data: data}) {
			return
		}
	}
}

// handleFrame 解析入站帧，格式不正确的帧直接丢弃
func (c *Client) handleFrame(ev event) {
	if ev.gen != c.generation {
		return
	}

	msg, err := DecodeFrame(ev.data)
	if err != nil {
		metrics.Frames.WithLabelValues("in", "dropped").Inc()
		c.logger.Debug().Err(err).Msg("消息解析错误")
		return
	}
	metrics.Frames.WithLabelValues("in", "ok").Inc()

	c.mu.RLock()
	handlers := append([]func(models.Message){}, c.messageHandlers...)
	c.mu.RUnlock()
	for _, handler := range handlers {
		handler(msg)
	}
}

// handleClosed 处理连接关闭，安排一次重连
func (c *Client) handleClosed(ev event) {
	if ev.gen != c.generation || c.conn == nil {
		return
	}

	c.conn.Close()
	c.conn = nil

	lastError := c.State().LastError
	if websocket.IsCloseError(ev.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info().Msg("WebSocket连接已关闭")
	} else {
		c.logger.Error().Err(ev.err).Msg("WebSocket错误")
		lastError = ErrConnection.Error()
	}

	c.setState(models.StatusDisconnected, lastError, true)
	c.scheduleReconnect()
}

// handleSend 在事件循环中写入一帧
func (c *Client) handleSend(msg models.Message) error {
	state := c.State()
	if state.Status != models.StatusConnected || c.conn == nil {
		metrics.Frames.WithLabelValues("out", "rejected").Inc()
		c.logger.Error().Msg("WebSocket未连接")
		c.setState(state.Status, ErrNotConnected.Error(), true)
		return ErrNotConnected
	}

	data, err := EncodeFrame(msg)
	if err != nil {
		return fmt.Errorf("消息序列化失败: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		metrics.Frames.WithLabelValues("out", "error").Inc()
		c.logger.Error().Err(err).Msg("消息发送失败")
		c.setState(state.Status, ErrConnection.Error(), true)
		// 关闭连接后由读循环投递关闭事件并触发重连
		c.conn.Close()
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	metrics.Frames.WithLabelValues("out", "ok").Inc()
	return nil
}

// handleClose 释放定时器和连接
func (c *Client) handleClose() error {
	c.stopTimer()

	var err error
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = c.conn.Close()
		c.conn = nil
	}
	c.generation++
	c.setState(models.StatusDisconnected, c.State().LastError, false)
	c.logger.Info().Msg("WebSocket客户端已关闭")
	return err
}

// scheduleReconnect 安排一次重连，已有待执行的重连时不重复安排
func (c *Client) scheduleReconnect() {
	if c.timer != nil {
		return
	}

	metrics.Reconnects.Inc()
	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.afterFunc(c.config.ReconnectInterval, func() {
		c.post(event{kind: evReconnect, seq: seq})
	})
	c.logger.Debug().Dur("delay", c.config.ReconnectInterval).Msg("已安排重连")
}

// stopTimer 取消待执行的重连
func (c *Client) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

// setState 更新状态，notify为true时通知观察者
func (c *Client) setState(status models.ConnectionStatus, lastError string, notify bool) {
	c.mu.Lock()
	c.state = models.ConnectionState{Status: status, LastError: lastError}
	state := c.state
	handlers := append([]func(models.ConnectionState){}, c.stateHandlers...)
	c.mu.Unlock()

	if !notify {
		return
	}
	for _, handler := range handlers {
		handler(state)
	}
}
