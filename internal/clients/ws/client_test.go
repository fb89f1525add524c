package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_voice_chat/internal/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeConn 内存中的连接
type fakeConn struct {
	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	readErr  error
	writeErr error
	written  [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.incoming:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		f.mu.Lock()
		defer f.mu.Unlock()
		return 0, nil, f.readErr
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if messageType == websocket.TextMessage {
		f.written = append(f.written, append([]byte(nil), data...))
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.shutdown(errors.New("use of closed network connection"))
	return nil
}

// shutdown 模拟连接关闭，读循环返回err
func (f *fakeConn) shutdown(err error) {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.readErr = err
		f.mu.Unlock()
		close(f.closed)
	})
}

func (f *fakeConn) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.written))
	for _, w := range f.written {
		out = append(out, string(w))
	}
	return out
}

// fakeDialer 记录拨号次数，failures次之前返回错误
type fakeDialer struct {
	mu       sync.Mutex
	calls    int
	failures int
	conns    []*fakeConn
}

func (d *fakeDialer) dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

// fakeClock 记录安排的定时器，由测试手动触发
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (c *fakeClock) afterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) get(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

// fire 触发第i个定时器
func (c *fakeClock) fire(i int) {
	t := c.get(i)
	t.mu.Lock()
	stopped := t.stopped
	t.stopped = true
	t.mu.Unlock()
	if !stopped {
		t.fn()
	}
}

// stateRecorder 记录状态通知
type stateRecorder struct {
	mu     sync.Mutex
	states []models.ConnectionState
}

func (r *stateRecorder) record(s models.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func newTestClient(t *testing.T, dialer *fakeDialer, clock *fakeClock) *Client {
	t.Helper()
	client := NewClient(Config{URL: "ws://chat.test/ws", ReconnectInterval: 3 * time.Second},
		WithDialer(dialer.dial), WithAfterFunc(clock.afterFunc))
	t.Cleanup(func() { client.Close() })
	return client
}

func waitStatus(t *testing.T, client *Client, status models.ConnectionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return client.State().Status == status
	}, waitFor, tick)
}

func TestConnectAndSend(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, &fakeClock{})

	require.NoError(t, client.Connect())
	waitStatus(t, client, models.StatusConnected)

	require.NoError(t, client.Send(models.Message{Role: models.RoleUser, Content: "hello"}))

	frames := dialer.last().frames()
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"role":"user","content":"hello"}`, frames[0])
	assert.Empty(t, client.State().LastError)
}

func TestConnectIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, &fakeClock{})

	require.NoError(t, client.Connect())
	require.NoError(t, client.Connect())
	waitStatus(t, client, models.StatusConnected)
	require.NoError(t, client.Connect())

	assert.Equal(t, 1, dialer.callCount())
}

func TestSendWhenDisconnected(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, &fakeClock{})
	recorder := &stateRecorder{}
	client.OnState(recorder.record)

	err := client.Send(models.Message{Role: models.RoleUser, Content: "hi"})

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, ErrNotConnected.Error(), client.State().LastError)
	assert.Equal(t, models.StatusDisconnected, client.State().Status)
	assert.Equal(t, 0, dialer.callCount())
	assert.Equal(t, 1, recorder.len())
}

func TestReconnectAfterClose(t *testing.T) {
	tests := []struct {
		name      string
		closeErr  error
		wantError string
	}{
		{
			name:      "正常关闭",
			closeErr:  &websocket.CloseError{Code: websocket.CloseNormalClosure},
			wantError: "",
		},
		{
			name:      "异常关闭",
			closeErr:  &websocket.CloseError{Code: websocket.CloseAbnormalClosure},
			wantError: ErrConnection.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := &fakeDialer{}
			clock := &fakeClock{}
			client := newTestClient(t, dialer, clock)

			require.NoError(t, client.Connect())
			waitStatus(t, client, models.StatusConnected)

			dialer.last().shutdown(tt.closeErr)
			waitStatus(t, client, models.StatusDisconnected)

			assert.Equal(t, tt.wantError, client.State().LastError)
			require.Equal(t, 1, clock.count())
			assert.Equal(t, 3*time.Second, clock.get(0).delay)
			// 定时器触发前不会重连
			assert.Equal(t, 1, dialer.callCount())

			clock.fire(0)
			waitStatus(t, client, models.StatusConnected)

			assert.Equal(t, 2, dialer.callCount())
			assert.Equal(t, 1, clock.count())
			assert.Empty(t, client.State().LastError)
		})
	}
}

func TestDialFailureSchedulesReconnect(t *testing.T) {
	dialer := &fakeDialer{failures: 1}
	clock := &fakeClock{}
	client := newTestClient(t, dialer, clock)

	require.NoError(t, client.Connect())
	require.Eventually(t, func() bool { return clock.count() == 1 }, waitFor, tick)

	state := client.State()
	assert.Equal(t, models.StatusDisconnected, state.Status)
	assert.Equal(t, ErrConnection.Error(), state.LastError)

	clock.fire(0)
	waitStatus(t, client, models.StatusConnected)
	assert.Equal(t, 2, dialer.callCount())
	assert.Equal(t, 1, clock.count())
}

func TestManualConnectCancelsPendingReconnect(t *testing.T) {
	dialer := &fakeDialer{failures: 1}
	clock := &fakeClock{}
	client := newTestClient(t, dialer, clock)

	require.NoError(t, client.Connect())
	require.Eventually(t, func() bool { return clock.count() == 1 }, waitFor, tick)

	require.NoError(t, client.Connect())
	waitStatus(t, client, models.StatusConnected)
	assert.True(t, clock.get(0).stopped)

	// 已取消的定时器回调到达也不会再次拨号
	clock.get(0).fn()
	assert.Equal(t, 2, dialer.callCount())
}

func TestInboundFrames(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, &fakeClock{})

	var mu sync.Mutex
	var received []models.Message
	client.OnMessage(func(msg models.Message) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
	})

	require.NoError(t, client.Connect())
	waitStatus(t, client, models.StatusConnected)

	conn := dialer.last()
	conn.incoming <- []byte(`{"role":"assistant","content":"hi there"}`)
	conn.incoming <- []byte(`not json`)
	conn.incoming <- []byte(`{"role":"assistant"}`)
	conn.incoming <- []byte(`{"role":"","content":"orphan"}`)
	conn.incoming <- []byte(`{"role":"system","content":"x"}`)
	conn.incoming <- []byte(`{"role":"user","content":"echo","time":"2024-01-01 10:00:00"}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.Message{
		{Role: models.RoleAssistant, Content: "hi there"},
		{Role: models.RoleUser, Content: "echo"},
	}, received)
	assert.Equal(t, models.StatusConnected, client.State().Status)
}

func TestWriteFailureClosesConnection(t *testing.T) {
	dialer := &fakeDialer{}
	clock := &fakeClock{}
	client := newTestClient(t, dialer, clock)

	require.NoError(t, client.Connect())
	waitStatus(t, client, models.StatusConnected)

	conn := dialer.last()
	conn.mu.Lock()
	conn.writeErr = errors.New("broken pipe")
	conn.mu.Unlock()

	err := client.Send(models.Message{Role: models.RoleUser, Content: "lost"})
	assert.ErrorIs(t, err, ErrConnection)

	waitStatus(t, client, models.StatusDisconnected)
	require.Eventually(t, func() bool { return clock.count() == 1 }, waitFor, tick)
}

func TestCloseReleasesEverything(t *testing.T) {
	dialer := &fakeDialer{}
	clock := &fakeClock{}
	client := NewClient(Config{URL: "ws://chat.test/ws"},
		WithDialer(dialer.dial), WithAfterFunc(clock.afterFunc))
	recorder := &stateRecorder{}
	client.OnState(recorder.record)

	require.NoError(t, client.Connect())
	waitStatus(t, client, models.StatusConnected)
	dialer.last().shutdown(&websocket.CloseError{Code: websocket.CloseGoingAway})
	require.Eventually(t, func() bool { return clock.count() == 1 }, waitFor, tick)

	notified := recorder.len()
	require.NoError(t, client.Close())

	assert.True(t, clock.get(0).stopped)
	assert.ErrorIs(t, client.Connect(), ErrClosed)
	assert.ErrorIs(t, client.Send(models.Message{Role: models.RoleUser, Content: "x"}), ErrNotConnected)
	assert.NoError(t, client.Close())
	assert.Equal(t, notified, recorder.len())
}

func TestCloseWhileConnected(t *testing.T) {
	dialer := &fakeDialer{}
	client := NewClient(Config{URL: "ws://chat.test/ws"}, WithDialer(dialer.dial))

	require.NoError(t, client.Connect())
	waitStatus(t, client, models.StatusConnected)
	conn := dialer.last()

	require.NoError(t, client.Close())

	select {
	case <-conn.closed:
	default:
		t.Fatal("连接未关闭")
	}
	assert.Equal(t, models.StatusDisconnected, client.State().Status)
}

func TestClientWithServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var accepted atomic.Int32
	received := make(chan string, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if accepted.Add(1) > 1 {
			// 第二条连接保持到客户端关闭
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"role":"assistant","content":"你好"}`))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer server.Close()

	client := NewClient(Config{
		URL:               "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		ReconnectInterval: 50 * time.Millisecond,
	})
	defer client.Close()

	inbound := make(chan models.Message, 4)
	client.OnMessage(func(msg models.Message) { inbound <- msg })

	require.NoError(t, client.Connect())
	waitStatus(t, client, models.StatusConnected)
	require.NoError(t, client.Send(models.Message{Role: models.RoleUser, Content: "hello"}))

	select {
	case frame := <-received:
		assert.JSONEq(t, `{"role":"user","content":"hello"}`, frame)
	case <-time.After(waitFor):
		t.Fatal("服务器未收到消息")
	}

	select {
	case msg := <-inbound:
		assert.Equal(t, models.Message{Role: models.RoleAssistant, Content: "你好"}, msg)
	case <-time.After(waitFor):
		t.Fatal("客户端未收到回复")
	}

	require.Eventually(t, func() bool { return accepted.Load() == 2 }, waitFor, tick)
	waitStatus(t, client, models.StatusConnected)
}
