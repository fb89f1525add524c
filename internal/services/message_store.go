package services

import (
	"sync"

	"ai_voice_chat/internal/models"
)

// Snapshot 消息存储的一致快照
type Snapshot struct {
	Messages   []models.Message       `json:"messages"`
	Connection models.ConnectionState `json:"connection"`
	Error      string                 `json:"error,omitempty"` // 空字符串表示无错误
}

// subscriber 快照订阅者
type subscriber struct {
	id uint64
	fn func(Snapshot)
}

// MessageStore 有序的对话记录及连接、错误状态，界面渲染的唯一数据源
//
// 修改和通知都是同步的：调用返回时所有订阅者都已收到修改后的快照。
// 订阅者回调中可以读取存储，但不能修改存储。
type MessageStore struct {
	notifyMu sync.Mutex // 串行化修改与通知

	mu          sync.RWMutex
	messages    []models.Message
	connection  models.ConnectionState
	err         string
	subscribers []subscriber
	nextID      uint64
}

// NewMessageStore 创建新的消息存储
func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make([]models.Message, 0),
	}
}

// Append 追加消息到末尾，不拒绝、不去重
func (s *MessageStore) Append(msg models.Message) {
	s.mutate(func() {
		s.messages = append(s.messages, msg)
	})
}

// Clear 清空对话记录
func (s *MessageStore) Clear() {
	s.mutate(func() {
		s.messages = make([]models.Message, 0)
	})
}

// SetConnectionState 更新连接状态
func (s *MessageStore) SetConnectionState(state models.ConnectionState) {
	s.mutate(func() {
		s.connection = state
	})
}

// SetError 更新错误状态，空字符串表示清除
func (s *MessageStore) SetError(err string) {
	s.mutate(func() {
		s.err = err
	})
}

// Messages 返回对话记录的副本
func (s *MessageStore) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.messages...)
}

// Len 对话记录条数
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// At 返回第index条消息
func (s *MessageStore) At(index int) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.messages) {
		return models.Message{}, false
	}
	return s.messages[index], true
}

// Snapshot 返回当前快照
func (s *MessageStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe 订阅修改通知，返回取消订阅函数
func (s *MessageStore) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// mutate 执行修改并按注册顺序通知订阅者
func (s *MessageStore) mutate(change func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	change()
	snap := s.snapshotLocked()
	subs := append([]subscriber(nil), s.subscribers...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
}

func (s *MessageStore) snapshotLocked() Snapshot {
	return Snapshot{
		Messages:   append([]models.Message{}, s.messages...),
		Connection: s.connection,
		Error:      s.err,
	}
}
