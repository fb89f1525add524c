package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_voice_chat/internal/models"
)

func TestMessageStoreAppendKeepsOrder(t *testing.T) {
	store := NewMessageStore()

	var want []models.Message
	for i := 0; i < 50; i++ {
		msg := models.Message{Role: models.RoleUser, Content: fmt.Sprintf("消息%d", i%7)}
		if i%3 == 0 {
			msg.Role = models.RoleAssistant
		}
		store.Append(msg)
		want = append(want, msg)
	}

	assert.Equal(t, want, store.Messages())
	assert.Equal(t, 50, store.Len())
}

func TestMessageStoreAllowsDuplicates(t *testing.T) {
	store := NewMessageStore()
	msg := models.Message{Role: models.RoleUser, Content: "same"}
	store.Append(msg)
	store.Append(msg)

	assert.Equal(t, []models.Message{msg, msg}, store.Messages())
}

func TestMessageStoreClear(t *testing.T) {
	store := NewMessageStore()
	store.Append(models.Message{Role: models.RoleUser, Content: "a"})
	store.Clear()

	assert.Empty(t, store.Messages())
	_, ok := store.At(0)
	assert.False(t, ok)
}

func TestMessageStoreStatus(t *testing.T) {
	store := NewMessageStore()
	state := models.ConnectionState{Status: models.StatusConnected}

	store.SetConnectionState(state)
	store.SetError("连接错误")

	snap := store.Snapshot()
	assert.Equal(t, state, snap.Connection)
	assert.Equal(t, "连接错误", snap.Error)

	store.SetError("")
	assert.Empty(t, store.Snapshot().Error)
}

func TestMessageStoreReturnsCopies(t *testing.T) {
	store := NewMessageStore()
	store.Append(models.Message{Role: models.RoleUser, Content: "a"})

	messages := store.Messages()
	messages[0].Content = "changed"
	snap := store.Snapshot()
	snap.Messages[0].Content = "changed"

	msg, ok := store.At(0)
	require.True(t, ok)
	assert.Equal(t, "a", msg.Content)
}

func TestMessageStoreSubscribe(t *testing.T) {
	store := NewMessageStore()

	var snapshots []Snapshot
	unsubscribe := store.Subscribe(func(snap Snapshot) {
		// 回调中读取的状态与快照一致
		assert.Equal(t, len(snap.Messages), store.Len())
		snapshots = append(snapshots, snap)
	})

	store.Append(models.Message{Role: models.RoleUser, Content: "hello"})
	require.Len(t, snapshots, 1)
	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "hello"}}, snapshots[0].Messages)

	store.SetError("oops")
	require.Len(t, snapshots, 2)
	assert.Equal(t, "oops", snapshots[1].Error)
	assert.Len(t, snapshots[1].Messages, 1)

	unsubscribe()
	unsubscribe()
	store.Append(models.Message{Role: models.RoleAssistant, Content: "hi"})
	assert.Len(t, snapshots, 2)
}

func TestMessageStoreSubscribersInOrder(t *testing.T) {
	store := NewMessageStore()

	var calls []string
	store.Subscribe(func(Snapshot) { calls = append(calls, "first") })
	unsubscribe := store.Subscribe(func(Snapshot) { calls = append(calls, "second") })
	store.Subscribe(func(Snapshot) { calls = append(calls, "third") })

	store.Clear()
	assert.Equal(t, []string{"first", "second", "third"}, calls)

	calls = nil
	unsubscribe()
	store.Clear()
	assert.Equal(t, []string{"first", "third"}, calls)
}
