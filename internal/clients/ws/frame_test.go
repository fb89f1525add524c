package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_voice_chat/internal/models"
)

func TestEncodeFrame(t *testing.T) {
	data, err := EncodeFrame(models.Message{Role: models.RoleUser, Content: "你好 <b>"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"你好 <b>"}`, string(data))
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    models.Message
		wantErr bool
	}{
		{"助手消息", `{"role":"assistant","content":"hi"}`, models.Message{Role: models.RoleAssistant, Content: "hi"}, false},
		{"多余字段", `{"role":"user","content":"a","time":"now"}`, models.Message{Role: models.RoleUser, Content: "a"}, false},
		{"非JSON", `hello`, models.Message{}, true},
		{"null", `null`, models.Message{}, true},
		{"数组", `[1,2]`, models.Message{}, true},
		{"缺少内容", `{"role":"assistant"}`, models.Message{}, true},
		{"空内容", `{"role":"assistant","content":""}`, models.Message{}, true},
		{"未知角色", `{"role":"system","content":"x"}`, models.Message{}, true},
		{"类型错误", `{"role":1,"content":"x"}`, models.Message{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFrame([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedFrame)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
