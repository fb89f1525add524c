package tts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize(t *testing.T) {
	audio := []byte("RIFF....WAVEfmt ")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"text":"你好，世界"}`, string(body))

		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL + "/tts", Timeout: time.Second}, nil)
	got, err := client.Synthesize(context.Background(), "你好，世界")

	require.NoError(t, err)
	assert.Equal(t, audio, got.Data)
	assert.Equal(t, "audio/wav", got.ContentType)
}

func TestSynthesizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error字段", http.StatusBadRequest, `{"error":"文本不能为空"}`, "文本不能为空"},
		{"detail字段", http.StatusInternalServerError, `{"detail":"TTS失败"}`, "TTS失败"},
		{"纯文本", http.StatusBadGateway, "upstream down\n", "upstream down"},
		{"空音频", http.StatusOK, "", "没有音频数据"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := NewClient(Config{URL: server.URL, Timeout: time.Second}, nil)
			audio, err := client.Synthesize(context.Background(), "hi")

			assert.Nil(t, audio)
			assert.ErrorIs(t, err, ErrSynthesis)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestSynthesizeCanceled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(Config{URL: server.URL}, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Synthesize(ctx, "slow")
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, ErrSynthesis)
	case <-time.After(2 * time.Second):
		t.Fatal("取消后请求未返回")
	}
}
