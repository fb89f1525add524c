package audio

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("需要sh")
	}
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "voicechat-*"))
	require.NoError(t, err)
	return files
}

func TestCommandPlayerNaturalEnd(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "played")
	player := NewCommandPlayer([]string{"sh", "-c", `cp "$1" "` + out + `"`, "sh"}, zerolog.Nop())
	player.TempDir = dir

	pb, err := player.Play(context.Background(), []byte("RIFFdata"))
	require.NoError(t, err)

	select {
	case <-pb.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("播放未结束")
	}
	assert.NoError(t, pb.Err())

	played, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(played))
	assert.Empty(t, tempFiles(t, dir))
}

func TestCommandPlayerStop(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	player := NewCommandPlayer([]string{"sh", "-c", "exec sleep 30", "sh"}, zerolog.Nop())
	player.TempDir = dir

	pb, err := player.Play(context.Background(), []byte("ID3tag"))
	require.NoError(t, err)
	assert.Len(t, tempFiles(t, dir), 1)

	pb.Stop()
	pb.Stop()

	select {
	case <-pb.Done():
	default:
		t.Fatal("Stop返回后播放应已结束")
	}
	assert.NoError(t, pb.Err())
	assert.Empty(t, tempFiles(t, dir))
}

func TestCommandPlayerContextCancel(t *testing.T) {
	skipWithoutShell(t)
	player := NewCommandPlayer([]string{"sh", "-c", "exec sleep 30", "sh"}, zerolog.Nop())
	player.TempDir = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	pb, err := player.Play(ctx, []byte("OggS"))
	require.NoError(t, err)

	cancel()
	select {
	case <-pb.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("取消后播放未结束")
	}
}

func TestCommandPlayerFailure(t *testing.T) {
	skipWithoutShell(t)
	player := NewCommandPlayer([]string{"sh", "-c", "exit 3", "sh"}, zerolog.Nop())
	player.TempDir = t.TempDir()

	pb, err := player.Play(context.Background(), []byte("RIFF"))
	require.NoError(t, err)
	<-pb.Done()
	assert.Error(t, pb.Err())
}

func TestCommandPlayerInvalid(t *testing.T) {
	player := NewCommandPlayer(nil, zerolog.Nop())
	_, err := player.Play(context.Background(), []byte("RIFF"))
	assert.Error(t, err)

	_, err = player.Play(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyAudio)

	player = NewCommandPlayer([]string{"/nonexistent/player-binary"}, zerolog.Nop())
	player.TempDir = t.TempDir()
	_, err = player.Play(context.Background(), []byte("RIFF"))
	assert.Error(t, err)
	assert.Empty(t, tempFiles(t, player.TempDir))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".wav", extension([]byte("RIFF1234WAVE")))
	assert.Equal(t, ".mp3", extension([]byte("ID3\x03")))
	assert.Equal(t, ".mp3", extension([]byte{0xFF, 0xFB, 0x90}))
	assert.Equal(t, ".ogg", extension([]byte("OggS")))
	assert.Equal(t, ".flac", extension([]byte("fLaC")))
	assert.Equal(t, ".audio", extension([]byte("????")))
}
