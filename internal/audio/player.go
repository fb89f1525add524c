// Package audio 播放合成得到的音频
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// ErrEmptyAudio 没有可播放的音频数据
var ErrEmptyAudio = errors.New("音频数据为空")

// Player 将一段音频交给播放设备
type Player interface {
	// Play 开始播放并立即返回播放句柄
	Play(ctx context.Context, data []byte) (Playback, error)
}

// Playback 一次正在进行的播放
type Playback interface {
	// Done 播放结束（自然结束或被停止）时关闭
	Done() <-chan struct{}
	// Err 播放结束后的错误，被停止时为nil
	Err() error
	// Stop 停止播放并释放资源，可重复调用
	Stop()
}

// CommandPlayer 通过外部命令播放音频，音频先写入临时文件，文件路径作为最后一个参数
type CommandPlayer struct {
	Command []string
	TempDir string
	Logger  zerolog.Logger
}

// NewCommandPlayer 创建命令行播放器
func NewCommandPlayer(command []string, logger zerolog.Logger) *CommandPlayer {
	return &CommandPlayer{
		Command: command,
		Logger:  logger.With().Str("component", "player").Logger(),
	}
}

// Play 写入临时文件并启动播放命令
func (p *CommandPlayer) Play(ctx context.Context, data []byte) (Playback, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	if len(p.Command) == 0 {
		return nil, errors.New("未配置播放命令")
	}

	file, err := os.CreateTemp(p.TempDir, "voicechat-*"+extension(data))
	if err != nil {
		return nil, fmt.Errorf("创建临时文件失败: %w", err)
	}
	path := file.Name()
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("写入音频失败: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("写入音频失败: %w", err)
	}

	args := append(append([]string{}, p.Command[1:]...), path)
	cmd := exec.Command(p.Command[0], args...)
	if err := cmd.Start(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("启动播放命令失败: %w", err)
	}

	pb := &commandPlayback{
		cmd:  cmd,
		path: path,
		done: make(chan struct{}),
	}
	p.Logger.Debug().Str("file", path).Int("bytes", len(data)).Msg("开始播放")

	go pb.wait(p.Logger)
	go func() {
		select {
		case <-ctx.Done():
			pb.Stop()
		case <-pb.done:
		}
	}()
	return pb, nil
}

// commandPlayback 一个播放进程
type commandPlayback struct {
	cmd  *exec.Cmd
	path string
	done chan struct{}

	mu      sync.Mutex
	stopped bool
	err     error
}

// wait 等待进程退出后删除临时文件
func (pb *commandPlayback) wait(logger zerolog.Logger) {
	err := pb.cmd.Wait()
	os.Remove(pb.path)

	pb.mu.Lock()
	if !pb.stopped && err != nil {
		pb.err = fmt.Errorf("播放命令异常退出: %w", err)
		logger.Error().Err(err).Msg("播放失败")
	}
	pb.mu.Unlock()
	close(pb.done)
}

func (pb *commandPlayback) Done() <-chan struct{} {
	return pb.done
}

func (pb *commandPlayback) Err() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.err
}

// Stop 结束播放进程并等待资源释放
func (pb *commandPlayback) Stop() {
	pb.mu.Lock()
	select {
	case <-pb.done:
		pb.mu.Unlock()
		return
	default:
	}
	if !pb.stopped {
		pb.stopped = true
		if pb.cmd.Process != nil {
			pb.cmd.Process.Kill()
		}
	}
	pb.mu.Unlock()
	<-pb.done
}

// extension 根据文件头推断扩展名，便于播放器识别格式
func extension(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return ".wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return ".ogg"
	case bytes.HasPrefix(data, []byte("fLaC")):
		return ".flac"
	case bytes.HasPrefix(data, []byte("ID3")),
		len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ".mp3"
	default:
		return ".audio"
	}
}
