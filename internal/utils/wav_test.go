package utils

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMToWAV(t *testing.T) {
	pcm := Tone(440, 500*time.Millisecond, 16000)
	require.Len(t, pcm, 16000)

	wav, err := PCMToWAV(pcm, 1, 16000)
	require.NoError(t, err)

	assert.Len(t, wav, wavHeaderSize+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, 500*time.Millisecond, WAVDuration(wav))
}

func TestPCMToWAVInvalid(t *testing.T) {
	_, err := PCMToWAV(nil, 1, 16000)
	assert.Error(t, err)
	_, err = PCMToWAV([]byte{1, 2}, 3, 16000)
	assert.Error(t, err)
	_, err = PCMToWAV([]byte{1, 2}, 1, 0)
	assert.Error(t, err)
	_, err = PCMToWAV([]byte{1, 2, 3}, 1, 16000)
	assert.Error(t, err)
}

func TestToneFades(t *testing.T) {
	pcm := Tone(440, 100*time.Millisecond, 8000)
	first := int16(binary.LittleEndian.Uint16(pcm[0:2]))
	assert.Equal(t, int16(0), first)
	assert.Equal(t, time.Duration(0), WAVDuration([]byte("not a wav")))
}
