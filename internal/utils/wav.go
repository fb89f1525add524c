package utils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// WAV格式常量
const (
	bitsPerSample  = 16
	audioFormatPCM = 1
	subchunk1Size  = 16
	wavHeaderSize  = 44
)

// PCMToWAV 为16位小端PCM数据加上WAV头
func PCMToWAV(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("PCM数据为空")
	}
	if numChannels <= 0 || numChannels > 2 {
		return nil, errors.New("只支持单声道或双声道")
	}
	if sampleRate <= 0 {
		return nil, errors.New("采样率必须为正数")
	}
	if len(pcm)%(2*numChannels) != 0 {
		return nil, errors.New("PCM数据长度与声道数不匹配")
	}

	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(pcm)

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// Tone 生成单声道正弦波PCM，首尾各10ms淡入淡出避免爆音
func Tone(freq float64, duration time.Duration, sampleRate int) []byte {
	samples := int(duration.Seconds() * float64(sampleRate))
	fade := sampleRate / 100
	pcm := make([]byte, samples*2)

	for i := 0; i < samples; i++ {
		amp := 0.3
		if i < fade {
			amp *= float64(i) / float64(fade)
		} else if samples-i < fade {
			amp *= float64(samples-i) / float64(fade)
		}
		v := int16(amp * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

// WAVDuration 计算WAV数据的播放时长，格式不正确时返回0
func WAVDuration(wav []byte) time.Duration {
	if len(wav) < wavHeaderSize || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0
	}
	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	dataSize := binary.LittleEndian.Uint32(wav[40:44])
	if byteRate == 0 {
		return 0
	}
	return time.Duration(float64(dataSize) / float64(byteRate) * float64(time.Second))
}
