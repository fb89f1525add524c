// framedump 从pcap抓包文件中解析聊天WebSocket帧，用于排查线上协议问题
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"ai_voice_chat/internal/clients/ws"
	"ai_voice_chat/internal/config"
	"ai_voice_chat/internal/logger"
	"ai_voice_chat/internal/utils"
)

func main() {
	file := flag.String("file", "", "pcap抓包文件路径")
	level := flag.String("log-level", "info", "日志级别")
	flag.Parse()

	log := logger.New(config.LogConfig{Level: *level, Format: "console"})
	if *file == "" {
		log.Fatal().Msg("请通过 -file 指定抓包文件")
	}

	reader, err := utils.OpenPCAP(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("打开抓包文件失败")
	}
	defer reader.Close()

	capture, err := reader.ReadAll()
	if err != nil {
		log.Error().Err(err).Msg("抓包文件未完整读取")
	}
	dump(os.Stdout, capture)
}

// dump 输出握手和帧，文本帧按聊天协议解码
func dump(w io.Writer, capture *utils.Capture) {
	fmt.Fprintf(w, "数据包: %d, 握手: %d, 帧: %d\n", capture.Packets, len(capture.Handshakes), len(capture.Frames))

	for _, hs := range capture.Handshakes {
		fmt.Fprintf(w, "%s 握手 %s -> %s %s (version=%s)\n",
			hs.Timestamp.Format("15:04:05.000"), hs.Src, hs.Dst, hs.Path, hs.Version)
	}

	for _, frame := range capture.Frames {
		ts := frame.Timestamp.Format("15:04:05.000")
		if !frame.IsText() {
			fmt.Fprintf(w, "%s %s -> %s opcode=%#x len=%d\n", ts, frame.Src, frame.Dst, frame.Opcode, len(frame.Payload))
			continue
		}
		msg, err := ws.DecodeFrame(frame.Payload)
		if err != nil {
			fmt.Fprintf(w, "%s %s -> %s 无效消息: %v\n", ts, frame.Src, frame.Dst, err)
			continue
		}
		fmt.Fprintf(w, "%s %s -> %s %s: %s\n", ts, frame.Src, frame.Dst, msg.Role, msg.Content)
	}
}
