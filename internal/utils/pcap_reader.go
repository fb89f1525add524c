package utils

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// WebSocket操作码
const (
	OpText   = 0x1
	OpBinary = 0x2
	OpClose  = 0x8
	OpPing   = 0x9
	OpPong   = 0xA
)

// ErrShortFrame TCP负载不足一个完整的WebSocket帧
var ErrShortFrame = errors.New("WebSocket帧不完整")

// WebSocketHandshake WebSocket握手信息
type WebSocketHandshake struct {
	Timestamp time.Time
	Src       string
	Dst       string
	Path      string
	Key       string
	Version   string
	Protocol  string
}

// WebSocketFrame 抓包中的一个WebSocket帧，Payload已去掩码
type WebSocketFrame struct {
	Timestamp time.Time
	Src       string
	Dst       string
	Opcode    byte
	Fin       bool
	Masked    bool
	Payload   []byte
}

// IsText 是否为文本帧
func (f WebSocketFrame) IsText() bool {
	return f.Opcode == OpText
}

// Capture 一个抓包文件中的WebSocket流量
type Capture struct {
	Packets    int
	Handshakes []WebSocketHandshake
	Frames     []WebSocketFrame
}

// PCAPReader 用于读取pcap抓包文件，纯Go实现，不依赖libpcap
type PCAPReader struct {
	reader *pcapgo.Reader
	closer io.Closer
}

// OpenPCAP 打开pcap文件
func OpenPCAP(filename string) (*PCAPReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("打开PCAP文件失败: %w", err)
	}
	r, err := NewPCAPReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewPCAPReader 从r读取pcap数据
func NewPCAPReader(r io.Reader) (*PCAPReader, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("解析PCAP文件头失败: %w", err)
	}
	return &PCAPReader{reader: reader}, nil
}

// Close 关闭PCAP读取器
func (r *PCAPReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// ReadAll 读取全部数据包，提取握手和WebSocket帧
//
// 只解析从TCP负载起始处对齐的帧，不做TCP流重组。
func (r *PCAPReader) ReadAll() (*Capture, error) {
	capture := &Capture{}
	source := gopacket.NewPacketSource(r.reader, r.reader.LinkType())

	for {
		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			return capture, nil
		}
		if err != nil {
			return capture, fmt.Errorf("读取数据包失败: %w", err)
		}
		capture.Packets++

		tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		if !ok || len(tcp.Payload) == 0 || packet.NetworkLayer() == nil {
			continue
		}

		flow := packet.NetworkLayer().NetworkFlow()
		src := fmt.Sprintf("%s:%d", flow.Src(), tcp.SrcPort)
		dst := fmt.Sprintf("%s:%d", flow.Dst(), tcp.DstPort)
		ts := packet.Metadata().Timestamp

		if handshake, ok := parseWebSocketHandshake(tcp.Payload); ok {
			handshake.Timestamp, handshake.Src, handshake.Dst = ts, src, dst
			capture.Handshakes = append(capture.Handshakes, handshake)
			continue
		}
		if strings.HasPrefix(string(tcp.Payload), "HTTP/1.1") {
			continue
		}

		for data := tcp.Payload; len(data) > 0; {
			frame, n, err := ParseWebSocketFrame(data)
			if err != nil {
				break
			}
			frame.Timestamp, frame.Src, frame.Dst = ts, src, dst
			capture.Frames = append(capture.Frames, frame)
			data = data[n:]
		}
	}
}

// ParseWebSocketFrame 解析data开头的一个WebSocket帧，返回帧和占用的字节数
func ParseWebSocketFrame(data []byte) (WebSocketFrame, int, error) {
	if len(data) < 2 {
		return WebSocketFrame{}, 0, ErrShortFrame
	}
	if data[0]&0x70 != 0 {
		return WebSocketFrame{}, 0, fmt.Errorf("不支持的扩展位: %#x", data[0])
	}

	frame := WebSocketFrame{
		Fin:    data[0]&0x80 != 0,
		Opcode: data[0] & 0x0F,
		Masked: data[1]&0x80 != 0,
	}
	switch frame.Opcode {
	case 0x0, OpText, OpBinary, OpClose, OpPing, OpPong:
	default:
		return WebSocketFrame{}, 0, fmt.Errorf("无效的操作码: %#x", frame.Opcode)
	}

	offset := 2
	length := uint64(data[1] & 0x7F)
	switch length {
	case 126:
		if len(data) < offset+2 {
			return WebSocketFrame{}, 0, ErrShortFrame
		}
		length = uint64(binary.BigEndian.Uint16(data[offset:]))
		offset += 2
	case 127:
		if len(data) < offset+8 {
			return WebSocketFrame{}, 0, ErrShortFrame
		}
		length = binary.BigEndian.Uint64(data[offset:])
		offset += 8
	}

	var mask []byte
	if frame.Masked {
		if len(data) < offset+4 {
			return WebSocketFrame{}, 0, ErrShortFrame
		}
		mask = data[offset : offset+4]
		offset += 4
	}
	if uint64(len(data)-offset) < length {
		return WebSocketFrame{}, 0, ErrShortFrame
	}

	end := offset + int(length)
	frame.Payload = make([]byte, length)
	copy(frame.Payload, data[offset:end])
	if mask != nil {
		for i := range frame.Payload {
			frame.Payload[i] ^= mask[i%4]
		}
	}
	return frame, end, nil
}

// parseWebSocketHandshake 解析WebSocket升级请求
func parseWebSocketHandshake(payload []byte) (WebSocketHandshake, bool) {
	if !strings.HasPrefix(string(payload), "GET ") {
		return WebSocketHandshake{}, false
	}
	req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(string(payload))))
	if err != nil || !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		return WebSocketHandshake{}, false
	}
	return WebSocketHandshake{
		Path:     req.URL.Path,
		Key:      req.Header.Get("Sec-WebSocket-Key"),
		Version:  req.Header.Get("Sec-WebSocket-Version"),
		Protocol: req.Header.Get("Sec-WebSocket-Protocol"),
	}, true
}
