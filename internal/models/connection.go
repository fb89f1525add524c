package models

// ConnectionStatus 连接状态
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// MarshalText 以字符串形式输出状态
func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConnectionState 连接状态快照，只由连接客户端修改
type ConnectionState struct {
	Status    ConnectionStatus `json:"status"`
	LastError string           `json:"lastError,omitempty"` // 空字符串表示无错误
}

// Connected 是否已连接
func (s ConnectionState) Connected() bool {
	return s.Status == StatusConnected
}
