package models

import "strings"

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"      // 用户
	RoleAssistant Role = "assistant" // 助手
)

// Valid 判断角色是否合法
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message 对话消息，创建后不再修改
type Message struct {
	Role    Role   `json:"role"`    // 消息角色：user/assistant
	Content string `json:"content"` // 消息内容
}

// NewUserMessage 创建用户消息，内容去除首尾空白
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: strings.TrimSpace(text)}
}

// Valid 角色合法且内容非空
func (m Message) Valid() bool {
	return m.Role.Valid() && m.Content != ""
}

// IsAssistant 是否为助手消息
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}
