package config

import "errors"

// 配置相关错误
var (
	ErrEmptyOrigin     = errors.New("后端地址不能为空")
	ErrInvalidOrigin   = errors.New("后端地址无效")
	ErrInvalidPath     = errors.New("路径必须以/开头")
	ErrInvalidInterval = errors.New("重连间隔不能为负数")
	ErrInvalidTTSURL   = errors.New("语音合成地址无效")
	ErrEmptyPlayer     = errors.New("播放命令不能为空")
	ErrEmptyLanguage   = errors.New("识别语言不能为空")
	ErrInvalidASRURL   = errors.New("语音识别地址无效")
	ErrEmptyHost       = errors.New("开发服务器地址不能为空")
	ErrEmptyPort       = errors.New("开发服务器端口必须大于0")
)
