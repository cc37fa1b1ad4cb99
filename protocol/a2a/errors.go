package a2a

import "errors"

// 代理卡验证错误.
var (
	// ErrMissingName 表示代理卡缺少名称
	ErrMissingName = errors.New("agent card: missing name")
	// ErrCardNotFound 表示两个 well-known 地址都没有代理卡
	ErrCardNotFound = errors.New("agent card: not found")
)

// A2A 协议错误.
var (
	// ErrRemoteUnavailable 表示远程代理无法访问
	ErrRemoteUnavailable = errors.New("a2a: remote agent unavailable")
	// ErrInvalidMessage 表示响应格式无效
	ErrInvalidMessage = errors.New("a2a: invalid message format")
)
