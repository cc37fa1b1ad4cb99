package a2a

import "encoding/json"

// AgentCard 是 A2A 代理在 well-known 地址公布的元数据
type AgentCard struct {
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	URL             string        `json:"url"`
	Version         string        `json:"version,omitempty"`
	ProtocolVersion string        `json:"protocolVersion,omitempty"`
	Skills          []AgentSkill  `json:"skills"`
	Capabilities    *Capabilities `json:"capabilities,omitempty"`
}

// AgentSkill 是代理卡上声明的一项技能，对应 MCP 的一个工具
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ToolName 优先使用技能 ID
func (s AgentSkill) ToolName() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Name
}

// Capabilities 声明可选协议特性
type Capabilities struct {
	Streaming         bool `json:"streaming,omitempty"`
	PushNotifications bool `json:"pushNotifications,omitempty"`
}

// Validate 检查代理卡必填字段
func (c *AgentCard) Validate() error {
	if c.Name == "" {
		return ErrMissingName
	}
	return nil
}

// Part 是消息或产物中的一段内容
type Part struct {
	Kind string          `json:"kind"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message 是一条 A2A 消息
type Message struct {
	Kind      string `json:"kind"`
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
}

// TaskState 任务状态
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateCanceled      TaskState = "canceled"
)

// Failed 判断任务是否以失败告终
func (s TaskState) Failed() bool {
	return s == TaskStateFailed || s == TaskStateRejected || s == TaskStateCanceled
}

// TaskStatus 任务状态及附带消息
type TaskStatus struct {
	State   TaskState `json:"state"`
	Message *Message  `json:"message,omitempty"`
}

// Artifact 任务产出
type Artifact struct {
	ArtifactID string `json:"artifactId,omitempty"`
	Name       string `json:"name,omitempty"`
	Parts      []Part `json:"parts"`
}

// sendResult 是 message/send 的返回：Task 或 Message，由 kind 区分
type sendResult struct {
	Kind      string     `json:"kind"`
	ID        string     `json:"id,omitempty"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	Parts     []Part     `json:"parts,omitempty"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type sendParams struct {
	Message Message `json:"message"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}
