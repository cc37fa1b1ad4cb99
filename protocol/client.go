package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/BaSui01/adregistry/types"
)

// 协议层错误
var (
	// ErrUnsupportedProtocol 表示没有为该协议注册连接器
	ErrUnsupportedProtocol = errors.New("protocol: unsupported protocol")
	// ErrTaskFailed 表示远端代理报告任务失败
	ErrTaskFailed = errors.New("protocol: task failed")
	// ErrClosed 表示客户端已关闭
	ErrClosed = errors.New("protocol: client closed")
)

// ToolInfo describes one tool (MCP) or skill (A2A) an agent exposes.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AgentInfo is what an agent reports about itself.
type AgentInfo struct {
	Name     string         `json:"name,omitempty"`
	Protocol types.Protocol `json:"protocol"`
	Tools    []ToolInfo     `json:"tools"`
}

// HasTool reports whether a tool with that exact name is exposed.
func (i *AgentInfo) HasTool(name string) bool {
	return slices.ContainsFunc(i.Tools, func(t ToolInfo) bool { return t.Name == name })
}

// ToolNames returns the tool names in listing order.
func (i *AgentInfo) ToolNames() []string {
	names := make([]string, len(i.Tools))
	for j, t := range i.Tools {
		names[j] = t.Name
	}
	return names
}

// TaskResult is the outcome of ExecuteTask. Data holds the structured JSON
// result when the agent returned one; Text is the concatenated text output.
type TaskResult struct {
	Data json.RawMessage `json:"data,omitempty"`
	Text string          `json:"text,omitempty"`
}

// Decode unmarshals Data, falling back to Text when Data is empty.
func (r *TaskResult) Decode(v any) error {
	raw := r.Data
	if len(raw) == 0 {
		raw = json.RawMessage(r.Text)
	}
	if len(raw) == 0 {
		return fmt.Errorf("decode task result: empty result")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode task result: %w", err)
	}
	return nil
}

// AgentClient is a live connection to one agent.
type AgentClient interface {
	GetAgentInfo(ctx context.Context) (*AgentInfo, error)
	ExecuteTask(ctx context.Context, name string, args map[string]any) (*TaskResult, error)
	Close() error
}

// Connector opens clients for a single protocol.
type Connector interface {
	Connect(ctx context.Context, agentURL string) (AgentClient, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, agentURL string) (AgentClient, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context, agentURL string) (AgentClient, error) {
	return f(ctx, agentURL)
}

// Dialer opens a client speaking the agent's declared protocol.
type Dialer interface {
	Dial(ctx context.Context, agentURL string, proto types.Protocol) (AgentClient, error)
}

// MultiDialer routes Dial to the connector registered for the protocol.
type MultiDialer struct {
	mu         sync.RWMutex
	connectors map[types.Protocol]Connector
}

// NewMultiDialer creates an empty dialer.
func NewMultiDialer() *MultiDialer {
	return &MultiDialer{connectors: make(map[types.Protocol]Connector)}
}

// Register installs the connector for a protocol, replacing any previous one.
func (d *MultiDialer) Register(proto types.Protocol, c Connector) *MultiDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectors[proto] = c
	return d
}

// Dial implements Dialer. An empty protocol is treated as MCP.
func (d *MultiDialer) Dial(ctx context.Context, agentURL string, proto types.Protocol) (AgentClient, error) {
	if proto == "" {
		proto = types.ProtocolMCP
	}
	d.mu.RLock()
	c, ok := d.connectors[proto]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, proto)
	}
	client, err := c.Connect(ctx, agentURL)
	if err != nil {
		return nil, fmt.Errorf("connect %s agent %s: %w", proto, agentURL, err)
	}
	return client, nil
}
