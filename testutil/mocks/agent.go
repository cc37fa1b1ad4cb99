// MockAgentClient / MockDialer 的协议客户端测试模拟实现。
//
// 支持固定工具列表、任务响应、连接错误与挂起（模拟无响应代理）。
package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/adregistry/protocol"
	"github.com/BaSui01/adregistry/types"
)

// --- MockAgentClient ---

// MockAgentClient 是 protocol.AgentClient 的模拟实现
type MockAgentClient struct {
	mu       sync.Mutex
	name     string
	protocol types.Protocol
	tools    []string
	results  map[string]*protocol.TaskResult
	errs     map[string]error
	infoErr  error
	calls    []string
	closed   atomic.Bool
}

// NewMockAgentClient 创建暴露指定工具的客户端
func NewMockAgentClient(tools ...string) *MockAgentClient {
	return &MockAgentClient{
		protocol: types.ProtocolMCP,
		tools:    tools,
		results:  make(map[string]*protocol.TaskResult),
		errs:     make(map[string]error),
	}
}

// WithName 设置代理名称
func (m *MockAgentClient) WithName(name string) *MockAgentClient {
	m.name = name
	return m
}

// WithInfoError 让 GetAgentInfo 返回错误
func (m *MockAgentClient) WithInfoError(err error) *MockAgentClient {
	m.infoErr = err
	return m
}

// WithTaskJSON 设置任务的结构化响应，v 会被序列化为 JSON
func (m *MockAgentClient) WithTaskJSON(task string, v any) *MockAgentClient {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mocks: marshal task result: %v", err))
	}
	m.results[task] = &protocol.TaskResult{Data: data}
	return m
}

// WithTaskError 让指定任务失败
func (m *MockAgentClient) WithTaskError(task string, err error) *MockAgentClient {
	m.errs[task] = err
	return m
}

// GetAgentInfo implements protocol.AgentClient.
func (m *MockAgentClient) GetAgentInfo(ctx context.Context) (*protocol.AgentInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	info := &protocol.AgentInfo{Name: m.name, Protocol: m.protocol}
	for _, t := range m.tools {
		info.Tools = append(info.Tools, protocol.ToolInfo{Name: t})
	}
	return info, nil
}

// ExecuteTask implements protocol.AgentClient.
func (m *MockAgentClient) ExecuteTask(ctx context.Context, name string, _ map[string]any) (*protocol.TaskResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.errs[name]; err != nil {
		return nil, err
	}
	if res, ok := m.results[name]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("%w: %s not configured", protocol.ErrTaskFailed, name)
}

// Close implements protocol.AgentClient.
func (m *MockAgentClient) Close() error {
	m.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (m *MockAgentClient) Closed() bool { return m.closed.Load() }

// Calls returns the task names executed so far.
func (m *MockAgentClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// --- MockDialer ---

// MockDialer 是 protocol.Dialer 的模拟实现，按代理 URL 返回预设客户端
type MockDialer struct {
	mu      sync.Mutex
	clients map[string]*MockAgentClient
	errs    map[string]error
	hang    map[string]bool
	dials   map[string]int
	total   atomic.Int64
}

// NewMockDialer 创建空的 MockDialer
func NewMockDialer() *MockDialer {
	return &MockDialer{
		clients: make(map[string]*MockAgentClient),
		errs:    make(map[string]error),
		hang:    make(map[string]bool),
		dials:   make(map[string]int),
	}
}

// WithAgent 为 URL 注册客户端
func (d *MockDialer) WithAgent(agentURL string, client *MockAgentClient) *MockDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[agentURL] = client
	return d
}

// WithDialError 让连接 URL 失败
func (d *MockDialer) WithDialError(agentURL string, err error) *MockDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[agentURL] = err
	return d
}

// WithHang 让连接 URL 一直阻塞到 ctx 取消
func (d *MockDialer) WithHang(agentURL string) *MockDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hang[agentURL] = true
	return d
}

// Dial implements protocol.Dialer.
func (d *MockDialer) Dial(ctx context.Context, agentURL string, _ types.Protocol) (protocol.AgentClient, error) {
	d.total.Add(1)
	d.mu.Lock()
	d.dials[agentURL]++
	client, ok := d.clients[agentURL]
	err := d.errs[agentURL]
	hang := d.hang[agentURL]
	d.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("mocks: no agent registered for %s", agentURL)
	}
	return client, nil
}

// DialCount returns how many times URL was dialed.
func (d *MockDialer) DialCount(agentURL string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[agentURL]
}

// TotalDials returns the number of Dial calls.
func (d *MockDialer) TotalDials() int64 { return d.total.Load() }
