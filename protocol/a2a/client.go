package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/adregistry/internal/tlsutil"
	"github.com/BaSui01/adregistry/protocol"
	"github.com/BaSui01/adregistry/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 代理卡 well-known 路径，按顺序尝试
var cardPaths = []string{
	"/.well-known/agent-card.json",
	"/.well-known/agent.json",
}

const maxResponseBytes = 4 << 20

// Config 为 A2A 连接器持有配置.
type Config struct {
	Timeout   time.Duration     `json:"timeout" yaml:"timeout"`
	UserAgent string            `json:"user_agent" yaml:"user_agent"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers"`
}

// DefaultConfig 返回有合理默认值的 Config
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		UserAgent: "adregistry-crawler/1.0",
	}
}

// Connector 通过 HTTP 连接 A2A 代理
type Connector struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Connector.
type Option func(*Connector)

// WithHTTPClient 替换默认的加固客户端
func WithHTTPClient(c *http.Client) Option {
	return func(conn *Connector) { conn.httpClient = c }
}

// NewConnector 创建 A2A 连接器
func NewConnector(config Config, logger *zap.Logger, opts ...Option) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	c := &Connector{
		config: config,
		logger: logger.With(zap.String("component", "a2a_connector")),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = tlsutil.SecureHTTPClientWith(tlsutil.ClientOptions{
			Timeout:   config.Timeout,
			UserAgent: config.UserAgent,
		})
	}
	return c
}

// Connect 获取代理卡并返回客户端。
// 代理卡先在 agent-card.json 查找，找不到再回退到 agent.json。
func (c *Connector) Connect(ctx context.Context, agentURL string) (protocol.AgentClient, error) {
	if agentURL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrRemoteUnavailable)
	}
	card, err := c.Discover(ctx, agentURL)
	if err != nil {
		return nil, err
	}
	endpoint := card.URL
	if endpoint == "" {
		endpoint = agentURL
	}
	return &Client{connector: c, card: card, endpoint: endpoint}, nil
}

// Discover 从代理的源站取回代理卡
func (c *Connector) Discover(ctx context.Context, agentURL string) (*AgentCard, error) {
	u, err := url.Parse(agentURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrRemoteUnavailable, agentURL)
	}
	origin := u.Scheme + "://" + u.Host

	var lastErr error
	for _, path := range cardPaths {
		card, err := c.fetchCard(ctx, origin+path)
		if err == nil {
			return card, nil
		}
		lastErr = err
		if !errors.Is(err, ErrCardNotFound) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Connector) fetchCard(ctx context.Context, cardURL string) (*AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, cardURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var card AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	return &card, nil
}

func (c *Connector) setHeaders(req *http.Request) {
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
}

// Client 是与单个 A2A 代理的会话
type Client struct {
	connector *Connector
	card      *AgentCard
	endpoint  string
}

// Card 返回连接时取得的代理卡
func (c *Client) Card() *AgentCard { return c.card }

// GetAgentInfo 把代理卡上的技能映射为工具
func (c *Client) GetAgentInfo(context.Context) (*protocol.AgentInfo, error) {
	info := &protocol.AgentInfo{
		Name:     c.card.Name,
		Protocol: types.ProtocolA2A,
		Tools:    make([]protocol.ToolInfo, 0, len(c.card.Skills)),
	}
	for _, s := range c.card.Skills {
		info.Tools = append(info.Tools, protocol.ToolInfo{Name: s.ToolName(), Description: s.Description})
	}
	return info, nil
}

// ExecuteTask 通过 JSON-RPC message/send 发送一条数据消息调用技能
func (c *Client) ExecuteTask(ctx context.Context, name string, args map[string]any) (*protocol.TaskResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(map[string]any{"skill": name, "parameters": args})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize parameters: %w", err)
	}
	rpc := rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "message/send",
		Params: sendParams{Message: Message{
			Kind:      "message",
			MessageID: uuid.NewString(),
			Role:      "user",
			Parts:     []Part{{Kind: "data", Data: payload}},
		}},
	}
	body, err := json.Marshal(rpc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.connector.setHeaders(req)

	resp, err := c.connector.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrRemoteUnavailable, resp.StatusCode, truncate(respBody, 256))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: %s: rpc error %d: %s", protocol.ErrTaskFailed, name, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	var result sendResult
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return toTaskResult(name, &result)
}

func toTaskResult(name string, r *sendResult) (*protocol.TaskResult, error) {
	parts := r.Parts
	if r.Kind == "task" {
		if r.Status.State.Failed() {
			reason := string(r.Status.State)
			if r.Status.Message != nil {
				if text := joinText(r.Status.Message.Parts); text != "" {
					reason = text
				}
			}
			return nil, fmt.Errorf("%w: %s: %s", protocol.ErrTaskFailed, name, reason)
		}
		parts = nil
		for _, a := range r.Artifacts {
			parts = append(parts, a.Parts...)
		}
	}

	out := &protocol.TaskResult{Text: joinText(parts)}
	for _, p := range parts {
		if p.Kind == "data" && len(p.Data) > 0 {
			out.Data = p.Data
			break
		}
	}
	return out, nil
}

func joinText(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Kind == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Close 无需释放资源，HTTP 连接由共享客户端管理
func (c *Client) Close() error { return nil }
