package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/adregistry/internal/tlsutil"
	"github.com/BaSui01/adregistry/protocol"
	"github.com/BaSui01/adregistry/types"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// TransportFactory builds the transport used to reach agentURL.
type TransportFactory func(agentURL string) (sdk.Transport, error)

// Config configures the MCP connector.
type Config struct {
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	UserAgent     string        `json:"user_agent" yaml:"user_agent"`
	ClientName    string        `json:"client_name" yaml:"client_name"`
	ClientVersion string        `json:"client_version" yaml:"client_version"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		UserAgent:     "adregistry-crawler/1.0",
		ClientName:    "adregistry",
		ClientVersion: "1.0.0",
	}
}

// Connector opens MCP sessions over streamable HTTP.
type Connector struct {
	config    Config
	transport TransportFactory
	logger    *zap.Logger
}

// Option customizes a Connector.
type Option func(*Connector)

// WithTransportFactory replaces the streamable HTTP transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(c *Connector) { c.transport = f }
}

// NewConnector creates an MCP connector.
func NewConnector(config Config, logger *zap.Logger, opts ...Option) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.ClientName == "" {
		config.ClientName = def.ClientName
	}
	if config.ClientVersion == "" {
		config.ClientVersion = def.ClientVersion
	}
	c := &Connector{
		config: config,
		logger: logger.With(zap.String("component", "mcp_connector")),
	}
	httpClient := tlsutil.SecureHTTPClientWith(tlsutil.ClientOptions{
		Timeout:   config.Timeout,
		UserAgent: config.UserAgent,
	})
	c.transport = func(agentURL string) (sdk.Transport, error) {
		return &sdk.StreamableClientTransport{
			Endpoint:   agentURL,
			HTTPClient: httpClient,
			MaxRetries: -1,
		}, nil
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect implements protocol.Connector.
func (c *Connector) Connect(ctx context.Context, agentURL string) (protocol.AgentClient, error) {
	transport, err := c.transport(agentURL)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	client := sdk.NewClient(&sdk.Implementation{
		Name:    c.config.ClientName,
		Version: c.config.ClientVersion,
	}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("mcp session established", zap.String("agent_url", agentURL))
	return &Client{session: session}, nil
}

// Client is an MCP session with one agent.
type Client struct {
	session *sdk.ClientSession

	closeOnce sync.Once
	closeErr  error
}

// GetAgentInfo lists every tool, following pagination.
func (c *Client) GetAgentInfo(ctx context.Context) (*protocol.AgentInfo, error) {
	info := &protocol.AgentInfo{Protocol: types.ProtocolMCP, Tools: []protocol.ToolInfo{}}
	if init := c.session.InitializeResult(); init != nil && init.ServerInfo != nil {
		info.Name = init.ServerInfo.Name
	}
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		info.Tools = append(info.Tools, protocol.ToolInfo{Name: tool.Name, Description: tool.Description})
	}
	return info, nil
}

// ExecuteTask calls a tool. A result flagged IsError becomes ErrTaskFailed.
func (c *Client) ExecuteTask(ctx context.Context, name string, args map[string]any) (*protocol.TaskResult, error) {
	res, err := c.session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}

	var text strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(*sdk.TextContent); ok {
			text.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return nil, fmt.Errorf("%w: %s: %s", protocol.ErrTaskFailed, name, text.String())
	}

	out := &protocol.TaskResult{Text: text.String()}
	if res.StructuredContent != nil {
		data, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return nil, fmt.Errorf("encode structured content: %w", err)
		}
		out.Data = data
	}
	return out, nil
}

// Close ends the session. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.session.Close() })
	return c.closeErr
}
