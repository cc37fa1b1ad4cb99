// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

/*
Package protocol defines the multi-protocol agent client used to probe and
query advertising agents.

An AgentClient exposes two operations: GetAgentInfo lists the tools (MCP)
or skills (A2A) an agent offers, and ExecuteTask invokes one of them by
name. Protocol-specific Connectors live in the mcp and a2a subpackages;
MultiDialer picks the connector matching the agent's declared protocol.

	dialer := protocol.NewMultiDialer().
		Register(types.ProtocolMCP, mcp.NewConnector(mcp.DefaultConfig(), logger)).
		Register(types.ProtocolA2A, a2a.NewConnector(a2a.DefaultConfig(), logger))
	client, err := dialer.Dial(ctx, agentURL, types.ProtocolMCP)
*/
package protocol
