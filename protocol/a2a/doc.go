// Package a2a 实现 Agent-to-Agent 协议的客户端部分。
//
// 连接时先从代理源站的 /.well-known/agent-card.json 获取代理卡，
// 不存在时回退到旧路径 /.well-known/agent.json。代理卡上的技能被视为工具，
// 任务通过 JSON-RPC 2.0 的 message/send 方法以数据消息发送。
package a2a
