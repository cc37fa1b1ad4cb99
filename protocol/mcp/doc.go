// Package mcp 通过官方 Model Context Protocol Go SDK 连接销售代理。
//
// 默认使用 streamable HTTP 传输；测试中可以通过 WithTransportFactory
// 注入内存传输。
package mcp
