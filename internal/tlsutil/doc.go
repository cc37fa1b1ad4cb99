// Package tlsutil 提供集中式 TLS 配置，
// 为抓取 adagents.json 与连接销售代理的出站 HTTP 客户端提供安全加固
// （TLS 1.2+，仅 AEAD 密码套件，重定向上限，统一 User-Agent）。
package tlsutil
