// Package tlsutil 为访问 OpenAI、Tavily 等外部服务的 HTTP 客户端提供安全加固的 TLS 设置
// （TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
