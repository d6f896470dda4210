package tlsutil

import (
	"crypto/tls"
	"net/http"
	"time"
)

// aeadSuites TLS 1.2 下允许的套件; TLS 1.3 的套件由 Go 固定, 不受此列表影响
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// idleConnsPerHost 每个查询都会打到同样的两三个上游, 默认的 2 太少
const idleConnsPerHost = 16

// DefaultTLSConfig TLS 1.2+, 只用 AEAD 套件
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: append([]uint16(nil), aeadSuites...),
	}
}

// SecureTransport 基于 http.DefaultTransport 的副本, 换上加固的 TLS 配置
func SecureTransport() *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = DefaultTLSConfig()
	tr.MaxIdleConnsPerHost = idleConnsPerHost
	return tr
}

// SecureHTTPClient 供 OpenAI、embedding 与 Tavily 客户端使用
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: SecureTransport()}
}
