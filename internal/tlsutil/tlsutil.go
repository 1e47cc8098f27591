// Package tlsutil provides the hardened TLS settings shared by the redis
// client and the devtool websocket dialer.
// 安全加固：TLS 1.2+，仅 AEAD 密码套件。
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// WebSocketTransport returns an http.Transport for websocket handshakes.
// The upgrade only works over HTTP/1.1, so ALPN is pinned and HTTP/2 is off.
func WebSocketTransport() *http.Transport {
	tlsConfig := DefaultTLSConfig()
	tlsConfig.NextProtos = []string{"http/1.1"}
	return &http.Transport{
		TLSClientConfig: tlsConfig,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   false,
		TLSNextProto:        map[string]func(string, *tls.Conn) http.RoundTripper{},
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// WebSocketHTTPClient returns the client used to dial wss:// endpoints.
// No client timeout is set; the dial context bounds the handshake.
func WebSocketHTTPClient() *http.Client {
	return &http.Client{Transport: WebSocketTransport()}
}
