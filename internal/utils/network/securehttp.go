package network

import (
	"crypto/tls"
	"net/http"
	"time"
)

// UserAgent is sent with every request made by the shared clients.
const UserAgent = "tapkeeper/1.0"

// NewSecureHTTPClient returns an http.Client with a custom TLS configuration.
// A zero timeout leaves the client without an overall deadline.
func NewSecureHTTPClient(timeout time.Duration) *http.Client {

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,

		// CipherSuites applies only to TLS 1.0–1.2
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Transport: &userAgentTransport{next: transport},
		Timeout:   timeout,
	}
}

type userAgentTransport struct {
	next http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	return t.next.RoundTrip(req)
}
