package http

import (
	"net/http"
	"time"
)

const defaultClientTimeout = 30 * time.Second

// ClientConfig configures the plain outbound clients (exchange rates, Drive,
// Sheets). The traced client used for the LLM gateway lives in
// traced_client.go.
type ClientConfig struct {
	Timeout time.Duration
	// MaxConnsPerHost bounds connections against one API host. Zero leaves
	// the transport default.
	MaxConnsPerHost int
	Transport       http.RoundTripper
}

// NewClient builds an HTTP client from the config; nil gets the defaults.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	transport := cfg.Transport
	if transport == nil && cfg.MaxConnsPerHost > 0 {
		transport = &http.Transport{
			MaxConnsPerHost:     cfg.MaxConnsPerHost,
			MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		}
	}

	return &http.Client{Timeout: timeout, Transport: transport}
}
