package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/rescale/notebook-filetree/internal/config"
	"github.com/rescale/notebook-filetree/internal/constants"
)

// CreateOptimizedClient creates the client shared by content reads, chunk
// writes and downloads.
//
//   - Proxy support (uses ConfigureHTTPClient as base)
//   - Connection pool sized for restore fan-out
//   - HTTP/2 unless a proxy is active or DISABLE_HTTP2=true
//   - No overall timeout; callers bound each request with a context
//
// A nil cfg reads proxy settings from the environment.
func CreateOptimizedClient(cfg *config.Config) (*nethttp.Client, error) {
	proxy := config.ProxyConfig{Mode: "system"}
	warmupURL := ""
	if cfg != nil {
		proxy = cfg.Proxy
		warmupURL = cfg.Server.URL
	}

	baseClient, err := ConfigureHTTPClient(proxy, warmupURL)
	if err != nil {
		return nil, err
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport; return it as-is without the overall timeout.
		baseClient.Timeout = 0
		return baseClient, nil
	}

	tr.MaxIdleConns = 512
	tr.MaxIdleConnsPerHost = 100
	tr.MaxConnsPerHost = 100
	tr.IdleConnTimeout = constants.HTTPIdleConnTimeout
	tr.TLSHandshakeTimeout = constants.HTTPTLSHandshakeTimeout
	tr.ExpectContinueTimeout = constants.HTTPExpectContinueTimeout
	tr.ForceAttemptHTTP2 = true

	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive(proxy) && os.Getenv("FORCE_HTTP2") != "true") {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0

	return baseClient, nil
}

// proxyActive reports whether requests will go through a proxy.
// Proxies often break HTTP/2 multiplexing mid-transfer.
func proxyActive(proxy config.ProxyConfig) bool {
	switch proxy.Mode {
	case "no-proxy", "":
		return false
	case "system":
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return proxy.Host != ""
	}
}
