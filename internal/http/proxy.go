package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http/httpproxy"

	"github.com/rescale/notebook-filetree/internal/config"
	"github.com/rescale/notebook-filetree/internal/constants"
)

// ConfigureHTTPClient builds an HTTP client honoring the [proxy] settings.
// warmupURL is the server root used when proxy warmup is enabled.
func ConfigureHTTPClient(proxy config.ProxyConfig, warmupURL string) (*nethttp.Client, error) {
	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}

	var rt nethttp.RoundTripper = transport

	switch strings.ToLower(proxy.Mode) {
	case "no-proxy", "":
		transport.Proxy = nil

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment

	case "ntlm", "basic":
		// Fall back to a direct connection when the host is missing so the
		// user can still run `filetree config` to fix it.
		if proxy.Host == "" {
			log.Warn().Str("mode", proxy.Mode).Msg("proxy host is missing, falling back to no-proxy mode")
			transport.Proxy = nil
			break
		}

		transport.Proxy = proxyFuncWithBypass(buildProxyURL(proxy), proxy.NoProxy)

		if proxy.User != "" && proxy.Password == "" {
			log.Warn().Msg("proxy user configured but password missing, proxy auth disabled until password is set")
		}

		if strings.EqualFold(proxy.Mode, "ntlm") {
			rt = ntlmssp.Negotiator{RoundTripper: transport}
		}

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", proxy.Mode)
	}

	client := &nethttp.Client{
		Transport: rt,
		Timeout:   constants.HTTPRequestTimeout,
	}

	if proxy.Warmup && proxy.Host != "" && proxy.User != "" && proxy.Password != "" {
		if err := warmupProxy(client, warmupURL); err != nil {
			return nil, fmt.Errorf("proxy warmup failed: %w", err)
		}
	}

	return client, nil
}

// buildProxyURL constructs a proxy URL from config
func buildProxyURL(proxy config.ProxyConfig) *url.URL {
	port := proxy.Port
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", proxy.Host, port),
	}

	// Only embed credentials if both user and password are provided
	if proxy.User != "" && proxy.Password != "" {
		proxyURL.User = url.UserPassword(proxy.User, proxy.Password)
	}

	return proxyURL
}

// warmupProxy performs one request to establish the proxy connection
func warmupProxy(client *nethttp.Client, warmupURL string) error {
	if warmupURL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, "GET", strings.TrimRight(warmupURL, "/")+"/api", nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("warmup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("warmup request returned server error: %d", resp.StatusCode)
	}

	return nil
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy
// bypass list. With an empty list it behaves like nethttp.ProxyURL.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			log.Debug().Str("host", req.URL.Host).Msg("proxy bypass")
		}
		return result, err
	}
}

// NeedsProxyPassword reports whether the CLI must prompt for a proxy password.
func NeedsProxyPassword(proxy config.ProxyConfig) bool {
	mode := strings.ToLower(proxy.Mode)
	if mode != "basic" && mode != "ntlm" {
		return false
	}
	return proxy.User != "" && proxy.Password == ""
}
