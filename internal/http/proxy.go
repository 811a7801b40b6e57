package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"os"
	"strconv"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/transana/srbxfer/internal/config"
	"github.com/transana/srbxfer/internal/constants"
	"github.com/transana/srbxfer/internal/logging"
)

const defaultProxyPort = 8080

// ConfigureHTTPClient returns a client whose transport goes through the
// proxy described by cfg. An NTLM proxy gets a negotiating round tripper
// around the transport. Basic or NTLM without a host connects directly.
func ConfigureHTTPClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	transport := newTransport()

	mode := cfg.Proxy()
	switch mode {
	case config.ProxyNone:
	case config.ProxySystem:
		transport.Proxy = nethttp.ProxyFromEnvironment
	case config.ProxyBasic, config.ProxyNTLM:
		if cfg.ProxyHost == "" {
			logger.Warn().Str("proxy_mode", mode).Msg("proxy host not set, connecting directly")
			return &nethttp.Client{Transport: transport}, nil
		}
		if mode == config.ProxyBasic && cfg.ProxyUser != "" && cfg.ProxyPassword == "" {
			logger.Warn().Str("proxy_user", cfg.ProxyUser).Msg("proxy password missing, sending no proxy credentials")
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy, logger)
	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.ProxyMode)
	}

	if mode == config.ProxyNTLM {
		return &nethttp.Client{Transport: ntlmssp.Negotiator{RoundTripper: transport}}, nil
	}
	return &nethttp.Client{Transport: transport}, nil
}

func newTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4, // one transfer at a time plus multipart control calls
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
		ResponseHeaderTimeout: constants.HTTPResponseHeaderTimeout,
	}
}

// buildProxyURL embeds credentials only when both user and password are set.
func buildProxyURL(cfg *config.Config) *url.URL {
	port := cfg.ProxyPort
	if port == 0 {
		port = defaultProxyPort
	}
	u := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(cfg.ProxyHost, strconv.Itoa(port)),
	}
	if cfg.ProxyUser != "" && cfg.ProxyPassword != "" {
		u.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
	}
	return u
}

// proxyFuncWithBypass routes every request through proxyURL except hosts
// matched by noProxy (names, *.domain wildcards, CIDRs).
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, logger *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	pc := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	resolve := pc.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		u, err := resolve(req.URL)
		if u == nil {
			logger.Debug().Str("host", req.URL.Host).Msg("proxy bypass")
		}
		return u, err
	}
}

// proxyActive reports whether requests will actually leave through a proxy.
func proxyActive(cfg *config.Config) bool {
	switch cfg.Proxy() {
	case config.ProxyNone:
		return false
	case config.ProxySystem:
		for _, k := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
			if os.Getenv(k) != "" {
				return true
			}
		}
		return false
	}
	return cfg.ProxyHost != ""
}

// NeedsProxyPassword reports whether an authenticating proxy has a user but
// no password yet, so the CLI should prompt.
func NeedsProxyPassword(cfg *config.Config) bool {
	switch cfg.Proxy() {
	case config.ProxyBasic, config.ProxyNTLM:
		return cfg.ProxyUser != "" && cfg.ProxyPassword == ""
	}
	return false
}
