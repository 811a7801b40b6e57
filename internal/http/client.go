package http

import (
	"context"
	"crypto/tls"
	nethttp "net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/http2"

	"github.com/transana/srbxfer/internal/config"
	"github.com/transana/srbxfer/internal/constants"
	"github.com/transana/srbxfer/internal/logging"
)

// CreateClient builds the HTTP client the S3 and Azure backends talk through.
//
//   - Proxy support (ConfigureHTTPClient)
//   - HTTP/2 when no proxy is in the path (DISABLE_HTTP2=true forces HTTP/1.1)
//   - Compression disabled; media files do not shrink
//   - A go-retryablehttp layer with jittered backoff; the SDKs' own retry
//     loops are turned off by the backends so failures are retried once, here
//
// With cfg.HTTPRetries <= 0 the retry layer is omitted.
func CreateClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	baseClient, err := ConfigureHTTPClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	if tr, ok := baseClient.Transport.(*nethttp.Transport); ok {
		tuneTransport(tr, proxyActive(cfg))
	}
	// Transfers can run for hours; per-call deadlines come from the context.
	baseClient.Timeout = 0

	if cfg.HTTPRetries <= 0 {
		return baseClient, nil
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = baseClient
	retryClient.RetryMax = cfg.HTTPRetries
	retryClient.RetryWaitMin = constants.RetryWaitMin
	retryClient.RetryWaitMax = constants.RetryWaitMax
	retryClient.Backoff = jitterBackoff
	retryClient.CheckRetry = retryPolicy
	retryClient.Logger = &retryLogger{log: logger}

	return retryClient.StandardClient(), nil
}

// tuneTransport applies the large-transfer settings to tr.
func tuneTransport(tr *nethttp.Transport, viaProxy bool) {
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	// Proxies often break HTTP/2 multiplexing mid-transfer.
	if os.Getenv("DISABLE_HTTP2") == "true" || (viaProxy && os.Getenv("FORCE_HTTP2") != "true") {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}
}

// jitterBackoff adapts CalculateBackoff to retryablehttp's Backoff signature.
// A Retry-After header on 429/503 responses wins when present.
func jitterBackoff(min, max time.Duration, attemptNum int, resp *nethttp.Response) time.Duration {
	if resp != nil && (resp.StatusCode == nethttp.StatusTooManyRequests || resp.StatusCode == nethttp.StatusServiceUnavailable) {
		return retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
	}
	d := CalculateBackoff(attemptNum+1, min, max)
	if d < min {
		d = min
	}
	return d
}

// retryPolicy stops immediately on cancellation and on connection errors
// that repeating cannot fix; everything else follows retryablehttp's
// default policy.
func retryPolicy(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil && resp == nil && !ClassifyError(err).Retryable() {
		return false, err
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}
