// Package http builds the HTTP client used by the cloud store backends:
// proxy modes, HTTP/2 tuning and a retry layer.
package http

import (
	"math/rand"
	"strings"
	"time"
)

// ErrorClass says how a caller should react to a transport or SDK error.
type ErrorClass int

const (
	ClassNone      ErrorClass = iota
	ClassAccess               // credentials rejected or expired
	ClassNetwork              // connection dropped, reset or timed out
	ClassThrottled            // server busy or failing; worth another try
	ClassPermanent            // bad request, missing object, or unrecognised
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassAccess:
		return "access"
	case ClassNetwork:
		return "network"
	case ClassThrottled:
		return "throttled"
	case ClassPermanent:
		return "permanent"
	}
	return "unknown"
}

// Retryable reports whether repeating the request may succeed.
func (c ErrorClass) Retryable() bool {
	return c == ClassNetwork || c == ClassThrottled
}

// Checked in order; the first class with a matching marker wins. Markers
// are lower case and cover both S3 and Azure Blob error texts.
var classMarkers = []struct {
	class   ErrorClass
	markers []string
}{
	{ClassAccess, []string{
		"expiredtoken", "expired", "invalid token", "unauthorized", "403",
		"authenticationfailed", "authentication failed", "authorization failure",
		"invalid sas", "sas token", "signature not valid",
	}},
	{ClassNetwork, []string{
		"connection reset", "connection refused", "broken pipe",
		"tls handshake timeout", "i/o timeout", "timeout", "eof",
	}},
	{ClassThrottled, []string{
		"slowdown", "throttl", "serverbusy", "server busy",
		"serviceunavailable", "service unavailable", "internalerror",
		"operationtimeout", "operation timeout", "requesttimeout",
		"429", "500", "502", "503", "504",
	}},
}

// ClassifyError sorts err by sniffing its text. SDK errors often arrive
// wrapped in several layers, so the message is the common ground. The
// remote package uses it to pick a status code for errors a backend does
// not map itself.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	msg := strings.ToLower(err.Error())
	for _, group := range classMarkers {
		for _, m := range group.markers {
			if strings.Contains(msg, m) {
				return group.class
			}
		}
	}
	return ClassPermanent
}

// CalculateBackoff returns a full-jitter exponential delay:
// a random duration in [0, min(ceiling, base*2^attempt)).
func CalculateBackoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	limit := ceiling
	if attempt < 32 {
		if d := base << uint(attempt); d > 0 && d < ceiling {
			limit = d
		}
	}
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(limit)))
}
