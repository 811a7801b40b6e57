package transfer

import "sync/atomic"

// CancelToken is a one-way cancellation flag. It is safe to call Cancel
// from any goroutine; the copy loop polls Cancelled at chunk boundaries.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the token. It cannot be reset.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called. A nil token is never
// cancelled.
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}
