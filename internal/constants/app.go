// Package constants holds tunables shared across the transfer engine, the
// remote backends and the CLI.
package constants

import (
	"time"
)

// Chunk sizing
const (
	// DefaultChunkSize - bytes moved per read/write call (400,000 bytes)
	// 4096 gave ~19 k/sec against the original storage server, 262,144 gave ~900 k/sec
	// and 400,000 ~1900 k/sec. Kept as the default until the size becomes adaptive.
	DefaultChunkSize = 400000

	// MinChunkSize - smallest accepted chunk size (4 KiB)
	MinChunkSize = 4 * 1024

	// MaxChunkSize - largest accepted chunk size (64 MiB)
	// Caps memory per transfer since one buffer is held for the whole loop.
	MaxChunkSize = 64 * 1024 * 1024

	// MinPartSize - AWS S3 minimum part size (5 MiB, except last part)
	// Writes smaller than this are coalesced before UploadPart.
	MinPartSize = 5 * 1024 * 1024

	// MaxS3Parts - AWS S3 limit on parts per multipart upload
	MaxS3Parts = 10000

	// MaxAzureBlocks - Azure block blob limit on committed blocks
	MaxAzureBlocks = 50000
)

// Progress display
const (
	// KiloByte is the divisor used for the "k/sec" speed label.
	KiloByte = 1024.0

	// ProgressRefreshRate - redraw interval for multi-file progress bars
	ProgressRefreshRate = 300 * time.Millisecond

	// ProgressThrottleMillis - minimum interval between single bar redraws
	ProgressThrottleMillis = 100

	// EwmaAge - samples used for smoothed speed/ETA decorators
	EwmaAge = 60
)

// Event bus
const (
	// EventBusDefaultBuffer - per-subscriber channel buffer
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - cap on requested buffer sizes
	EventBusMaxBuffer = 10000
)

// HTTP client timeouts
const (
	HTTPDialTimeout           = 30 * time.Second
	HTTPDialKeepAlive         = 30 * time.Second
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 30 * time.Second
	HTTPExpectContinueTimeout = 1 * time.Second
	HTTPResponseHeaderTimeout = 60 * time.Second
)

// Retry configuration for the HTTP layer under the remote backends.
// The transfer loop itself never retries.
const (
	// MaxRetries - maximum number of retries for transient HTTP errors
	MaxRetries = 5

	// RetryWaitMin - initial delay before first retry
	RetryWaitMin = 1 * time.Second

	// RetryWaitMax - maximum delay between retries
	RetryWaitMax = 30 * time.Second
)

// Disk space safety margin
const (
	// DiskSpaceSafetyMargin - multiplier applied to download size before the free-space check (5%)
	DiskSpaceSafetyMargin = 1.05
)

// Cleanup
const (
	// CleanupTimeout - bound on closing handles and removing a partial copy
	// after the transfer's own context was cancelled
	CleanupTimeout = 30 * time.Second
)

// Application identity
const (
	// AppName is used for config directories and the CLI name.
	AppName = "srbxfer"

	// EnvPrefix prefixes every environment variable the tool reads.
	EnvPrefix = "SRBXFER_"

	// DefaultResource is the storage resource passed on create when none is configured.
	DefaultResource = "default"

	// DefaultFileType is the object type passed on create. Every object is "unknown" for now.
	DefaultFileType = "unknown"
)
