package constants

import (
	"time"
)

// Upload thresholds
const (
	// ChunkSize - size of each chunk in a chunked upload (1 MB)
	// Matches the notebook server's contents API chunk handling.
	ChunkSize = 1 * 1024 * 1024

	// LargeFileThreshold - files larger than this need confirmation before
	// upload, and are rejected outright when the backend cannot chunk (15 MB)
	LargeFileThreshold = 15 * 1024 * 1024

	// MinPartSize - AWS S3 minimum part size (5 MB, except last part)
	// The S3 backend refuses chunk sizes below this.
	MinPartSize = 5 * 1024 * 1024

	// LastChunk - chunk index that marks the final chunk of a chunked upload
	LastChunk = -1
)

// Tree refresh
const (
	// DefaultPollInterval - polling is disabled unless configured
	DefaultPollInterval = 0 * time.Second

	// MinPollInterval - lower bound for a configured poll interval
	MinPollInterval = 2 * time.Second

	// DefaultRestoreConcurrency - concurrent directory fetches during restore
	DefaultRestoreConcurrency = 8

	// FetchTimeout - timeout for a single directory listing
	FetchTimeout = 30 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// Contents API rate limiting
const (
	// ContentsRatePerSec - sustained request rate against the contents API
	ContentsRatePerSec = 20.0

	// ContentsBurstCapacity - burst allowance, sized for restoring many open
	// directories at once
	ContentsBurstCapacity = 100.0

	// RateLimitWarningThreshold - warn when a wait exceeds this
	RateLimitWarningThreshold = 2 * time.Second

	// RateLimitWarningInterval - minimum time between rate limit warnings
	RateLimitWarningInterval = 10 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPRequestTimeout - overall timeout for metadata requests (5 minutes)
	// Chunk writes rely on the caller's context instead.
	HTTPRequestTimeout = 300 * time.Second
)

// Download links
const (
	// PresignExpiry - lifetime of presigned / SAS download URLs
	PresignExpiry = 15 * time.Minute
)
