package constants

import "time"

// Request constants
const (
	// MaxUploadSize is the maximum request body size in bytes (32MB); base64 frames are larger than raw ones
	MaxUploadSize = 32 << 20

	// MaxMultipartMemory is how much of a multipart form is kept in memory
	MaxMultipartMemory = 8 << 20

	// RequestTimeout bounds each API request, face service calls included
	RequestTimeout = 60 * time.Second

	// RateLimitTTL is how long an idle client's token bucket is remembered
	RateLimitTTL = time.Minute
)
