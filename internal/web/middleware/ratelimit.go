package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth/limiter"

	"github.com/kozaktomas/facegate/internal/constants"
)

// RateLimit returns per-client token bucket middleware allowing rps requests per second.
// Buckets are keyed by client IP and request path.
// A non-positive rps disables limiting.
func RateLimit(rps float64) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	message, _ := json.Marshal(map[string]string{
		"error": "too many requests, slow down",
	})

	lmt := tollbooth.NewLimiter(rps, &limiter.ExpirableOptions{
		DefaultExpirationTTL: constants.RateLimitTTL,
	})
	lmt.SetMessageContentType("application/json")
	lmt.SetMessage(string(message))

	return func(next http.Handler) http.Handler {
		return tollbooth.LimitHandler(lmt, next)
	}
}
