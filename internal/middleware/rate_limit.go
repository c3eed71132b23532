package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	// IPConfig decides which forwarding headers are trusted when keying by IP
	IPConfig *pkghttp.IPConfig
}

// DefaultAdminLoginRateLimit returns the limit for the admin login endpoint (5 requests per minute)
func DefaultAdminLoginRateLimit(ipConfig *pkghttp.IPConfig) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 5,
		IPConfig:          ipConfig,
	}
}

// RateLimitByIP limits requests per client IP. The IP is resolved the same way
// the guard resolves client keys, so spoofed forwarding headers cannot dodge it.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitByAdmin limits authenticated admin requests per operator,
// falling back to the client IP when no claims are present
func RateLimitByAdmin(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetClaimsFromContext(r); claims != nil {
				return "admin:" + claims.Username, nil
			}
			return "ip:" + pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
}
