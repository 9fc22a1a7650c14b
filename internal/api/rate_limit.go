package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/ratelimit"
)

// HeaderClientID names the caller a rate limit bucket belongs to. Requests
// without it are charged to their remote address.
const HeaderClientID = "X-Client-ID"

type RateLimiter interface {
	Take(ctx context.Context, subject string, cost int) (ratelimit.Decision, error)
}

// jobCost charges one token for the job plus one per requested transformation.
func jobCost(chain []domain.Transformation) int {
	return 1 + len(chain)
}

// allow writes a 429 and returns false when the caller's bucket is empty.
// Limiter failures let the request through.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, route string, cost int) bool {
	if s.rateLimiter == nil {
		return true
	}

	subject := clientSubject(r) + ":" + route
	decision, err := s.rateLimiter.Take(r.Context(), subject, cost)
	if err != nil {
		s.logger.Warn("rate limiter check failed", zap.String("subject", subject), zap.Error(err))
		return true
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	w.Header().Set("X-RateLimit-Cost", strconv.FormatInt(decision.Cost, 10))
	if decision.Allowed {
		return true
	}

	retryAfter := max(1, int(decision.RetryAfter.Round(time.Second).Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"error": "rate limit exceeded",
	})
	return false
}

func clientSubject(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderClientID)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "anonymous"
	}
	return host
}
