package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
)

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder keeps the response status for the access log. It passes
// Hijack through so websocket upgrades still work.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", id)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, p models.Principal)

// authed verifies the session token and hands the principal to h.
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.verifier.FromRequest(r)
		if err != nil {
			s.logger.Debug("rejected request", "path", r.URL.Path, "error", err)
			s.writeError(w, r, types.ErrUnauthenticated)
			return
		}
		h(w, r, p)
	}
}

func (s *Server) limited(h authedHandler) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, p models.Principal) {
		if !s.limiter.Allow(p.OwnerID) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:   "rate_limited",
				Message: "Too many searches. Please slow down.",
			})
			return
		}
		h(w, r, p)
	}
}

const maxTrackedOwners = 10000

// ownerLimiter keeps one token bucket per owner.
type ownerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newOwnerLimiter(perSecond float64, burst int) *ownerLimiter {
	return &ownerLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *ownerLimiter) Allow(ownerID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ownerID]
	if !ok {
		if len(l.limiters) >= maxTrackedOwners {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ownerID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
