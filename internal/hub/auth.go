package hub

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"deskchat/pkg/logger"
	"deskchat/pkg/models"
)

type ctxKey int

const userKey ctxKey = iota

// viewerFrom returns the authenticated user for the request.
func viewerFrom(r *http.Request) (models.User, bool) {
	u, ok := r.Context().Value(userKey).(models.User)
	return u, ok
}

type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	rps := p.rps
	if rps <= 0 {
		rps = 25
	}
	burst := p.burst
	if burst <= 0 {
		burst = 50
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// authMiddleware resolves the bearer token to a configured user and rate
// limits per token (per remote IP when unauthenticated).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		key := token
		if key == "" {
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				key = host
			} else {
				key = r.RemoteAddr
			}
		}
		if !s.limiters.Allow(key) {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		u, ok := s.users[token]
		if !ok {
			logger.Warn("hub_auth_rejected", "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"message":"Unauthenticated."}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:]
	}
	return ""
}

// channelSignature computes the broadcasting-auth signature the transport
// echoes back in its subscribe frame: "<app key>:<hex hmac-sha256 of
// "<socket_id>:<channel>" under the app secret>".
func (s *Server) channelSignature(socketID, channel string) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.Hub.AppSecret))
	mac.Write([]byte(socketID + ":" + channel))
	return s.cfg.Hub.AppKey + ":" + hex.EncodeToString(mac.Sum(nil))
}

// canJoin applies the channel ACL: admins join any ticket channel,
// customers only tickets they created. Tickets the hub has no record of
// are open (the real backend owns membership; the dev hub stays
// permissive for ad-hoc ids).
func canJoin(u models.User, ticketID int64) bool {
	if u.Role == models.RoleAdmin {
		return true
	}
	t, ok, err := GetTicket(ticketID)
	if err != nil || !ok {
		return true
	}
	return t.CreatorID == u.ID
}
