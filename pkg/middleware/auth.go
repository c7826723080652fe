// pkg/middleware/auth.go
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"
)

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

// AuthConfig describes which realm tokens are accepted.
type AuthConfig struct {
	JWKSURL string
	// Issuers lists acceptable iss values. The realm is reachable under an
	// internal and a public hostname and tokens carry whichever was used.
	Issuers []string
	JWKSTTL time.Duration
	Skew    time.Duration
}

// User is the authenticated caller as seen by handlers.
type User struct {
	Subject           string `json:"sub"`
	Email             string `json:"email,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Name              string `json:"name,omitempty"`
}

type userKey struct{}

// UserFrom returns the caller set by JWTAuth.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

// JWTAuth rejects requests without a valid realm bearer token.
func JWTAuth(cfg AuthConfig, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	cache := &jwksCache{}
	if cfg.JWKSTTL <= 0 {
		cfg.JWKSTTL = 6 * time.Hour
	}
	if cfg.Skew <= 0 {
		cfg.Skew = 30 * time.Second
	}
	issuers := map[string]struct{}{}
	for _, iss := range cfg.Issuers {
		issuers[strings.TrimRight(iss, "/")] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				authError(w, http.StatusUnauthorized, "Missing or malformed token")
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			set, err := cache.get(r.Context(), cfg.JWKSURL, cfg.JWKSTTL)
			if err != nil {
				log.Errorw("jwks fetch failed", "url", cfg.JWKSURL, "err", err)
				authError(w, http.StatusInternalServerError, "Authentication service unreachable")
				return
			}
			jt, err := jwt.Parse([]byte(raw), jwt.WithKeySet(set), jwt.WithValidate(true), jwt.WithVerify(true), jwt.WithAcceptableSkew(cfg.Skew))
			if err != nil {
				log.Warnw("token rejected", "err", err)
				authError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			if _, ok := issuers[strings.TrimRight(jt.Issuer(), "/")]; !ok {
				log.Warnw("token rejected", "iss", jt.Issuer())
				authError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			u := User{
				Subject:           jt.Subject(),
				Email:             claim(jt, "email"),
				PreferredUsername: claim(jt, "preferred_username"),
				Name:              claim(jt, "name"),
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
		})
	}
}

func claim(jt jwt.Token, name string) string {
	if v, ok := jt.Get(name); ok {
		s, _ := v.(string)
		return s
	}
	return ""
}

func authError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
