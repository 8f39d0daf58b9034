package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"staybook/internal/config"
)

// HTTPAuth checks the API key header and applies the per-client rate limit.
type HTTPAuth struct {
	cfg     *config.APIConfig
	byKey   map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	byKey := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		byKey[k.Key] = k
	}
	return &HTTPAuth{
		cfg:     cfg,
		byKey:   byKey,
		limiter: newRateLimiter(cfg),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		clientName := "anonymous"
		if a.cfg.Auth.Enabled {
			header := strings.TrimSpace(a.cfg.Auth.HeaderAPIKey)
			if header == "" {
				header = "x-api-key"
			}

			provided := r.Header.Get(header)
			client, ok := a.lookup(provided)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			clientName = client.Name
		}

		if !a.limiter.allow(clientName) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) lookup(provided string) (config.APIClientKey, bool) {
	if provided == "" {
		return config.APIClientKey{}, false
	}
	for key, client := range a.byKey {
		if subtle.ConstantTimeCompare([]byte(key), []byte(provided)) == 1 {
			return client, true
		}
	}
	return config.APIClientKey{}, false
}
