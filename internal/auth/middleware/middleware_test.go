package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/auth/ratelimit"
)

type fakeValidator struct {
	info *apikey.KeyInfo
	err  error
}

func (f *fakeValidator) Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

func TestAuthRejectsMissingKey(t *testing.T) {
	h := Auth(&fakeValidator{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/expand?q=cat", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"missing api key"}`, rr.Body.String())
}

func TestAuthRejectsInvalidAndExpiredKeys(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid key", apikey.ErrInvalidKey, "invalid api key"},
		{"expired key", apikey.ErrExpiredKey, "expired api key"},
		{"validator failure", errors.New("db down"), "authentication error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Auth(&fakeValidator{err: tt.err})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/expand?q=cat", nil)
			req.Header.Set("X-API-Key", "some-key")
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if tt.want == "authentication error" {
				assert.Equal(t, http.StatusInternalServerError, rr.Code)
			} else {
				assert.Equal(t, http.StatusUnauthorized, rr.Code)
			}
			assert.JSONEq(t, `{"error":"`+tt.want+`"}`, rr.Body.String())
		})
	}
}

func TestAuthAcceptsValidKeyAndSetsContext(t *testing.T) {
	info := &apikey.KeyInfo{ID: "k1", Name: "ops", RateLimit: 100}
	var seen *apikey.KeyInfo
	h := Auth(&fakeValidator{info: info})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetKeyInfo(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	sources := []func(r *http.Request){
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer raw-key") },
		func(r *http.Request) { r.Header.Set("X-API-Key", "raw-key") },
		func(r *http.Request) {
			q := r.URL.Query()
			q.Set("api_key", "raw-key")
			r.URL.RawQuery = q.Encode()
		},
	}
	for _, setKey := range sources {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/v1/expand?q=cat", nil)
		setKey(req)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "k1", seen.ID)
	}
}

func TestAuthExemptsHealthEndpoints(t *testing.T) {
	h := Auth(&fakeValidator{err: apikey.ErrInvalidKey})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/health/live", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, "path %s", path)
	}
}

func TestRateLimitBlocksAfterBudget(t *testing.T) {
	limiter := ratelimit.New(time.Minute)
	info := &apikey.KeyInfo{ID: "k1", RateLimit: 3}

	h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ctx := context.WithValue(context.Background(), apiKeyInfoKey, info)
	for i := range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/expand?q=cat", nil).WithContext(ctx)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/expand?q=cat", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
}

func TestRateLimitPassesWithoutKeyInfo(t *testing.T) {
	limiter := ratelimit.New(time.Minute)
	h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/expand?q=cat", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
