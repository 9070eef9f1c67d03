package httpx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRateLimiter_PerKey(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	h := rl.Middleware(ClientKey)(okHandler())

	send := func(ip string) int {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
		r.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}
	for i := 0; i < 2; i++ {
		if code := send("203.0.113.7"); code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, code)
		}
	}
	if code := send("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send("198.51.100.1"); code != http.StatusNoContent {
		t.Fatalf("expected a different client to be unaffected, got %d", code)
	}
}

func TestWithTenant(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = OrganizationIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	reject := func(*http.Request) (string, error) { return "", errors.New("bad token") }
	h := WithTenant(FirstTenant(reject, HeaderTenant))(inner)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/availability", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	r.Header.Set(OrganizationIDHeader, "org-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK || seen != "org-1" {
		t.Fatalf("expected org-1 to pass, got %d %q", rec.Code, seen)
	}
}

func TestAccessLogIncludesTenantAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Chain(okHandler(), WithRequestID, WithAccessLog(logger), WithTenant(HeaderTenant))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	r.Header.Set(OrganizationIDHeader, "org-9")
	r.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	line := buf.String()
	if !strings.Contains(line, `"organization_id":"org-9"`) || !strings.Contains(line, `"request_id":"req-1"`) {
		t.Fatalf("unexpected access log %s", line)
	}
	if rec.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatal("expected request id to be echoed")
	}
}

func TestWithCORS_Preflight(t *testing.T) {
	h := WithCORS(CORSPolicy{AllowedOrigins: []string{"https://admin.example.com"}})(okHandler())

	r := httptest.NewRequest(http.MethodOptions, "/api/v1/bookings", nil)
	r.Header.Set("Origin", "https://admin.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example.com" {
		t.Fatalf("expected origin to be allowed, got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected foreign origin to get no CORS headers, got %q", got)
	}
}

func TestWithRecover(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := WithRecover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

// Runs against a real Redis when REDIS_ADDR is set.
func TestRedisRateLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	if err := RedisReadyCheck(rdb)(context.Background()); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	rl := NewRedisRateLimiter(rdb, 1, time.Minute, "rl-test-"+time.Now().Format("150405.000000000"))
	h := rl.Middleware(TenantKey, nil, false)(okHandler())
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}
}
