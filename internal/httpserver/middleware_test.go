package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/config"
	"github.com/Carnacky79/energy-optimizer-v2/internal/userctx"
	"github.com/google/uuid"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS(t *testing.T) {
	cfg := &config.Config{
		CORSAllowedOrigins:   []string{"https://app.example.com/"},
		CORSAllowCredentials: true,
	}
	handler := CORSMiddleware(cfg, okHandler())

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantAllowed bool
	}{
		{"preflight allowed", http.MethodOptions, "https://app.example.com", http.StatusNoContent, true},
		{"preflight foreign", http.MethodOptions, "https://evil.com", http.StatusNoContent, false},
		{"get allowed", http.MethodGet, "https://app.example.com", http.StatusOK, true},
		{"get foreign", http.MethodGet, "https://evil.com", http.StatusOK, false},
		{"no origin", http.MethodGet, "", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/reports", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			got := rr.Header().Get("Access-Control-Allow-Origin")
			if tt.wantAllowed != (got == tt.origin && got != "") {
				t.Fatalf("Allow-Origin=%q", got)
			}
			if !tt.wantAllowed {
				return
			}
			if !strings.Contains(rr.Header().Get("Access-Control-Expose-Headers"), GuestTokenHeader) {
				t.Error("guest token header must be exposed")
			}
			if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("expected Allow-Credentials=true")
			}
			if tt.method == http.MethodOptions && !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), GuestTokenHeader) {
				t.Error("preflight must allow the guest token header")
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	cfg := &config.Config{RateLimitRPS: 1, RateLimitBurst: 1}
	handler := RateLimitMiddleware(cfg, okHandler())

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send("1.2.3.4:1"); rr.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rr.Code)
	}
	rr := send("1.2.3.4:2")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rr.Code)
	}
	var body map[string]map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"]["code"] != "rate_limited" {
		t.Errorf("code=%v", body["error"]["code"])
	}

	if rr := send("5.6.7.8:1"); rr.Code != http.StatusOK {
		t.Fatalf("other IP must have its own bucket, got %d", rr.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimitMiddleware(&config.Config{}, okHandler())
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
}

func TestRateLimiterStoreEvictsIdleClients(t *testing.T) {
	store := newRateLimiterStore(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.allow("1.1.1.1")
	now = now.Add(limiterIdleTTL + time.Second)
	store.allow("2.2.2.2")

	if _, ok := store.clients["1.1.1.1"]; ok {
		t.Fatal("idle client must be evicted")
	}
	if len(store.clients) != 1 {
		t.Fatalf("clients=%d", len(store.clients))
	}
}

func TestGuestSessionMiddleware(t *testing.T) {
	var seen string
	handler := GuestSessionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = userctx.GetGuestToken(r.Context())
	}))

	t.Run("MintsToken", func(t *testing.T) {
		seen = ""
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/reports", nil))
		minted := rr.Header().Get(GuestTokenHeader)
		if _, err := uuid.Parse(minted); err != nil || seen != minted {
			t.Fatalf("minted=%q seen=%q", minted, seen)
		}
	})

	t.Run("EchoesValidToken", func(t *testing.T) {
		token := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
		req.Header.Set(GuestTokenHeader, token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if seen != token || rr.Header().Get(GuestTokenHeader) != token {
			t.Fatalf("seen=%q header=%q", seen, rr.Header().Get(GuestTokenHeader))
		}
	})

	t.Run("ReplacesGarbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
		req.Header.Set(GuestTokenHeader, "../../etc/passwd")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if _, err := uuid.Parse(seen); err != nil {
			t.Fatalf("garbage token must be replaced, got %q", seen)
		}
	})

	t.Run("AccountWithoutToken", func(t *testing.T) {
		seen = ""
		req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
		req = req.WithContext(userctx.WithUserID(req.Context(), uuid.NewString()))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if seen != "" || rr.Header().Get(GuestTokenHeader) != "" {
			t.Fatal("authenticated request must not get a guest token")
		}
	})

	t.Run("PublicPath", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/public/reports/abc", nil))
		if rr.Header().Get(GuestTokenHeader) != "" {
			t.Fatal("public path must not mint tokens")
		}
	})
}
