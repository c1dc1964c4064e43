package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/analytics"
	"github.com/Carnacky79/energy-optimizer-v2/internal/blob"
	"github.com/Carnacky79/energy-optimizer-v2/internal/config"
	"github.com/Carnacky79/energy-optimizer-v2/internal/quota"
	"github.com/Carnacky79/energy-optimizer-v2/internal/reports"
	"github.com/Carnacky79/energy-optimizer-v2/internal/scoring"
	"github.com/Carnacky79/energy-optimizer-v2/internal/storage/memory"
	"github.com/Carnacky79/energy-optimizer-v2/internal/userctx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingEmitter) Emit(ev analytics.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

type testEnv struct {
	service *Service
	reports *reports.Service
	store   *memory.MemoryStorage
	events  *recordingEmitter
	handler http.Handler
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New()
	cfg := &config.Config{
		JWTSecret:     "test-secret-key-for-testing-only",
		JWTIssuer:     "energy-optimizer-test",
		JWTTTLMinutes: 60,
	}
	events := &recordingEmitter{}

	reportsSvc, err := reports.NewService(
		store,
		reports.NewGuestStore(blob.NewMemoryStore(), 24*time.Hour),
		quota.NewPlanChecker(store, config.QuotaConfig{GuestReports: 3, FreeReports: 10}),
		events,
		reports.Options{SnowflakeNode: 1, PageSizeMax: 100, GuestMax: 3},
	)
	if err != nil {
		t.Fatalf("reports.NewService: %v", err)
	}

	service := NewService(cfg, store, reportsSvc, events)
	service.hashCost = bcrypt.MinCost

	mux := http.NewServeMux()
	NewHandlers(service).Register(mux)
	handler := NewMiddleware(service).OptionalAuth(mux)

	return &testEnv{service: service, reports: reportsSvc, store: store, events: events, handler: handler}
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRegisterAndMe(t *testing.T) {
	env := setupTestService(t)

	w := postJSON(t, env.handler, "/v1/auth/register", RegisterRequest{
		Email:    "Alice@Example.com",
		Password: "correct horse",
		Name:     "Alice",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d. Body: %s", w.Code, w.Body.String())
	}

	var resp AuthResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.AccessToken == "" || resp.TokenType != "Bearer" {
		t.Fatalf("unexpected token response: %+v", resp)
	}
	if resp.Account.Email != "alice@example.com" || resp.Account.Plan != "free" {
		t.Fatalf("unexpected account: %+v", resp.Account)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", w.Code)
	}
	var me AccountDTO
	json.NewDecoder(w.Body).Decode(&me)
	if me.ID != resp.Account.ID {
		t.Fatalf("me id=%s want %s", me.ID, resp.Account.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := setupTestService(t)

	tests := []struct {
		name     string
		req      RegisterRequest
		wantCode int
	}{
		{"bad email", RegisterRequest{Email: "nope", Password: "12345678", Name: "A"}, http.StatusBadRequest},
		{"short password", RegisterRequest{Email: "a@example.com", Password: "1234567", Name: "A"}, http.StatusBadRequest},
		{"missing name", RegisterRequest{Email: "a@example.com", Password: "12345678"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := postJSON(t, env.handler, "/v1/auth/register", tt.req); w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
		})
	}

	ok := RegisterRequest{Email: "a@example.com", Password: "12345678", Name: "A"}
	if w := postJSON(t, env.handler, "/v1/auth/register", ok); w.Code != http.StatusCreated {
		t.Fatalf("first register: %d", w.Code)
	}
	if w := postJSON(t, env.handler, "/v1/auth/register", ok); w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", w.Code)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	if _, err := env.service.Register(ctx, RegisterRequest{Email: "a@example.com", Password: "12345678", Name: "A"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := env.service.Login(ctx, LoginRequest{Email: "a@example.com", Password: "wrong-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.service.Login(ctx, LoginRequest{Email: "ghost@example.com", Password: "12345678"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	w := postJSON(t, env.handler, "/v1/auth/login", LoginRequest{Email: "A@example.com", Password: "12345678"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", w.Code)
	}
}

func TestRegisterMigratesGuestReportsOnce(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	token := uuid.NewString()
	guest := userctx.GuestOwner(token)

	for i := 0; i < 2; i++ {
		_, err := env.reports.CreateReport(ctx, guest, reports.CreateReportRequest{
			Profile: scoring.EnergyProfile{ConsumptionKWh: 350, Bill: 150, AreaM2: 100},
		})
		if err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
	}

	resp, err := env.service.Register(ctx, RegisterRequest{
		Email:      "a@example.com",
		Password:   "12345678",
		Name:       "A",
		GuestToken: token,
		Ref:        "pub123",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.MigratedReports != 2 || resp.Account.Stats.TotalReports != 2 {
		t.Fatalf("migrated=%d stats=%+v", resp.MigratedReports, resp.Account.Stats)
	}

	// повторный вход с тем же токеном ничего не дублирует
	login, err := env.service.Login(ctx, LoginRequest{Email: "a@example.com", Password: "12345678", GuestToken: token})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.MigratedReports != 0 || login.Account.Stats.TotalReports != 2 {
		t.Fatalf("replay migrated=%d stats=%+v", login.MigratedReports, login.Account.Stats)
	}

	conversions := 0
	for _, ev := range env.events.events {
		if ev.Type == analytics.EventConversion && ev.PublicID == "pub123" {
			conversions++
		}
	}
	if conversions != 1 {
		t.Fatalf("conversion events=%d", conversions)
	}
}

func TestOptionalAuth(t *testing.T) {
	env := setupTestService(t)

	var seen string
	h := NewMiddleware(env.service).OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = userctx.GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("NoToken", func(t *testing.T) {
		seen = ""
		req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK || seen != "" {
			t.Fatalf("guest request: code=%d user=%q", w.Code, seen)
		}
	})

	t.Run("ValidToken", func(t *testing.T) {
		id := uuid.NewString()
		token, err := env.service.generateJWT(id)
		if err != nil {
			t.Fatalf("generateJWT: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK || seen != id {
			t.Fatalf("code=%d user=%q want %q", w.Code, seen, id)
		}
	})

	t.Run("InvalidToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub": uuid.NewString(),
			"iss": env.service.config.JWTIssuer,
			"exp": time.Now().Add(-time.Minute).Unix(),
			"iat": time.Now().Add(-time.Hour).Unix(),
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(env.service.config.JWTSecret))
		req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})
}
