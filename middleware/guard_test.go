package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/streamauth"
	"github.com/MrEthical07/streamauth/middleware"
	"github.com/MrEthical07/streamauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newEngine(t *testing.T) *streamauth.Engine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := memory.New()

	cfg := streamauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdefghijkl")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdefghijk")

	engine, err := streamauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithDeviceStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return engine
}

func issueToken(t *testing.T, engine *streamauth.Engine, email, role string) string {
	t.Helper()

	ctx := context.Background()
	if _, err := engine.Register(ctx, streamauth.RegisterRequest{Email: email, Password: "correct-horse-battery", Role: role}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := engine.Login(ctx, streamauth.LoginRequest{Email: email, Password: "correct-horse-battery", DeviceID: "tv-1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return res.Tokens.AccessToken
}

func TestGuardAcceptsValidAccessToken(t *testing.T) {
	engine := newEngine(t)
	token := issueToken(t, engine, "viewer@example.com", "")

	var seen *streamauth.AuthResult
	h := middleware.Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = middleware.AuthResultFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen == nil || seen.UserID == "" {
		t.Fatal("expected auth result in context")
	}
	if seen.Role != "viewer" {
		t.Fatalf("expected default role viewer, got %q", seen.Role)
	}
}

func TestGuardRejectsMissingAndMalformedTokens(t *testing.T) {
	engine := newEngine(t)
	called := false
	h := middleware.Guard(engine)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
	if called {
		t.Fatal("handler must not run for rejected requests")
	}
}

func TestGuardNilEngine(t *testing.T) {
	h := middleware.Guard(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	engine := newEngine(t)
	viewer := issueToken(t, engine, "viewer@example.com", "")
	admin := issueToken(t, engine, "admin@example.com", "admin")

	h := middleware.Guard(engine)(middleware.RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	cases := []struct {
		token string
		want  int
	}{
		{token: viewer, want: http.StatusForbidden},
		{token: admin, want: http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+tc.token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("expected %d, got %d", tc.want, rec.Code)
		}
	}
}

func TestRequireRoleWithoutGuard(t *testing.T) {
	h := middleware.RequireRole("admin")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := middleware.BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("expected abc, got %q %v", tok, ok)
	}
	if _, ok := middleware.BearerToken("bearer abc"); ok {
		t.Fatal("scheme is case sensitive")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5123"
	req.Header.Set("X-Forwarded-For", "203.0.113.4, 10.0.0.1")

	if got := middleware.ClientIP(req, false); got != "10.0.0.9" {
		t.Fatalf("expected socket address, got %q", got)
	}
	if got := middleware.ClientIP(req, true); got != "203.0.113.4" {
		t.Fatalf("expected forwarded address, got %q", got)
	}
}

func TestClientMetaFeedsLoginAudit(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()
	if _, err := engine.Register(ctx, streamauth.RegisterRequest{Email: "meta@example.com", Password: "correct-horse-battery"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var deviceIP, deviceUA string
	h := middleware.ClientMeta(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := engine.Login(r.Context(), streamauth.LoginRequest{Email: "meta@example.com", Password: "correct-horse-battery", DeviceID: "web-1"})
		if err != nil {
			t.Errorf("Login: %v", err)
			return
		}
		devices, err := engine.Devices(r.Context(), res.UserID)
		if err != nil || len(devices) != 1 {
			t.Errorf("Devices: %v %v", devices, err)
			return
		}
		deviceIP, deviceUA = devices[0].IP, devices[0].UserAgent
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "198.51.100.2:40000"
	req.Header.Set("User-Agent", "SmartTV/1.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if deviceIP != "198.51.100.2" || deviceUA != "SmartTV/1.0" {
		t.Fatalf("expected device metadata from request, got %q %q", deviceIP, deviceUA)
	}
}
