package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	testAccessSecret  = []byte("access-secret-access-secret-0123")
	testRefreshSecret = []byte("refresh-secret-refresh-secret-01")
)

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "streamauth",
		Audience:      "api",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerRejectsUnsafeConfig(t *testing.T) {
	cases := map[string]Config{
		"missing ttl":    {AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret},
		"missing secret": {AccessSecret: testAccessSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour},
		"shared secret":  {AccessSecret: testAccessSecret, RefreshSecret: testAccessSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour},
		"large leeway":   {AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour, Leeway: time.Hour},
	}
	for name, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestAccessRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)

	tok, exp, err := m.CreateAccess("u1", "member")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if d := time.Until(exp); d <= 14*time.Minute || d > 15*time.Minute {
		t.Fatalf("unexpected access expiry %v", d)
	}

	claims, err := m.ParseAccess(tok)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "u1" || claims.Role != "member" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID == "" || claims.IssuedAt == nil {
		t.Fatal("expected jti and iat")
	}
}

func TestTokenClassesDoNotCrossVerify(t *testing.T) {
	m := newTestManager(t, nil)

	access, _, _ := m.CreateAccess("u1", "member")
	refresh, _, _ := m.CreateRefresh("u1")

	if _, err := m.ParseRefresh(access); err == nil {
		t.Fatal("access token must not verify as refresh")
	}
	if _, err := m.ParseAccess(refresh); err == nil {
		t.Fatal("refresh token must not verify as access")
	}
	if _, err := m.ParseRefresh(refresh); err != nil {
		t.Fatalf("refresh should verify: %v", err)
	}
}

func TestRefreshTokensAreUnique(t *testing.T) {
	m := newTestManager(t, nil)
	a, _, _ := m.CreateRefresh("u1")
	b, _, _ := m.CreateRefresh("u1")
	if a == b {
		t.Fatal("expected distinct refresh tokens")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, func(c *Config) { c.Now = func() time.Time { return now } })

	tok, _, err := m.CreateRefresh("u1")
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}

	now = now.Add(8 * 24 * time.Hour)
	if _, err := m.ParseRefresh(tok); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	m := newTestManager(t, nil)

	claims := AccessClaims{Role: "admin", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "streamauth",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testAccessSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseAccess(tok); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.ParseAccess(none); err == nil {
		t.Fatal("expected alg=none to be rejected")
	}
}

func TestParseRejectsIssuerAudienceAndSubject(t *testing.T) {
	m := newTestManager(t, nil)
	exp := gjwt.NewNumericDate(time.Now().Add(time.Minute))

	sign := func(rc gjwt.RegisteredClaims) string {
		tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, AccessClaims{RegisteredClaims: rc}).SignedString(testAccessSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}

	cases := map[string]gjwt.RegisteredClaims{
		"wrong issuer":   {Subject: "u", Issuer: "other", Audience: gjwt.ClaimStrings{"api"}, ExpiresAt: exp},
		"wrong audience": {Subject: "u", Issuer: "streamauth", Audience: gjwt.ClaimStrings{"web"}, ExpiresAt: exp},
		"no expiry":      {Subject: "u", Issuer: "streamauth", Audience: gjwt.ClaimStrings{"api"}},
		"no subject":     {Issuer: "streamauth", Audience: gjwt.ClaimStrings{"api"}, ExpiresAt: exp},
		"future iat": {Subject: "u", Issuer: "streamauth", Audience: gjwt.ClaimStrings{"api"}, ExpiresAt: gjwt.NewNumericDate(time.Now().Add(48 * time.Hour)),
			IssuedAt: gjwt.NewNumericDate(time.Now().Add(24 * time.Hour))},
	}
	for name, rc := range cases {
		if _, err := m.ParseAccess(sign(rc)); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func TestCreateRejectsEmptySubject(t *testing.T) {
	m := newTestManager(t, nil)
	if _, _, err := m.CreateAccess("", "member"); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
	if _, _, err := m.CreateRefresh(""); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}
