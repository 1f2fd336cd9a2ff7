package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMissingSubject is returned when a verified token carries no subject.
	ErrMissingSubject = errors.New("token subject is empty")
	// ErrTokenFromFuture is returned when iat is beyond MaxFutureIAT.
	ErrTokenFromFuture = errors.New("token iat too far in the future")
)

// Config defines a public type used by streamauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	// Now overrides the clock used for issuing and validating tokens.
	Now func() time.Time
}

// Manager signs and verifies the two token classes. Access and refresh
// tokens use distinct HS256 secrets so a token of one class never verifies
// as the other.
type Manager struct {
	config Config
}

// AccessClaims are carried by short-lived access tokens.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by long-lived refresh tokens.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a [Manager].
//
// NewManager may return an error when secrets are missing or shared between
// classes, or when TTL and leeway settings are out of range.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("hs256 requires access and refresh secrets")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// CreateAccess signs an access token for userID with role and returns it
// with its expiry.
func (j *Manager) CreateAccess(userID, role string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	now := j.config.Now()
	exp := now.Add(j.config.AccessTTL)
	claims := AccessClaims{
		Role:             role,
		RegisteredClaims: j.registered(userID, now, exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.config.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// CreateRefresh signs a refresh token for userID and returns it with its
// expiry. Every token carries a fresh jti, so two refresh tokens minted in
// the same second for the same user still differ.
func (j *Manager) CreateRefresh(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	now := j.config.Now()
	exp := now.Add(j.config.RefreshTTL)
	claims := RefreshClaims{RegisteredClaims: j.registered(userID, now, exp)}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.config.RefreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess verifies signature, algorithm, expiry, issuer and audience of
// an access token.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, j.config.AccessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token the same way as [Manager.ParseAccess]
// but against the refresh secret.
func (j *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, j.config.RefreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (j *Manager) registered(userID string, now, exp time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
		Issuer:    j.config.Issuer,
	}
	if j.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return rc
}

type subjectClaims interface {
	jwt.Claims
	registeredClaims() *jwt.RegisteredClaims
}

func (c *AccessClaims) registeredClaims() *jwt.RegisteredClaims  { return &c.RegisteredClaims }
func (c *RefreshClaims) registeredClaims() *jwt.RegisteredClaims { return &c.RegisteredClaims }

func (j *Manager) parse(tokenStr string, claims subjectClaims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}

	rc := claims.registeredClaims()
	if strings.TrimSpace(rc.Subject) == "" {
		return ErrMissingSubject
	}
	if rc.IssuedAt != nil {
		maxAllowed := j.config.Now().Add(j.config.MaxFutureIAT)
		if rc.IssuedAt.Time.After(maxAllowed) {
			return ErrTokenFromFuture
		}
	}

	return nil
}
