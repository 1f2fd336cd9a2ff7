package flows

import (
	"context"
	"net/mail"
	"strings"
	"time"
)

// RegisterRequest is the flow-local registration input.
type RegisterRequest struct {
	Email    string
	Password string
	Role     string
}

// NewUserInput is handed to the user store on registration.
type NewUserInput struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type AccountMetrics struct {
	AccountCreationSuccess   int
	AccountCreationDuplicate int
	StoreUnavailable         int
}

type AccountEvents struct {
	AccountCreationSuccess   string
	AccountCreationFailure   string
	AccountCreationDuplicate string
}

type AccountErrors struct {
	EngineNotReady   error
	InvalidRequest   error
	PasswordPolicy   error
	AccountExists    error
	StoreUnavailable error
}

type AccountDeps struct {
	DefaultRole string

	Now          func() time.Time
	NewUserID    func() string
	HashPassword func(string) (string, error)
	CreateUser   func(context.Context, NewUserInput) error
	IsDuplicate  func(error) bool

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, identity, deviceID string, err error, metadata func() map[string]string)

	Metrics AccountMetrics
	Events  AccountEvents
	Errors  AccountErrors
}

// RunRegister creates an Active user with a freshly hashed password and
// returns the new user id.
func RunRegister(ctx context.Context, req RegisterRequest, deps AccountDeps) (string, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	if deps.HashPassword == nil || deps.CreateUser == nil || deps.NewUserID == nil {
		return "", deps.Errors.EngineNotReady
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(email) {
		deps.EmitAudit(ctx, deps.Events.AccountCreationFailure, false, "", email, "", deps.Errors.InvalidRequest, func() map[string]string {
			return map[string]string{"reason": "invalid_email"}
		})
		return "", deps.Errors.InvalidRequest
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.AccountCreationFailure, false, "", email, "", deps.Errors.PasswordPolicy, func() map[string]string {
			return map[string]string{"reason": "password_policy"}
		})
		return "", deps.Errors.PasswordPolicy
	}

	role := req.Role
	if role == "" {
		role = deps.DefaultRole
	}

	userID := deps.NewUserID()
	if err := deps.CreateUser(ctx, NewUserInput{
		UserID:       userID,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    deps.Now(),
	}); err != nil {
		if deps.IsDuplicate != nil && deps.IsDuplicate(err) {
			deps.MetricInc(deps.Metrics.AccountCreationDuplicate)
			deps.EmitAudit(ctx, deps.Events.AccountCreationDuplicate, false, "", email, "", deps.Errors.AccountExists, nil)
			return "", deps.Errors.AccountExists
		}
		deps.MetricInc(deps.Metrics.StoreUnavailable)
		deps.EmitAudit(ctx, deps.Events.AccountCreationFailure, false, "", email, "", err, func() map[string]string {
			return map[string]string{"reason": "store_error"}
		})
		return "", wrapStore(deps.Errors.StoreUnavailable, err)
	}

	deps.MetricInc(deps.Metrics.AccountCreationSuccess)
	deps.EmitAudit(ctx, deps.Events.AccountCreationSuccess, true, userID, email, "", nil, nil)
	return userID, nil
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
