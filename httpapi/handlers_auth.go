package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/streamauth"
	"github.com/MrEthical07/streamauth/middleware"
	"github.com/go-chi/chi/v5"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	UserID   string               `json:"userId"`
	Role     string               `json:"role"`
	DeviceID string               `json:"deviceId"`
	Tokens   streamauth.TokenPair `json:"tokens"`
}

type refreshResponse struct {
	UserID   string               `json:"userId"`
	DeviceID string               `json:"deviceId"`
	Tokens   streamauth.TokenPair `json:"tokens"`
}

var errMissingRefreshToken = errors.New("refresh token is required")

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeValidationError(r.Context(), w, "register", err)
		return
	}

	userID, err := h.engine.Register(r.Context(), streamauth.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeMappedError(r.Context(), w, "register", err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]string{"userId": userID})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeValidationError(r.Context(), w, "login", err)
		return
	}

	res, err := h.engine.Login(r.Context(), streamauth.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		DeviceID:   req.DeviceID,
		DeviceType: req.DeviceType,
	})
	if err != nil {
		h.writeMappedError(r.Context(), w, "login", err)
		return
	}

	h.setRefreshCookie(w, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)
	writeSuccess(w, http.StatusOK, loginResponse{
		UserID:   res.UserID,
		Role:     res.Role,
		DeviceID: res.DeviceID,
		Tokens:   res.Tokens,
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token, err := refreshTokenFromRequest(r)
	if err != nil {
		h.writeValidationError(r.Context(), w, "refresh", err)
		return
	}

	res, err := h.engine.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, streamauth.ErrTokenRevoked) || errors.Is(err, streamauth.ErrInvalidToken) {
			h.clearRefreshCookie(w)
		}
		h.writeMappedError(r.Context(), w, "refresh", err)
		return
	}

	h.setRefreshCookie(w, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)
	writeSuccess(w, http.StatusOK, refreshResponse{
		UserID:   res.UserID,
		DeviceID: res.DeviceID,
		Tokens:   res.Tokens,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, err := refreshTokenFromRequest(r)
	if err != nil {
		h.writeValidationError(r.Context(), w, "logout", err)
		return
	}

	if err := h.engine.Logout(r.Context(), token); err != nil {
		h.writeMappedError(r.Context(), w, "logout", err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())

	n, err := h.engine.LogoutAll(r.Context(), auth.UserID)
	if err != nil {
		h.writeMappedError(r.Context(), w, "logout_all", err)
		return
	}
	h.clearRefreshCookie(w)
	writeSuccess(w, http.StatusOK, map[string]int{"devicesRemoved": n})
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())

	devices, err := h.engine.Devices(r.Context(), auth.UserID)
	if err != nil {
		h.writeMappedError(r.Context(), w, "list_devices", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"devices": devices})
}

func (h *Handler) logoutDevice(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())

	if err := h.engine.LogoutDevice(r.Context(), auth.UserID, chi.URLParam(r, "deviceID")); err != nil {
		h.writeMappedError(r.Context(), w, "logout_device", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// refreshTokenFromRequest prefers a JSON body and falls back to the cookie.
func refreshTokenFromRequest(r *http.Request) (string, error) {
	if r.ContentLength != 0 {
		var req refreshRequest
		if err := decodeBody(r, &req); err != nil {
			return "", err
		}
		if req.RefreshToken != "" {
			return req.RefreshToken, nil
		}
	}
	if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errMissingRefreshToken
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/auth",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
