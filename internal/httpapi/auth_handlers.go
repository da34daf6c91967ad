package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tijara.org/internal/audit"
	"tijara.org/internal/auth"
	"tijara.org/internal/obs"
)

type signupRequest struct {
	Email    string `json:"email"`
	UserName string `json:"username"`
	Password string `json:"password"`
}

type confirmEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resendConfirmEmailRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.auth.Signup(r.Context(), req.Email, req.UserName, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "email already registered")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "signup failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{
		"email": strings.ToLower(strings.TrimSpace(req.Email)),
	})
	writeJSON(w, http.StatusCreated, map[string]any{"status": "confirmation email sent"})
}

func (a *API) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req confirmEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.auth.ConfirmEmail(r.Context(), req.Email, req.Code)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusBadRequest, "invalid code")
		return
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "account already confirmed")
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "confirmation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.email.confirmed", map[string]any{
		"email": strings.ToLower(strings.TrimSpace(req.Email)),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "confirmed"})
}

func (a *API) handleResendConfirmEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resendConfirmEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.auth.ResendConfirmEmail(r.Context(), req.Email)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusBadRequest, "unknown email")
		return
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "account already confirmed")
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "resend failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.confirm_email.resent", map[string]any{
		"email": strings.ToLower(strings.TrimSpace(req.Email)),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "confirmation email sent"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	obs.AuthLogin()
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"email": strings.ToLower(strings.TrimSpace(req.Email)),
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	pair, err := a.auth.Refresh(r.Context(), r.Header.Get(authHeader))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	obs.AuthRevoked()
	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	creds, ok := auth.CredentialsFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthorized)
		return
	}
	if err := a.auth.Logout(r.Context(), creds); err != nil {
		writeAuthError(w, r, err)
		return
	}
	obs.AuthRevoked()
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"jti": creds.Claims.TokenID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	creds, ok := auth.CredentialsFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       creds.User.ID,
		"email":    creds.User.Email,
		"username": creds.User.UserName,
		"role":     creds.User.Role,
		"provider": creds.User.Provider,
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	creds, ok := auth.CredentialsFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthorized)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.NewPassword) == "" {
		writeError(w, r, http.StatusBadRequest, "new password is required")
		return
	}
	if err := a.auth.ChangePassword(r.Context(), creds, req.OldPassword, req.NewPassword); err != nil {
		writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.changed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "password changed"})
}

type revokedTokenView struct {
	JTI       string    `json:"jti"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *API) handleRevokedTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 || val > 1000 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = val
	}
	records, err := a.auth.RecentRevocations(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	views := make([]revokedTokenView, 0, len(records))
	for _, rec := range records {
		views = append(views, revokedTokenView{
			JTI:       rec.JTI,
			UserID:    rec.UserID,
			ExpiresAt: rec.ExpiresAt,
			CreatedAt: rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked_tokens": views})
}
