package handler

import (
	"net/http"
	"time"

	"ecoaction/internal/httputil"
	"ecoaction/internal/model"
	"ecoaction/internal/service"
)

// AuthHandler groups the OTP login endpoints.
type AuthHandler struct {
	authService   *service.AuthService
	userService   *service.UserService
	secureCookies bool
}

// NewAuthHandler wires dependencies for authentication endpoints.
// secureCookies marks the session cookie Secure (HTTPS only).
func NewAuthHandler(authService *service.AuthService, userService *service.UserService, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		userService:   userService,
		secureCookies: secureCookies,
	}
}

// RequestOTP mails a login code
// POST /auth/otp
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req model.RequestOTPRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.authService.RequestOTP(r.Context(), req.Email); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteMessage(w, "OTP sent")
}

// VerifyOTP exchanges a valid code for a session
// POST /auth/otp/verify
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyOTPRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	resp, err := h.authService.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     service.SessionCookieName,
		Value:    resp.Token,
		Path:     "/",
		MaxAge:   resp.ExpiresIn,
		Expires:  time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Logout clears the session cookie. Tokens are stateless, so a client
// holding a bearer token simply discards it.
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     service.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteMessage(w, "Logged out")
}

// Me returns the currently authenticated user
// GET /me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	profile, err := h.userService.GetUser(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, profile)
}
