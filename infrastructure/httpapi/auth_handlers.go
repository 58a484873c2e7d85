package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"parley/auth"
	"parley/errors"
	"parley/services"
)

type AuthHandlers struct {
	log           *slog.Logger
	service       services.IAuthService
	cookieMaxAge  time.Duration
	secureCookies bool
}

func NewAuthHandlers(log *slog.Logger, service services.IAuthService,
	cookieMaxAge time.Duration, secureCookies bool) *AuthHandlers {
	return &AuthHandlers{
		log:           log,
		service:       service,
		cookieMaxAge:  cookieMaxAge,
		secureCookies: secureCookies,
	}
}

func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	token, profile, err := h.service.Register(req)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	h.setSession(w, token)
	writeJSON(w, http.StatusCreated, profile)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}

	token, profile, err := h.service.Login(req)
	if err != nil {
		writeError(h.log, w, err)
		return
	}

	h.setSession(w, token)
	writeJSON(w, http.StatusOK, profile)
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, nil)
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	profile, err := h.service.Me(principal.UserID)
	if err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *AuthHandlers) SetDark(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	var req struct {
		Dark bool `json:"dark"`
	}
	if err := decode(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}
	if err := h.service.SetDark(principal.UserID, req.Dark); err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *AuthHandlers) SetPicture(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(h.log, w, errors.ErrUnauthenticated)
		return
	}

	var req struct {
		Picture string `json:"picture"`
	}
	if err := decode(r, &req); err != nil {
		writeError(h.log, w, err)
		return
	}
	if err := h.service.SetPicture(principal.UserID, req.Picture); err != nil {
		writeError(h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *AuthHandlers) setSession(w http.ResponseWriter, token services.Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token.String(),
		Path:     "/",
		MaxAge:   int(h.cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
