package handlers

import (
	"net/http"

	"github.com/isdelr/todo-auth-be/internal/common"
	"github.com/isdelr/todo-auth-be/internal/services"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles token issuance.
type AuthHandler struct {
	service services.AuthServiceProvider
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service services.AuthServiceProvider) *AuthHandler {
	return &AuthHandler{service: service}
}

// TokenResponse is returned by the token endpoints.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges form credentials for an access token. The "username" form
// field carries the email address.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid form body")
		return
	}
	email := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	token, err := h.service.Authenticate(r.Context(), email, password)
	if err != nil {
		log.Warn().Err(err).Str("email", email).Msg("Failed authentication attempt")
		RespondError(w, r, err, "User")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Refresh exchanges a valid bearer token for a new one.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	bearer, ok := BearerToken(r)
	if !ok {
		RespondError(w, r, common.ErrUnauthenticated, "User")
		return
	}

	token, err := h.service.Refresh(r.Context(), bearer)
	if err != nil {
		RespondError(w, r, err, "User")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}
