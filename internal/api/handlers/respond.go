package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/isdelr/todo-auth-be/internal/auth"
	"github.com/isdelr/todo-auth-be/internal/common"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail interface{} `json:"detail"`
}

// MessageResponse is the body of requests that only report success.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeDetail(w http.ResponseWriter, status int, detail interface{}) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// RespondError maps a service error to its HTTP status and writes it.
// resource names the entity in not-found messages.
func RespondError(w http.ResponseWriter, r *http.Request, err error, resource string) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		writeDetail(w, http.StatusUnauthorized, "Token has expired")
	case errors.Is(err, common.ErrUnauthenticated):
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
	case errors.Is(err, common.ErrInvalidCredentials):
		writeDetail(w, http.StatusBadRequest, "Incorrect email or password")
	case errors.Is(err, common.ErrAccountInactive):
		writeDetail(w, http.StatusBadRequest, "Account is not activated")
	case errors.Is(err, common.ErrForbidden):
		writeDetail(w, http.StatusBadRequest, "Not enough permissions")
	case errors.Is(err, common.ErrConflict):
		writeDetail(w, http.StatusBadRequest, "Username or email already registered")
	case errors.Is(err, common.ErrNotFound):
		writeDetail(w, http.StatusNotFound, resource+" not found")
	case errors.Is(err, common.ErrValidation):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

// respondInvalid writes a 422 carrying the validation details, keyed by
// field when available.
func respondInvalid(w http.ResponseWriter, err error) {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		writeDetail(w, http.StatusUnprocessableEntity, fieldErrs)
		return
	}
	writeDetail(w, http.StatusUnprocessableEntity, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// queryInt parses the non-negative integer query parameter name. A missing
// parameter yields def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

// pathID parses the numeric {id} URL parameter.
func pathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}
