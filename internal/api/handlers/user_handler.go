package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/isdelr/todo-auth-be/internal/auth"
	"github.com/isdelr/todo-auth-be/internal/mailer"
	"github.com/isdelr/todo-auth-be/internal/models"
	"github.com/isdelr/todo-auth-be/internal/services"
	"github.com/rs/zerolog/log"
)

// MailQueue accepts outbound mail without waiting for delivery.
type MailQueue interface {
	Enqueue(msg mailer.Message) bool
}

// UserHandler handles HTTP requests for user management.
type UserHandler struct {
	service       services.UserServiceProvider
	auth          services.AuthServiceProvider
	mail          MailQueue
	publicBaseURL string
}

// NewUserHandler creates a new UserHandler. Confirmation links are built on
// publicBaseURL.
func NewUserHandler(service services.UserServiceProvider, authService services.AuthServiceProvider, mail MailQueue, publicBaseURL string) *UserHandler {
	return &UserHandler{service: service, auth: authService, mail: mail, publicBaseURL: publicBaseURL}
}

// UserPayload defines the structure for registration and profile updates.
type UserPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the payload fields.
func (p UserPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username, validation.Required, validation.Length(1, 50)),
		validation.Field(&p.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(1, 72)),
	)
}

// Register handles new user registration. The account stays inactive until
// the emailed confirmation link is visited.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload UserPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := payload.Validate(); err != nil {
		respondInvalid(w, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), payload.Username, payload.Email, payload.Password)
	if err != nil {
		log.Warn().Err(err).Str("email", payload.Email).Msg("Failed to register user")
		RespondError(w, r, err, "User")
		return
	}

	h.sendConfirmation(user)
	writeJSON(w, http.StatusCreated, user.Public())
}

func (h *UserHandler) sendConfirmation(user models.User) {
	token, err := h.auth.IssueConfirmation(user.Email)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to issue confirmation token")
		return
	}
	link := h.publicBaseURL + "/users/confirm/" + token
	if !h.mail.Enqueue(mailer.RegistrationMessage(user.Email, link)) {
		log.Error().Int64("user_id", user.ID).Msg("Confirmation mail was not queued")
	}
}

// GetAll lists users with offset/limit paging.
func (h *UserHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondInvalid(w, err)
		return
	}
	limit, err := queryInt(r, "limit", services.DefaultPageSize)
	if err != nil {
		respondInvalid(w, err)
		return
	}

	users, err := h.service.ListUsers(r.Context(), offset, limit)
	if err != nil {
		RespondError(w, r, err, "User")
		return
	}

	public := make([]models.UserPublic, 0, len(users))
	for _, u := range users {
		public = append(public, u.Public())
	}
	writeJSON(w, http.StatusOK, public)
}

// Confirm activates the account a confirmation token was issued for.
func (h *UserHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	user, err := h.auth.Confirm(r.Context(), token)
	if err != nil {
		RespondError(w, r, err, "User")
		return
	}

	log.Info().Int64("user_id", user.ID).Msg("Email confirmed")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Email confirmed"})
}

// Update handles replacing the caller's own profile.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondInvalid(w, err)
		return
	}
	current, _ := auth.UserFromContext(r.Context())

	var payload UserPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := payload.Validate(); err != nil {
		respondInvalid(w, err)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), current.ID, id, payload.Username, payload.Email, payload.Password)
	if err != nil {
		RespondError(w, r, err, "User")
		return
	}

	writeJSON(w, http.StatusOK, user.Public())
}

// Delete handles the permanent deletion of the caller's own account.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondInvalid(w, err)
		return
	}
	current, _ := auth.UserFromContext(r.Context())

	if err := h.service.DeleteUser(r.Context(), current.ID, id); err != nil {
		RespondError(w, r, err, "User")
		return
	}

	log.Info().Int64("user_id", id).Msg("User deleted")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User deleted"})
}
