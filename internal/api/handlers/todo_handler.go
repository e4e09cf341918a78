package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/isdelr/todo-auth-be/internal/auth"
	"github.com/isdelr/todo-auth-be/internal/models"
	"github.com/isdelr/todo-auth-be/internal/services"
	"github.com/rs/zerolog/log"
)

// TodoHandler handles HTTP requests related to todos. Every route requires
// an authenticated user.
type TodoHandler struct {
	service services.TodoServiceProvider
}

// NewTodoHandler creates a new TodoHandler.
func NewTodoHandler(service services.TodoServiceProvider) *TodoHandler {
	return &TodoHandler{service: service}
}

// TodoListResponse wraps a todo listing.
type TodoListResponse struct {
	Todos []models.Todo `json:"todos"`
}

var (
	stateRule       = validation.In(stateValues()...).Error("must be one of draft, todo, doing, done, trash")
	errInvalidState = errors.New("must be one of draft, todo, doing, done, trash")
)

func stateValues() []interface{} {
	values := make([]interface{}, 0, len(models.TodoStates))
	for _, s := range models.TodoStates {
		values = append(values, s)
	}
	return values
}

// TodoPayload is the body of a todo creation request.
type TodoPayload models.TodoInput

// Validate checks the payload fields.
func (p TodoPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Description, validation.Length(0, 2000)),
		validation.Field(&p.State, validation.Required, stateRule),
	)
}

// TodoPatchPayload is the body of a partial todo update.
type TodoPatchPayload models.TodoPatch

// Validate checks the fields that are present.
func (p TodoPatchPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&p.Description, validation.Length(0, 2000)),
		validation.Field(&p.State, validation.NilOrNotEmpty, stateRule),
	)
}

// Create handles the request to create a new todo.
func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var payload TodoPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := payload.Validate(); err != nil {
		respondInvalid(w, err)
		return
	}

	todo, err := h.service.CreateTodo(r.Context(), user.ID, models.TodoInput(payload))
	if err != nil {
		RespondError(w, r, err, "Todo")
		return
	}

	writeJSON(w, http.StatusCreated, todo)
}

// GetAll handles the request to list the caller's todos.
func (h *TodoHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	query := r.URL.Query()

	filter := models.TodoFilter{
		Title:       query.Get("title"),
		Description: query.Get("description"),
		State:       models.TodoState(query.Get("state")),
	}
	if filter.State != "" && !filter.State.Valid() {
		respondInvalid(w, validation.Errors{"state": errInvalidState})
		return
	}

	var err error
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		respondInvalid(w, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit", services.DefaultPageSize); err != nil {
		respondInvalid(w, err)
		return
	}

	todos, err := h.service.ListTodos(r.Context(), user.ID, filter)
	if err != nil {
		RespondError(w, r, err, "Todo")
		return
	}

	writeJSON(w, http.StatusOK, TodoListResponse{Todos: todos})
}

// Get handles the request to get a single todo by its ID.
func (h *TodoHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondInvalid(w, err)
		return
	}

	todo, err := h.service.GetTodo(r.Context(), user.ID, id)
	if err != nil {
		RespondError(w, r, err, "Todo")
		return
	}

	writeJSON(w, http.StatusOK, todo)
}

// Update handles the request to partially update a todo.
func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondInvalid(w, err)
		return
	}

	var payload TodoPatchPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := payload.Validate(); err != nil {
		respondInvalid(w, err)
		return
	}

	todo, err := h.service.UpdateTodo(r.Context(), user.ID, id, models.TodoPatch(payload))
	if err != nil {
		log.Debug().Err(err).Int64("todo_id", id).Int64("user_id", user.ID).Msg("Todo update rejected")
		RespondError(w, r, err, "Todo")
		return
	}

	writeJSON(w, http.StatusOK, todo)
}

// Delete handles the request to delete a todo.
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondInvalid(w, err)
		return
	}

	if err := h.service.DeleteTodo(r.Context(), user.ID, id); err != nil {
		RespondError(w, r, err, "Todo")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Todo deleted"})
}
