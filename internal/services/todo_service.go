package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/isdelr/todo-auth-be/internal/auth"
	"github.com/isdelr/todo-auth-be/internal/cache"
	"github.com/isdelr/todo-auth-be/internal/common"
	"github.com/isdelr/todo-auth-be/internal/database"
	"github.com/isdelr/todo-auth-be/internal/models"
	"github.com/rs/zerolog/log"
)

// TodoServiceProvider defines the interface for todo services.
type TodoServiceProvider interface {
	CreateTodo(ctx context.Context, ownerID int64, input models.TodoInput) (models.Todo, error)
	ListTodos(ctx context.Context, ownerID int64, filter models.TodoFilter) ([]models.Todo, error)
	GetTodo(ctx context.Context, ownerID, id int64) (models.Todo, error)
	UpdateTodo(ctx context.Context, actingID, id int64, patch models.TodoPatch) (models.Todo, error)
	DeleteTodo(ctx context.Context, actingID, id int64) error
}

// TodoService provides business logic for todo items.
type TodoService struct {
	db     *database.DB
	cache  cache.TodoCache
	events EventServiceProvider
}

// NewTodoService creates a new TodoService. A nil cache disables caching.
func NewTodoService(db *database.DB, todoCache cache.TodoCache, events EventServiceProvider) *TodoService {
	if todoCache == nil {
		todoCache = cache.Nop{}
	}
	return &TodoService{db: db, cache: todoCache, events: events}
}

const todoColumns = "id, title, description, state, user_id, created_at"

// CreateTodo stores a new todo owned by ownerID.
func (s *TodoService) CreateTodo(ctx context.Context, ownerID int64, input models.TodoInput) (models.Todo, error) {
	if !input.State.Valid() {
		return models.Todo{}, fmt.Errorf("%w: unknown state %q", common.ErrValidation, input.State)
	}

	todo := models.Todo{
		Title:       input.Title,
		Description: input.Description,
		State:       input.State,
		OwnerID:     ownerID,
	}

	err := s.db.QueryRowContext(ctx,
		s.db.Rebind("INSERT INTO todos (title, description, state, user_id) VALUES (?, ?, ?, ?) RETURNING id"),
		todo.Title, todo.Description, string(todo.State), todo.OwnerID).Scan(&todo.ID)
	if err != nil {
		return models.Todo{}, err
	}

	log.Debug().Int64("todo_id", todo.ID).Int64("user_id", ownerID).Msg("Todo created")
	recordEvent(ctx, s.events, "todo.create", LevelInfo, fmt.Sprintf("Todo '%s' created.", todo.Title), &ownerID)
	return todo, nil
}

// ListTodos returns ownerID's todos matching filter, ordered by ID.
// Text filters are substring matches.
func (s *TodoService) ListTodos(ctx context.Context, ownerID int64, filter models.TodoFilter) ([]models.Todo, error) {
	var query strings.Builder
	query.WriteString("SELECT " + todoColumns + " FROM todos WHERE user_id = ?")
	args := []interface{}{ownerID}

	if filter.Title != "" {
		query.WriteString(` AND title LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(filter.Title))
	}
	if filter.Description != "" {
		query.WriteString(` AND description LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(filter.Description))
	}
	if filter.State != "" {
		query.WriteString(" AND state = ?")
		args = append(args, string(filter.State))
	}

	offset, limit := normalizePage(filter.Offset, filter.Limit)
	query.WriteString(" ORDER BY id LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	todos := []models.Todo{}
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, todo)
	}
	return todos, rows.Err()
}

// GetTodo returns the todo with id if it is owned by ownerID. Todos of other
// users are reported as not found.
func (s *TodoService) GetTodo(ctx context.Context, ownerID, id int64) (models.Todo, error) {
	if todo, ok := s.cache.Get(ctx, ownerID, id); ok {
		return todo, nil
	}

	row := s.db.QueryRowContext(ctx,
		s.db.Rebind("SELECT "+todoColumns+" FROM todos WHERE id = ? AND user_id = ?"), id, ownerID)
	todo, err := scanTodo(row)
	if err != nil {
		return models.Todo{}, fmt.Errorf("todo with ID %d: %w", id, err)
	}

	s.cache.Fill(ctx, todo)
	return todo, nil
}

// UpdateTodo applies patch to the todo with id. Only its owner may do so.
func (s *TodoService) UpdateTodo(ctx context.Context, actingID, id int64, patch models.TodoPatch) (models.Todo, error) {
	if patch.State != nil && !patch.State.Valid() {
		return models.Todo{}, fmt.Errorf("%w: unknown state %q", common.ErrValidation, *patch.State)
	}

	todo, err := s.getTodoByID(ctx, id)
	if err != nil {
		return models.Todo{}, err
	}
	if err := auth.AuthorizeOwner(todo.OwnerID, actingID); err != nil {
		return models.Todo{}, err
	}

	patch.Apply(&todo)
	_, err = s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE todos SET title = ?, description = ?, state = ? WHERE id = ?"),
		todo.Title, todo.Description, string(todo.State), todo.ID)
	if err != nil {
		return models.Todo{}, err
	}
	s.cache.Set(ctx, todo)

	recordEvent(ctx, s.events, "todo.update", LevelInfo, fmt.Sprintf("Todo '%s' updated.", todo.Title), &actingID)
	return todo, nil
}

// DeleteTodo removes the todo with id. Only its owner may do so.
func (s *TodoService) DeleteTodo(ctx context.Context, actingID, id int64) error {
	todo, err := s.getTodoByID(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.AuthorizeOwner(todo.OwnerID, actingID); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM todos WHERE id = ?"), id); err != nil {
		return err
	}
	s.cache.Delete(ctx, todo.OwnerID, todo.ID)

	recordEvent(ctx, s.events, "todo.delete", LevelInfo, fmt.Sprintf("Todo '%s' deleted.", todo.Title), &actingID)
	return nil
}

// getTodoByID loads a todo regardless of its owner.
func (s *TodoService) getTodoByID(ctx context.Context, id int64) (models.Todo, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+todoColumns+" FROM todos WHERE id = ?"), id)
	todo, err := scanTodo(row)
	if err != nil {
		return models.Todo{}, fmt.Errorf("todo with ID %d: %w", id, err)
	}
	return todo, nil
}

func scanTodo(scanner interface{ Scan(...interface{}) error }) (models.Todo, error) {
	var todo models.Todo
	var state string
	err := scanner.Scan(&todo.ID, &todo.Title, &todo.Description, &state, &todo.OwnerID, &todo.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Todo{}, common.ErrNotFound
		}
		return models.Todo{}, err
	}
	todo.State = models.TodoState(state)
	return todo, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching s anywhere, with the LIKE
// wildcards in s taken literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
