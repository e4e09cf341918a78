package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/isdelr/todo-auth-be/internal/database"
	"github.com/isdelr/todo-auth-be/internal/models"
	"github.com/rs/zerolog/log"
)

// Event levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, eventType, level, message string, userID *int64) error
	GetRecentEvents(ctx context.Context, userID int64, limit int) ([]models.Event, error)
}

// EventService records account activity.
type EventService struct {
	db *database.DB
}

// NewEventService creates a new EventService.
func NewEventService(db *database.DB) *EventService {
	return &EventService{db: db}
}

// CreateEvent logs a new event to the database.
func (s *EventService) CreateEvent(ctx context.Context, eventType, level, message string, userID *int64) error {
	event := models.Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Level:   level,
		Message: message,
		UserID:  userID,
	}

	_, err := s.db.ExecContext(ctx,
		s.db.Rebind("INSERT INTO events (id, type, level, message, user_id) VALUES (?, ?, ?, ?, ?)"),
		event.ID, event.Type, event.Level, event.Message, event.UserID)
	if err != nil {
		return fmt.Errorf("failed to record event %s: %w", eventType, err)
	}
	return nil
}

// GetRecentEvents retrieves the most recent events of a user.
func (s *EventService) GetRecentEvents(ctx context.Context, userID int64, limit int) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind("SELECT id, type, level, message, user_id, created_at FROM events WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?"),
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &event.Message, &event.UserID, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// recordEvent writes an event and only logs when that fails; activity
// tracking never fails the operation that triggered it.
func recordEvent(ctx context.Context, events EventServiceProvider, eventType, level, message string, userID *int64) {
	if events == nil {
		return
	}
	if err := events.CreateEvent(ctx, eventType, level, message, userID); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("Failed to record event")
	}
}
