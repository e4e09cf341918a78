package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/isdelr/todo-auth-be/internal/auth"
	"github.com/isdelr/todo-auth-be/internal/database"
	"github.com/isdelr/todo-auth-be/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	db     *database.DB
	events *EventService
	users  *UserService
	todos  *TodoService
	auth   *AuthService
	clock  *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	clock := &testClock{t: time.Now().Truncate(time.Second)}
	codec, err := auth.NewCodec("test-secret", "HS256", auth.WithClock(clock.Now))
	require.NoError(t, err)

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	events := NewEventService(db)
	users := NewUserService(db, hasher, events)

	return &testEnv{
		db:     db,
		events: events,
		users:  users,
		todos:  NewTodoService(db, nil, events),
		auth:   NewAuthService(users, codec, hasher, events, 30*time.Minute, 60*time.Minute),
		clock:  clock,
	}
}

// createActiveUser registers and activates a user with password "secret".
func (e *testEnv) createActiveUser(t *testing.T, username string) models.User {
	t.Helper()
	ctx := context.Background()
	user, err := e.users.CreateUser(ctx, username, username+"@example.com", "secret")
	require.NoError(t, err)
	user, err = e.users.ActivateUser(ctx, user.Email)
	require.NoError(t, err)
	return user
}
