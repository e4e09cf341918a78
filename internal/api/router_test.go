package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/todo-auth-be/internal/auth"
	"github.com/isdelr/todo-auth-be/internal/cache"
	"github.com/isdelr/todo-auth-be/internal/database"
	"github.com/isdelr/todo-auth-be/internal/mailer"
	"github.com/isdelr/todo-auth-be/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type outbox struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (o *outbox) Enqueue(msg mailer.Message) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return true
}

func (o *outbox) lastTo(t *testing.T, email string) mailer.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].To == email {
			return o.msgs[i]
		}
	}
	t.Fatalf("no mail sent to %s", email)
	return mailer.Message{}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testServer struct {
	handler http.Handler
	mail    *outbox
	clock   *clock
}

const testBaseURL = "http://todo.test"

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	clk := &clock{t: time.Now().Truncate(time.Second)}
	codec, err := auth.NewCodec("router-test-secret", "HS256", auth.WithClock(clk.Now))
	require.NoError(t, err)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	eventService := services.NewEventService(db)
	userService := services.NewUserService(db, hasher, eventService)
	mail := &outbox{}

	svc := Services{
		Auth:   services.NewAuthService(userService, codec, hasher, eventService, 30*time.Minute, 24*time.Hour),
		Users:  userService,
		Todos:  services.NewTodoService(db, cache.Nop{}, eventService),
		Events: eventService,
		Mail:   mail,
	}

	return &testServer{
		handler: NewRouter(svc, []string{"http://localhost:3000"}, testBaseURL),
		mail:    mail,
		clock:   clk,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	switch b := body.(type) {
	case nil:
		reader = strings.NewReader("")
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// register creates an account and returns its id.
func (s *testServer) register(t *testing.T, username string) int64 {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/users/", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret-" + username,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var user struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &user)
	return user.ID
}

// confirm follows the link of the last confirmation mail sent to email.
func (s *testServer) confirm(t *testing.T, email string) *httptest.ResponseRecorder {
	t.Helper()
	body := s.mail.lastTo(t, email).Body
	idx := strings.Index(body, testBaseURL+"/users/confirm/")
	require.GreaterOrEqual(t, idx, 0, body)
	link := strings.Fields(body[idx:])[0]
	return s.do(t, http.MethodGet, strings.TrimPrefix(link, testBaseURL), nil, "")
}

// signUp registers, confirms and logs in a user, returning id and token.
func (s *testServer) signUp(t *testing.T, username string) (int64, string) {
	t.Helper()
	id := s.register(t, username)
	require.Equal(t, http.StatusOK, s.confirm(t, username+"@example.com").Code)

	rec := s.login(t, username+"@example.com", "secret-"+username)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, rec, &tok)
	return id, tok.AccessToken
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	decode(t, rec, &body)
	return body.Detail
}

func TestRoot(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"ok"}`, rec.Body.String())
}

func TestRegistrationAndLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/users", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "pw",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]interface{}
	decode(t, rec, &created)
	assert.Equal(t, "alice", created["username"])
	assert.Equal(t, "alice@example.com", created["email"])
	assert.NotContains(t, created, "password")
	assert.NotContains(t, created, "password_hash")

	mail := s.mail.lastTo(t, "alice@example.com")
	assert.Equal(t, "Confirm your account", mail.Subject)

	rec = s.login(t, "alice@example.com", "pw")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Account is not activated", detail(t, rec))

	rec = s.confirm(t, "alice@example.com")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Email confirmed"}`, rec.Body.String())

	// Confirming twice is harmless.
	assert.Equal(t, http.StatusOK, s.confirm(t, "alice@example.com").Code)

	rec = s.login(t, "alice@example.com", "wrong")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Incorrect email or password", detail(t, rec))

	rec = s.login(t, "nobody@example.com", "pw")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Incorrect email or password", detail(t, rec))

	rec = s.login(t, "alice@example.com", "pw")
	require.Equal(t, http.StatusOK, rec.Code)
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decode(t, rec, &tok)
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, "bearer", tok.TokenType)

	rec = s.do(t, http.MethodPost, "/auth/refresh_token", nil, tok.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, rec, &refreshed)
	assert.NotEmpty(t, refreshed.AccessToken)
}

func TestRegister_Rejects(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice")

	tests := []struct {
		name string
		body interface{}
		code int
	}{
		{"duplicate username", map[string]string{"username": "alice", "email": "other@example.com", "password": "pw"}, http.StatusBadRequest},
		{"duplicate email", map[string]string{"username": "alice2", "email": "alice@example.com", "password": "pw"}, http.StatusBadRequest},
		{"invalid email", map[string]string{"username": "bob", "email": "not-an-email", "password": "pw"}, http.StatusUnprocessableEntity},
		{"missing password", map[string]string{"username": "bob", "email": "bob@example.com"}, http.StatusUnprocessableEntity},
		{"malformed body", "{", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/users/", tt.body, "")
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestConfirm_RejectsBadTokens(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signUp(t, "alice")

	rec := s.do(t, http.MethodGet, "/users/confirm/garbage", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// An access token is not a confirmation token.
	rec = s.do(t, http.MethodGet, "/users/confirm/"+token, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signUp(t, "alice")

	rec := s.do(t, http.MethodGet, "/todos", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Could not validate credentials", detail(t, rec))

	rec = s.do(t, http.MethodGet, "/todos", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/refresh_token", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.clock.Advance(31 * time.Minute)
	rec = s.do(t, http.MethodGet, "/todos", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token has expired", detail(t, rec))
}

func TestTodoLifecycle(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signUp(t, "alice")

	rec := s.do(t, http.MethodPost, "/todos/", map[string]string{
		"title": "write tests", "description": "for the router", "state": "todo",
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var todo struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		State       string `json:"state"`
	}
	decode(t, rec, &todo)
	assert.Equal(t, "write tests", todo.Title)

	path := "/todos/" + itoa(todo.ID)

	rec = s.do(t, http.MethodGet, path, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPatch, path, map[string]string{"state": "done"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &todo)
	assert.Equal(t, "done", todo.State)
	assert.Equal(t, "write tests", todo.Title, "absent fields are unchanged")

	rec = s.do(t, http.MethodGet, "/todos?state=done&title=tests", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Todos []struct {
			ID int64 `json:"id"`
		} `json:"todos"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Todos, 1)
	assert.Equal(t, todo.ID, list.Todos[0].ID)

	rec = s.do(t, http.MethodDelete, path, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, path, nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Todo not found", detail(t, rec))
}

func TestTodo_Validation(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signUp(t, "alice")

	rec := s.do(t, http.MethodPost, "/todos", map[string]string{"title": "x", "state": "archived"}, token)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/todos", map[string]string{"state": "todo"}, token)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/todos?state=archived", nil, token)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/todos?limit=-1", nil, token)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/todos/abc", nil, token)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTodo_OtherUsersTodos(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signUp(t, "alice")
	_, bob := s.signUp(t, "bob")

	rec := s.do(t, http.MethodPost, "/todos", map[string]string{"title": "mine", "state": "todo"}, alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	var todo struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &todo)
	path := "/todos/" + itoa(todo.ID)

	rec = s.do(t, http.MethodGet, path, nil, bob)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPatch, path, map[string]string{"title": "stolen"}, bob)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Not enough permissions", detail(t, rec))

	rec = s.do(t, http.MethodDelete, path, nil, bob)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/todos", nil, bob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"todos":[]}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, path, nil, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"mine"`)
}

func TestUsers_UpdateAndDelete(t *testing.T) {
	s := newTestServer(t)
	aliceID, alice := s.signUp(t, "alice")
	bobID, bob := s.signUp(t, "bob")

	profile := map[string]string{"username": "alicia", "email": "alicia@example.com", "password": "new-pw"}

	rec := s.do(t, http.MethodPut, "/users/"+itoa(aliceID), profile, bob)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Not enough permissions", detail(t, rec))

	rec = s.do(t, http.MethodPut, "/users/"+itoa(aliceID), profile, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPut, "/users/"+itoa(aliceID), profile, alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":`+itoa(aliceID)+`,"username":"alicia","email":"alicia@example.com"}`, rec.Body.String())

	rec = s.login(t, "alicia@example.com", "new-pw")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/users/"+itoa(bobID), nil, bob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"User deleted"}`, rec.Body.String())

	// The token of a deleted account no longer resolves.
	rec = s.do(t, http.MethodGet, "/todos", nil, bob)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsers_List(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{"a", "b", "c"} {
		s.register(t, name)
	}

	rec := s.do(t, http.MethodGet, "/users/?offset=1&limit=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var users []map[string]interface{}
	decode(t, rec, &users)
	require.Len(t, users, 1)
	assert.Equal(t, "b", users[0]["username"])
	assert.NotContains(t, users[0], "is_active")

	rec = s.do(t, http.MethodGet, "/users?limit=x", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEvents(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signUp(t, "alice")

	rec := s.do(t, http.MethodGet, "/events?limit=5", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []struct {
		Type string `json:"type"`
	}
	decode(t, rec, &events)
	assert.NotEmpty(t, events)
	assert.LessOrEqual(t, len(events), 5)

	rec = s.do(t, http.MethodGet, "/events", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORS_Preflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/todos", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
