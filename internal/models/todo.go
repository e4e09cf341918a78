package models

import "time"

// TodoState is the workflow state of a todo item.
type TodoState string

const (
	TodoStateDraft TodoState = "draft"
	TodoStateTodo  TodoState = "todo"
	TodoStateDoing TodoState = "doing"
	TodoStateDone  TodoState = "done"
	TodoStateTrash TodoState = "trash"
)

// TodoStates lists every accepted state.
var TodoStates = []TodoState{TodoStateDraft, TodoStateTodo, TodoStateDoing, TodoStateDone, TodoStateTrash}

// Valid reports whether s is one of the known states.
func (s TodoState) Valid() bool {
	for _, known := range TodoStates {
		if s == known {
			return true
		}
	}
	return false
}

// Todo is a single task owned by one user.
type Todo struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	State       TodoState `json:"state"`
	OwnerID     int64     `json:"-"`
	CreatedAt   time.Time `json:"-"`
}

// TodoInput carries the fields of a new todo.
type TodoInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	State       TodoState `json:"state"`
}

// TodoPatch is a partial update. Nil fields are left untouched.
type TodoPatch struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	State       *TodoState `json:"state"`
}

// Apply copies the set fields of p onto t.
func (p TodoPatch) Apply(t *Todo) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.State != nil {
		t.State = *p.State
	}
}

// TodoFilter narrows a todo listing. Empty strings mean "no filter".
type TodoFilter struct {
	Title       string
	Description string
	State       TodoState
	Offset      int
	Limit       int
}
