package domain

import "time"

// Board groups columns and tasks for a department.
type Board struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	DepartmentID string   `json:"departmentId,omitempty"`
	CreatedBy    string   `json:"createdBy,omitempty"`
	Members      []string `json:"members,omitempty"`
	ETag         string   `json:"-"`
}

// Column is an ordered lane within a board. Order is unique per board.
type Column struct {
	ID      string `json:"id"`
	BoardID string `json:"boardId"`
	Title   string `json:"title"`
	Order   int    `json:"order"`
	ETag    string `json:"-"`
}

// Task is a work item belonging to exactly one column. Order is unique
// within its column and contiguous from zero.
type Task struct {
	ID          string     `json:"id"`
	ColumnID    string     `json:"columnId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Order       int        `json:"order"`
	AssignedTo  []string   `json:"assignedTo,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	ETag        string     `json:"-"`
}

// Tag labels tasks across boards.
type Tag struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Color string `json:"color"`
}

// TaskUpdate carries partial updates for a task. Nil fields are untouched.
type TaskUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	AssignedTo  []string   `json:"assignedTo,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// BoardUpdate carries partial updates for a board.
type BoardUpdate struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	DepartmentID *string `json:"departmentId,omitempty"`
}

// BoardSnapshot is the full resync payload served over REST.
type BoardSnapshot struct {
	Board   Board    `json:"board"`
	Columns []Column `json:"columns"`
	Tasks   []Task   `json:"tasks"`
}

// Default lanes seeded into every new board.
var DefaultColumnTitles = []string{"To Do", "In Progress", "Done"}
