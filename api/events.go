package api

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"

	"github.com/nour-derwich/system-management-pulse-hr/domain"
)

// Client -> server event names.
const (
	evJoinBoard      = "join-board"
	evCreateTask     = "create-task"
	evUpdateTask     = "update-task"
	evMoveTask       = "move-task"
	evDeleteTask     = "delete-task"
	evTaskSelected   = "task-selected"
	evTaskDeselected = "task-deselected"
	evUserActivity   = "user-activity"
)

// Server -> client event names.
const (
	evBoardJoined = "board-joined"
	evTaskCreated = "task-created"
	evTaskUpdated = "task-updated"
	evTaskMoved   = "task-moved"
	evTaskDeleted = "task-deleted"
	evUserActive  = "user-active"
	evError       = "error"
	ackSuffix     = "-ack"
)

// frame is the wire envelope in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func marshalFrame(event string, data any) ([]byte, error) {
	payload, err := sonic.Marshal(data)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(frame{Event: event, Data: payload})
}

// taskPayload carries inbound task fields. Pointers distinguish absent
// fields on update.
type taskPayload struct {
	ID          string     `json:"id,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	AssignedTo  []string   `json:"assignedTo,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Each mutating event carries a statically known required-field set,
// checked before anything is dispatched.

type joinBoardPayload struct {
	BoardID string `json:"boardId"`
}

func (p joinBoardPayload) validate() error {
	if p.BoardID == "" {
		return domain.ValidationError{Msg: "Missing boardId for join-board"}
	}
	return nil
}

type createTaskPayload struct {
	BoardID  string       `json:"boardId"`
	ColumnID string       `json:"columnId"`
	Task     *taskPayload `json:"task"`
}

func (p createTaskPayload) validate() error {
	if p.BoardID == "" || p.ColumnID == "" || p.Task == nil {
		return domain.ValidationError{Msg: "Missing required fields for task creation"}
	}
	if p.Task.Title == nil || *p.Task.Title == "" {
		return domain.ValidationError{Msg: "Missing required fields for task creation"}
	}
	return nil
}

type updateTaskPayload struct {
	BoardID string       `json:"boardId"`
	Task    *taskPayload `json:"task"`
}

func (p updateTaskPayload) validate() error {
	if p.BoardID == "" || p.Task == nil || p.Task.ID == "" {
		return domain.ValidationError{Msg: "Missing required fields for task update"}
	}
	return nil
}

type moveTaskPayload struct {
	BoardID    string `json:"boardId"`
	TaskID     string `json:"taskId"`
	FromColumn string `json:"fromColumn"`
	ToColumn   string `json:"toColumn"`
	Order      *int   `json:"order"`
}

func (p moveTaskPayload) validate() error {
	if p.BoardID == "" || p.TaskID == "" || p.FromColumn == "" || p.ToColumn == "" || p.Order == nil {
		return domain.ValidationError{Msg: "Missing required fields for task movement"}
	}
	return nil
}

type deleteTaskPayload struct {
	BoardID  string `json:"boardId"`
	TaskID   string `json:"taskId"`
	ColumnID string `json:"columnId"`
}

func (p deleteTaskPayload) validate() error {
	if p.BoardID == "" || p.TaskID == "" || p.ColumnID == "" {
		return domain.ValidationError{Msg: "Missing required fields for task deletion"}
	}
	return nil
}

type presencePayload struct {
	BoardID  string `json:"boardId"`
	TaskID   string `json:"taskId,omitempty"`
	UserID   string `json:"userId"`
	Activity string `json:"activity,omitempty"`
}

// Outbound payloads.

type boardJoinedPayload struct {
	BoardID string `json:"boardId"`
}

type taskCreatedPayload struct {
	Task   domain.Task `json:"task"`
	Column string      `json:"column"`
}

type taskUpdatedPayload struct {
	Task domain.Task `json:"task"`
}

type taskMovedPayload struct {
	TaskID     string `json:"taskId"`
	FromColumn string `json:"fromColumn"`
	ToColumn   string `json:"toColumn"`
	Order      int    `json:"order"`
	BoardID    string `json:"boardId"`
}

type taskDeletedPayload struct {
	TaskID   string `json:"taskId"`
	ColumnID string `json:"columnId"`
}

type taskSelectedPayload struct {
	TaskID     string `json:"taskId"`
	UserID     string `json:"userId"`
	SelectedAt string `json:"selectedAt"`
}

type taskDeselectedPayload struct {
	UserID string `json:"userId"`
}

type userActivePayload struct {
	UserID   string `json:"userId"`
	TaskID   string `json:"taskId,omitempty"`
	Activity string `json:"activity,omitempty"`
}

type ackPayload struct {
	Success bool         `json:"success"`
	Task    *domain.Task `json:"task,omitempty"`
	Order   *int         `json:"order,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}
