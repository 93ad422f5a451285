package api

import (
	"context"

	"github.com/nour-derwich/system-management-pulse-hr/domain"
	"github.com/nour-derwich/system-management-pulse-hr/room"
)

// TaskOps is the slice of the board service the gateway dispatches
// mutating events to.
type TaskOps interface {
	CreateTask(ctx context.Context, boardID, columnID string, t domain.Task) (*domain.Task, error)
	UpdateTask(ctx context.Context, boardID, taskID string, upd domain.TaskUpdate) (*domain.Task, error)
	MoveTask(ctx context.Context, boardID string, req domain.MoveRequest) (int, error)
	DeleteTask(ctx context.Context, boardID, columnID, taskID string) error
}

// BoardService abstracts the domain operations behind the REST handlers.
type BoardService interface {
	TaskOps

	CreateBoard(ctx context.Context, b domain.Board) (*domain.Board, error)
	ListBoards(ctx context.Context) ([]domain.Board, error)
	Snapshot(ctx context.Context, boardID string) (*domain.BoardSnapshot, error)
	UpdateBoard(ctx context.Context, boardID string, upd domain.BoardUpdate) (*domain.Board, error)
	DeleteBoard(ctx context.Context, boardID string) error

	CreateColumn(ctx context.Context, boardID, title string) (*domain.Column, error)
	RenameColumn(ctx context.Context, boardID, columnID, title string) (*domain.Column, error)
	DeleteColumn(ctx context.Context, boardID, columnID string) error

	ListTags(ctx context.Context) ([]domain.Tag, error)
	CreateTag(ctx context.Context, tag domain.Tag) (*domain.Tag, error)
}

// Rooms is the live-connection membership table.
type Rooms interface {
	Join(conn room.Conn, boardID string)
	LeaveAll(conn room.Conn)
	MembersOf(boardID string) []room.Conn
}

// Publisher relays a broadcast frame to the other instances of the
// service. A nil Publisher means single-instance operation.
type Publisher interface {
	Publish(ctx context.Context, boardID string, payload []byte) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
