package domain

import "context"

// WriteOp selects what a TaskWrite does to its task.
type WriteOp int

const (
	WriteUpsert WriteOp = iota
	WriteUpdate
	WriteDelete
)

// TaskWrite is one task mutation inside a per-board batch. ETag, when set,
// makes the write conditional; a stale tag fails the whole batch with
// ErrConcurrencyConflict.
type TaskWrite struct {
	Op   WriteOp
	Task Task
	ETag string
}

// Store is the persistence collaborator. Boards, columns and tasks are
// addressable by board id; ApplyTaskWrites must apply the whole batch
// atomically or not at all.
type Store interface {
	GetBoard(ctx context.Context, boardID string) (*Board, error)
	ListBoards(ctx context.Context) ([]Board, error)
	InsertBoard(ctx context.Context, b Board) error
	UpdateBoard(ctx context.Context, boardID string, upd BoardUpdate) error
	DeleteBoard(ctx context.Context, boardID string) error

	ListColumns(ctx context.Context, boardID string) ([]Column, error)
	GetColumn(ctx context.Context, boardID, columnID string) (*Column, error)
	InsertColumn(ctx context.Context, col Column) error
	UpdateColumnOrders(ctx context.Context, boardID string, orders map[string]int) error
	UpdateColumnTitle(ctx context.Context, boardID, columnID, title string) error
	DeleteColumn(ctx context.Context, boardID, columnID string) error

	ListTasks(ctx context.Context, boardID string) ([]Task, error)
	GetTask(ctx context.Context, boardID, taskID string) (*Task, error)
	ApplyTaskWrites(ctx context.Context, boardID string, writes []TaskWrite) error

	ListTags(ctx context.Context) ([]Tag, error)
	InsertTag(ctx context.Context, tag Tag) error
}
