package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const maxUpdateRetries = 3

// BoardService owns every mutation of boards, columns and tasks. Order
// mutating operations on the same board are serialized through a per-board
// lock so interleaved read-modify-write cycles cannot produce duplicate or
// skipped order values; disjoint boards never contend.
type BoardService struct {
	store Store
	mover MoveCoordinator

	locks sync.Map // board id -> *sync.Mutex
}

func NewBoardService(store Store) *BoardService {
	return &BoardService{store: store, mover: NewMoveCoordinator(store)}
}

func (s *BoardService) lockBoard(boardID string) func() {
	v, _ := s.locks.LoadOrStore(boardID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateBoard persists a new board and seeds the default lanes.
func (s *BoardService) CreateBoard(ctx context.Context, b Board) (*Board, error) {
	if b.Name == "" {
		return nil, ValidationError{Msg: "board name is required"}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if err := s.store.InsertBoard(ctx, b); err != nil {
		return nil, fmt.Errorf("insert board: %w", err)
	}
	for i, title := range DefaultColumnTitles {
		col := Column{ID: uuid.NewString(), BoardID: b.ID, Title: title, Order: i}
		if err := s.store.InsertColumn(ctx, col); err != nil {
			return nil, fmt.Errorf("seed column %q: %w", title, err)
		}
	}
	log.WithFields(log.Fields{"board": b.ID, "name": b.Name}).Info("board created")
	return &b, nil
}

func (s *BoardService) ListBoards(ctx context.Context) ([]Board, error) {
	return s.store.ListBoards(ctx)
}

// Snapshot returns the full board state used for cold start and resync.
// Columns and tasks come back sorted by order.
func (s *BoardService) Snapshot(ctx context.Context, boardID string) (*BoardSnapshot, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, NotFoundError{Kind: "board", ID: boardID}
	}
	columns, err := s.store.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, boardID)
	if err != nil {
		return nil, err
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].Order < columns[j].Order })
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].ColumnID != tasks[j].ColumnID {
			return tasks[i].ColumnID < tasks[j].ColumnID
		}
		return tasks[i].Order < tasks[j].Order
	})
	return &BoardSnapshot{Board: *board, Columns: columns, Tasks: tasks}, nil
}

func (s *BoardService) UpdateBoard(ctx context.Context, boardID string, upd BoardUpdate) (*Board, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, NotFoundError{Kind: "board", ID: boardID}
	}
	if err := s.store.UpdateBoard(ctx, boardID, upd); err != nil {
		return nil, err
	}
	if upd.Name != nil {
		board.Name = *upd.Name
	}
	if upd.Description != nil {
		board.Description = *upd.Description
	}
	if upd.DepartmentID != nil {
		board.DepartmentID = *upd.DepartmentID
	}
	return board, nil
}

// DeleteBoard removes the board together with its columns and tasks.
func (s *BoardService) DeleteBoard(ctx context.Context, boardID string) error {
	unlock := s.lockBoard(boardID)
	defer unlock()

	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if board == nil {
		return NotFoundError{Kind: "board", ID: boardID}
	}
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		return fmt.Errorf("delete board tree: %w", err)
	}
	log.WithField("board", boardID).Info("board deleted")
	return nil
}

// CreateColumn appends a lane at the next board-scoped order.
func (s *BoardService) CreateColumn(ctx context.Context, boardID, title string) (*Column, error) {
	if title == "" {
		return nil, ValidationError{Msg: "column title is required"}
	}
	unlock := s.lockBoard(boardID)
	defer unlock()

	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, NotFoundError{Kind: "board", ID: boardID}
	}
	columns, err := s.store.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	seq := make([]SeqEntry, 0, len(columns))
	for _, c := range columns {
		seq = append(seq, SeqEntry{ID: c.ID, Order: c.Order})
	}
	col := Column{ID: uuid.NewString(), BoardID: boardID, Title: title, Order: AppendOrder(seq)}
	if err := s.store.InsertColumn(ctx, col); err != nil {
		return nil, err
	}
	return &col, nil
}

// RenameColumn changes a lane's title in place. Order is untouched; lane
// reordering goes through UpdateColumnOrders during compaction only.
func (s *BoardService) RenameColumn(ctx context.Context, boardID, columnID, title string) (*Column, error) {
	if title == "" {
		return nil, ValidationError{Msg: "column title is required"}
	}
	unlock := s.lockBoard(boardID)
	defer unlock()

	col, err := s.store.GetColumn(ctx, boardID, columnID)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, NotFoundError{Kind: "column", ID: columnID}
	}
	if err := s.store.UpdateColumnTitle(ctx, boardID, columnID, title); err != nil {
		return nil, err
	}
	col.Title = title
	return col, nil
}

// DeleteColumn removes the lane and its tasks, then compacts the orders of
// the remaining lanes so they stay contiguous.
func (s *BoardService) DeleteColumn(ctx context.Context, boardID, columnID string) error {
	unlock := s.lockBoard(boardID)
	defer unlock()

	col, err := s.store.GetColumn(ctx, boardID, columnID)
	if err != nil {
		return err
	}
	if col == nil {
		return NotFoundError{Kind: "column", ID: columnID}
	}

	tasks, err := s.store.ListTasks(ctx, boardID)
	if err != nil {
		return err
	}
	writes := make([]TaskWrite, 0)
	for _, t := range tasks {
		if t.ColumnID == columnID {
			writes = append(writes, TaskWrite{Op: WriteDelete, Task: t, ETag: t.ETag})
		}
	}
	if len(writes) > 0 {
		if err := s.store.ApplyTaskWrites(ctx, boardID, writes); err != nil {
			return fmt.Errorf("delete column tasks: %w", err)
		}
	}
	if err := s.store.DeleteColumn(ctx, boardID, columnID); err != nil {
		return err
	}

	columns, err := s.store.ListColumns(ctx, boardID)
	if err != nil {
		return err
	}
	seq := make([]SeqEntry, 0, len(columns))
	for _, c := range columns {
		seq = append(seq, SeqEntry{ID: c.ID, Order: c.Order})
	}
	orders := make(map[string]int, len(seq))
	for _, e := range RemoveAndCompact(seq, col.Order) {
		orders[e.ID] = e.Order
	}
	for _, c := range columns {
		if orders[c.ID] == c.Order {
			delete(orders, c.ID)
		}
	}
	if len(orders) == 0 {
		return nil
	}
	return s.store.UpdateColumnOrders(ctx, boardID, orders)
}

// CreateTask appends a task at the end of the column.
func (s *BoardService) CreateTask(ctx context.Context, boardID, columnID string, t Task) (*Task, error) {
	if t.Title == "" {
		return nil, ValidationError{Msg: "task title is required"}
	}
	unlock := s.lockBoard(boardID)
	defer unlock()

	col, err := s.store.GetColumn(ctx, boardID, columnID)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, NotFoundError{Kind: "column", ID: columnID}
	}
	tasks, err := s.store.ListTasks(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.ColumnID = columnID
	t.Order = AppendOrder(columnSeq(tasks, columnID))
	write := TaskWrite{Op: WriteUpsert, Task: t}
	if err := s.store.ApplyTaskWrites(ctx, boardID, []TaskWrite{write}); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask applies a partial update. Order and column are immutable here;
// moves go through MoveTask.
func (s *BoardService) UpdateTask(ctx context.Context, boardID, taskID string, upd TaskUpdate) (*Task, error) {
	for attempt := 0; ; attempt++ {
		task, err := s.store.GetTask(ctx, boardID, taskID)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return nil, NotFoundError{Kind: "task", ID: taskID}
		}
		if upd.Title != nil {
			task.Title = *upd.Title
		}
		if upd.Description != nil {
			task.Description = *upd.Description
		}
		if upd.AssignedTo != nil {
			task.AssignedTo = upd.AssignedTo
		}
		if upd.Tags != nil {
			task.Tags = upd.Tags
		}
		if upd.DueDate != nil {
			task.DueDate = upd.DueDate
		}
		write := TaskWrite{Op: WriteUpdate, Task: *task, ETag: task.ETag}
		err = s.store.ApplyTaskWrites(ctx, boardID, []TaskWrite{write})
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt+1 >= maxUpdateRetries {
			return nil, err
		}
	}
}

// MoveTask runs the move coordinator under the board lock and returns the
// order the task landed at.
func (s *BoardService) MoveTask(ctx context.Context, boardID string, req MoveRequest) (int, error) {
	unlock := s.lockBoard(boardID)
	defer unlock()
	return s.mover.Move(ctx, boardID, req)
}

// DeleteTask removes the task and compacts its column in one batch.
func (s *BoardService) DeleteTask(ctx context.Context, boardID, columnID, taskID string) error {
	unlock := s.lockBoard(boardID)
	defer unlock()

	task, err := s.store.GetTask(ctx, boardID, taskID)
	if err != nil {
		return err
	}
	if task == nil || task.ColumnID != columnID {
		return NotFoundError{Kind: "task", ID: taskID}
	}

	tasks, err := s.store.ListTasks(ctx, boardID)
	if err != nil {
		return err
	}
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	remaining := make([]SeqEntry, 0)
	for _, e := range columnSeq(tasks, columnID) {
		if e.ID != taskID {
			remaining = append(remaining, e)
		}
	}
	writes := []TaskWrite{{Op: WriteDelete, Task: *task, ETag: task.ETag}}
	newOrders := make(map[string]int)
	collectChanged(remaining, RemoveAndCompact(remaining, task.Order), newOrders)
	for id, order := range newOrders {
		t := byID[id]
		t.Order = order
		writes = append(writes, TaskWrite{Op: WriteUpdate, Task: t, ETag: t.ETag})
	}
	return s.store.ApplyTaskWrites(ctx, boardID, writes)
}

func (s *BoardService) ListTags(ctx context.Context) ([]Tag, error) {
	return s.store.ListTags(ctx)
}

func (s *BoardService) CreateTag(ctx context.Context, tag Tag) (*Tag, error) {
	if tag.Title == "" || tag.Color == "" {
		return nil, ValidationError{Msg: "tag title and color are required"}
	}
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	if err := s.store.InsertTag(ctx, tag); err != nil {
		return nil, err
	}
	return &tag, nil
}
