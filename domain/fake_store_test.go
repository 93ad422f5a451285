package domain

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// fakeStore is an in-memory Store with ETag versioning so tests can
// exercise the conflict/retry paths without real table storage.
type fakeStore struct {
	mu      sync.Mutex
	boards  map[string]Board
	columns map[string]Column
	tasks   map[string]Task
	tags    map[string]Tag

	etagSeq    int
	applyCalls int
	// forceConflicts makes the next n ApplyTaskWrites calls fail with
	// ErrConcurrencyConflict before touching state.
	forceConflicts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		boards:  map[string]Board{},
		columns: map[string]Column{},
		tasks:   map[string]Task{},
		tags:    map[string]Tag{},
	}
}

func (f *fakeStore) nextETag() string {
	f.etagSeq++
	return "v" + strconv.Itoa(f.etagSeq)
}

func (f *fakeStore) addBoard(id, name string) {
	f.boards[id] = Board{ID: id, Name: name}
}

func (f *fakeStore) addColumn(boardID, id string, order int) {
	f.columns[id] = Column{ID: id, BoardID: boardID, Title: id, Order: order}
}

func (f *fakeStore) addTask(boardID, columnID, id string, order int) {
	_ = boardID
	f.tasks[id] = Task{ID: id, ColumnID: columnID, Title: id, Order: order, ETag: f.nextETag()}
}

// columnOrders returns taskID->order for one column.
func (f *fakeStore) columnOrders(columnID string) map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, t := range f.tasks {
		if t.ColumnID == columnID {
			out[t.ID] = t.Order
		}
	}
	return out
}

func (f *fakeStore) GetBoard(ctx context.Context, boardID string) (*Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[boardID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) ListBoards(ctx context.Context) ([]Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Board, 0, len(f.boards))
	for _, b := range f.boards {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) InsertBoard(ctx context.Context, b Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.boards[b.ID]; exists {
		return fmt.Errorf("board %s already exists", b.ID)
	}
	f.boards[b.ID] = b
	return nil
}

func (f *fakeStore) UpdateBoard(ctx context.Context, boardID string, upd BoardUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[boardID]
	if !ok {
		return NotFoundError{Kind: "board", ID: boardID}
	}
	if upd.Name != nil {
		b.Name = *upd.Name
	}
	if upd.Description != nil {
		b.Description = *upd.Description
	}
	if upd.DepartmentID != nil {
		b.DepartmentID = *upd.DepartmentID
	}
	f.boards[boardID] = b
	return nil
}

func (f *fakeStore) DeleteBoard(ctx context.Context, boardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.boards, boardID)
	for id, c := range f.columns {
		if c.BoardID == boardID {
			for tid, t := range f.tasks {
				if t.ColumnID == c.ID {
					delete(f.tasks, tid)
				}
			}
			delete(f.columns, id)
		}
	}
	return nil
}

func (f *fakeStore) ListColumns(ctx context.Context, boardID string) ([]Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Column{}
	for _, c := range f.columns {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetColumn(ctx context.Context, boardID, columnID string) (*Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.columns[columnID]
	if !ok || c.BoardID != boardID {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) InsertColumn(ctx context.Context, col Column) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columns[col.ID] = col
	return nil
}

func (f *fakeStore) UpdateColumnOrders(ctx context.Context, boardID string, orders map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, order := range orders {
		c, ok := f.columns[id]
		if !ok || c.BoardID != boardID {
			return NotFoundError{Kind: "column", ID: id}
		}
		c.Order = order
		f.columns[id] = c
	}
	return nil
}

func (f *fakeStore) UpdateColumnTitle(ctx context.Context, boardID, columnID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.columns[columnID]
	if !ok || c.BoardID != boardID {
		return NotFoundError{Kind: "column", ID: columnID}
	}
	c.Title = title
	f.columns[columnID] = c
	return nil
}

func (f *fakeStore) DeleteColumn(ctx context.Context, boardID, columnID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.columns, columnID)
	return nil
}

func (f *fakeStore) ListTasks(ctx context.Context, boardID string) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cols := map[string]bool{}
	for _, c := range f.columns {
		if c.BoardID == boardID {
			cols[c.ID] = true
		}
	}
	out := []Task{}
	for _, t := range f.tasks {
		if cols[t.ColumnID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTask(ctx context.Context, boardID, taskID string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) ApplyTaskWrites(ctx context.Context, boardID string, writes []TaskWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	if f.forceConflicts > 0 {
		f.forceConflicts--
		return ErrConcurrencyConflict
	}
	for _, w := range writes {
		current, exists := f.tasks[w.Task.ID]
		if w.ETag != "" && (!exists || current.ETag != w.ETag) {
			return ErrConcurrencyConflict
		}
		if w.Op == WriteUpdate && !exists {
			return NotFoundError{Kind: "task", ID: w.Task.ID}
		}
	}
	for _, w := range writes {
		switch w.Op {
		case WriteDelete:
			delete(f.tasks, w.Task.ID)
		default:
			t := w.Task
			t.ETag = f.nextETag()
			f.tasks[t.ID] = t
		}
	}
	return nil
}

func (f *fakeStore) ListTags(ctx context.Context) ([]Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Tag, 0, len(f.tags))
	for _, tg := range f.tags {
		out = append(out, tg)
	}
	return out, nil
}

func (f *fakeStore) InsertTag(ctx context.Context, tag Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[tag.ID] = tag
	return nil
}
