package domain

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// MoveRequest describes a single task move, intra- or cross-column.
type MoveRequest struct {
	TaskID      string
	FromColumn  string
	ToColumn    string
	TargetOrder int
}

const maxMoveRetries = 3

// MoveCoordinator turns a MoveRequest into one atomic batch of task
// writes: close the gap in the source column, open a slot in the
// destination, commit the moved task. A stale read is detected by the
// store through ETags and retried with fresh state up to maxMoveRetries.
type MoveCoordinator struct {
	store Store
}

func NewMoveCoordinator(store Store) MoveCoordinator {
	return MoveCoordinator{store: store}
}

// Move executes the request and returns the order the task ended up at,
// which may differ from the requested one after clamping.
func (m MoveCoordinator) Move(ctx context.Context, boardID string, req MoveRequest) (int, error) {
	for attempt := 0; ; attempt++ {
		applied, err := m.attempt(ctx, boardID, req)
		if err == nil {
			return applied, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt+1 >= maxMoveRetries {
			return 0, err
		}
		log.WithFields(log.Fields{
			"board":   boardID,
			"task":    req.TaskID,
			"attempt": attempt + 1,
		}).Warn("move conflict, retrying with fresh state")
	}
}

func (m MoveCoordinator) attempt(ctx context.Context, boardID string, req MoveRequest) (int, error) {
	if from, err := m.store.GetColumn(ctx, boardID, req.FromColumn); err != nil {
		return 0, fmt.Errorf("load source column: %w", err)
	} else if from == nil {
		return 0, NotFoundError{Kind: "column", ID: req.FromColumn}
	}
	if req.ToColumn != req.FromColumn {
		if to, err := m.store.GetColumn(ctx, boardID, req.ToColumn); err != nil {
			return 0, fmt.Errorf("load destination column: %w", err)
		} else if to == nil {
			return 0, NotFoundError{Kind: "column", ID: req.ToColumn}
		}
	}

	tasks, err := m.store.ListTasks(ctx, boardID)
	if err != nil {
		return 0, fmt.Errorf("load board tasks: %w", err)
	}

	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	moved, ok := byID[req.TaskID]
	if !ok || moved.ColumnID != req.FromColumn {
		return 0, NotFoundError{Kind: "task", ID: req.TaskID}
	}

	var applied int
	newOrders := make(map[string]int)

	if req.FromColumn == req.ToColumn {
		seq := columnSeq(tasks, req.FromColumn)
		target, updated, ok := MoveWithin(seq, req.TaskID, req.TargetOrder)
		if !ok {
			return 0, NotFoundError{Kind: "task", ID: req.TaskID}
		}
		applied = target
		collectChanged(seq, updated, newOrders)
	} else {
		src := columnSeq(tasks, req.FromColumn)
		remaining := make([]SeqEntry, 0, len(src)-1)
		for _, e := range src {
			if e.ID != req.TaskID {
				remaining = append(remaining, e)
			}
		}
		compacted := RemoveAndCompact(remaining, moved.Order)
		collectChanged(remaining, compacted, newOrders)

		dest := columnSeq(tasks, req.ToColumn)
		target, shifted := InsertAndShift(dest, req.TargetOrder)
		applied = target
		collectChanged(dest, shifted, newOrders)
	}

	delete(newOrders, req.TaskID) // committed separately below
	if req.FromColumn == req.ToColumn && applied == moved.Order && len(newOrders) == 0 {
		return applied, nil
	}

	writes := make([]TaskWrite, 0, len(newOrders)+1)
	for id, order := range newOrders {
		t := byID[id]
		t.Order = order
		writes = append(writes, TaskWrite{Op: WriteUpdate, Task: t, ETag: t.ETag})
	}
	moved.ColumnID = req.ToColumn
	moved.Order = applied
	writes = append(writes, TaskWrite{Op: WriteUpdate, Task: moved, ETag: moved.ETag})

	if err := m.store.ApplyTaskWrites(ctx, boardID, writes); err != nil {
		return 0, err
	}
	return applied, nil
}

// columnSeq projects the (id, order) pairs of one column.
func columnSeq(tasks []Task, columnID string) []SeqEntry {
	seq := make([]SeqEntry, 0, len(tasks))
	for _, t := range tasks {
		if t.ColumnID == columnID {
			seq = append(seq, SeqEntry{ID: t.ID, Order: t.Order})
		}
	}
	return seq
}

// collectChanged records entries whose order differs between the original
// and updated sequences.
func collectChanged(orig, updated []SeqEntry, into map[string]int) {
	before := make(map[string]int, len(orig))
	for _, e := range orig {
		before[e.ID] = e.Order
	}
	for _, e := range updated {
		if before[e.ID] != e.Order {
			into[e.ID] = e.Order
		}
	}
}
