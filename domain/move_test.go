package domain

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// board with two columns: X holds t1,t2,t3 and Y is empty.
func twoColumnBoard() *fakeStore {
	fs := newFakeStore()
	fs.addBoard("b1", "Sprint")
	fs.addColumn("b1", "x", 0)
	fs.addColumn("b1", "y", 1)
	fs.addTask("b1", "x", "t1", 0)
	fs.addTask("b1", "x", "t2", 1)
	fs.addTask("b1", "x", "t3", 2)
	return fs
}

func TestMoveCrossColumn(t *testing.T) {
	fs := twoColumnBoard()
	mover := NewMoveCoordinator(fs)

	applied, err := mover.Move(context.Background(), "b1", MoveRequest{
		TaskID: "t1", FromColumn: "x", ToColumn: "y", TargetOrder: 0,
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected order 0, got %d", applied)
	}
	if got := fs.columnOrders("x"); !reflect.DeepEqual(got, map[string]int{"t2": 0, "t3": 1}) {
		t.Fatalf("source column: %#v", got)
	}
	if got := fs.columnOrders("y"); !reflect.DeepEqual(got, map[string]int{"t1": 0}) {
		t.Fatalf("destination column: %#v", got)
	}
}

func TestMoveCrossColumnRoundTrip(t *testing.T) {
	fs := twoColumnBoard()
	mover := NewMoveCoordinator(fs)
	ctx := context.Background()

	before := fs.columnOrders("x")
	if _, err := mover.Move(ctx, "b1", MoveRequest{TaskID: "t2", FromColumn: "x", ToColumn: "y", TargetOrder: 0}); err != nil {
		t.Fatalf("move out: %v", err)
	}
	if _, err := mover.Move(ctx, "b1", MoveRequest{TaskID: "t2", FromColumn: "y", ToColumn: "x", TargetOrder: 1}); err != nil {
		t.Fatalf("move back: %v", err)
	}
	if got := fs.columnOrders("x"); !reflect.DeepEqual(got, before) {
		t.Fatalf("round trip diverged: %#v != %#v", got, before)
	}
	if got := fs.columnOrders("y"); len(got) != 0 {
		t.Fatalf("expected empty destination, got %#v", got)
	}
}

func TestMoveSameColumn(t *testing.T) {
	fs := twoColumnBoard()
	mover := NewMoveCoordinator(fs)

	applied, err := mover.Move(context.Background(), "b1", MoveRequest{
		TaskID: "t1", FromColumn: "x", ToColumn: "x", TargetOrder: 2,
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected order 2, got %d", applied)
	}
	if got := fs.columnOrders("x"); !reflect.DeepEqual(got, map[string]int{"t2": 0, "t3": 1, "t1": 2}) {
		t.Fatalf("unexpected orders: %#v", got)
	}
}

func TestMoveSameColumnNoop(t *testing.T) {
	fs := twoColumnBoard()
	mover := NewMoveCoordinator(fs)

	applied, err := mover.Move(context.Background(), "b1", MoveRequest{
		TaskID: "t2", FromColumn: "x", ToColumn: "x", TargetOrder: 1,
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected order 1, got %d", applied)
	}
	if fs.applyCalls != 0 {
		t.Fatalf("no-op move must not write, got %d batches", fs.applyCalls)
	}
}

func TestMoveClampsTargetOrder(t *testing.T) {
	fs := twoColumnBoard()
	mover := NewMoveCoordinator(fs)

	applied, err := mover.Move(context.Background(), "b1", MoveRequest{
		TaskID: "t1", FromColumn: "x", ToColumn: "y", TargetOrder: 40,
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if applied != 0 {
		t.Fatalf("empty destination clamps to 0, got %d", applied)
	}
}

func TestMoveValidation(t *testing.T) {
	cases := []struct {
		name string
		req  MoveRequest
	}{
		{"unknown task", MoveRequest{TaskID: "nope", FromColumn: "x", ToColumn: "y"}},
		{"unknown source column", MoveRequest{TaskID: "t1", FromColumn: "zz", ToColumn: "y"}},
		{"unknown destination column", MoveRequest{TaskID: "t1", FromColumn: "x", ToColumn: "zz"}},
		{"task not in source column", MoveRequest{TaskID: "t1", FromColumn: "y", ToColumn: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := twoColumnBoard()
			mover := NewMoveCoordinator(fs)
			_, err := mover.Move(context.Background(), "b1", tc.req)
			if !IsNotFound(err) {
				t.Fatalf("expected NotFoundError, got %v", err)
			}
			if fs.applyCalls != 0 {
				t.Fatal("validation failure must not mutate")
			}
			if got := fs.columnOrders("x"); !reflect.DeepEqual(got, map[string]int{"t1": 0, "t2": 1, "t3": 2}) {
				t.Fatalf("state changed: %#v", got)
			}
		})
	}
}

func TestMoveRetriesOnConflict(t *testing.T) {
	fs := twoColumnBoard()
	fs.forceConflicts = 2
	mover := NewMoveCoordinator(fs)

	applied, err := mover.Move(context.Background(), "b1", MoveRequest{
		TaskID: "t3", FromColumn: "x", ToColumn: "y", TargetOrder: 0,
	})
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if applied != 0 {
		t.Fatalf("unexpected order %d", applied)
	}
	if fs.applyCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", fs.applyCalls)
	}
}

func TestMoveSurfacesConflictAfterRetries(t *testing.T) {
	fs := twoColumnBoard()
	fs.forceConflicts = 10
	mover := NewMoveCoordinator(fs)

	_, err := mover.Move(context.Background(), "b1", MoveRequest{
		TaskID: "t3", FromColumn: "x", ToColumn: "y", TargetOrder: 0,
	})
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	if fs.applyCalls != maxMoveRetries {
		t.Fatalf("expected %d attempts, got %d", maxMoveRetries, fs.applyCalls)
	}
}

// contiguity under a random-ish sequence of creates, moves and deletes
func TestMoveKeepsContiguity(t *testing.T) {
	fs := twoColumnBoard()
	fs.addTask("b1", "y", "u1", 0)
	fs.addTask("b1", "y", "u2", 1)
	mover := NewMoveCoordinator(fs)
	ctx := context.Background()

	moves := []MoveRequest{
		{TaskID: "t1", FromColumn: "x", ToColumn: "y", TargetOrder: 1},
		{TaskID: "u2", FromColumn: "y", ToColumn: "x", TargetOrder: 0},
		{TaskID: "t3", FromColumn: "x", ToColumn: "x", TargetOrder: 0},
		{TaskID: "u1", FromColumn: "y", ToColumn: "y", TargetOrder: 1},
		{TaskID: "t2", FromColumn: "x", ToColumn: "y", TargetOrder: 3},
	}
	for i, req := range moves {
		if _, err := mover.Move(ctx, "b1", req); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		for _, col := range []string{"x", "y"} {
			orders := fs.columnOrders(col)
			entries := make([]SeqEntry, 0, len(orders))
			for id, o := range orders {
				entries = append(entries, SeqEntry{ID: id, Order: o})
			}
			checkContiguous(t, entries)
		}
	}
}
