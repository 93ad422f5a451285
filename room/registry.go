// Package room tracks which live connections are subscribed to which
// board. Membership exists only for the lifetime of the connection and is
// torn down synchronously on disconnect.
package room

import "sync"

// Conn is a live client connection the registry can hand frames to.
type Conn interface {
	// ID uniquely identifies the connection for the duration of its life.
	ID() string
	// Send queues an outbound frame. It must not block; a full client is
	// reported as an error and the frame is dropped.
	Send(payload []byte) error
}

// Registry is the in-memory membership table of board rooms.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]map[string]Conn // board id -> conn id -> conn
	joined map[string]map[string]bool // conn id -> board ids
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]Conn),
		joined: make(map[string]map[string]bool),
	}
}

// Join subscribes the connection to the board's room. Joining twice is a
// no-op.
func (r *Registry) Join(conn Conn, boardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[boardID]
	if !ok {
		members = make(map[string]Conn)
		r.rooms[boardID] = members
	}
	members[conn.ID()] = conn
	boards, ok := r.joined[conn.ID()]
	if !ok {
		boards = make(map[string]bool)
		r.joined[conn.ID()] = boards
	}
	boards[boardID] = true
}

// LeaveAll removes the connection from every room it joined.
func (r *Registry) LeaveAll(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for boardID := range r.joined[conn.ID()] {
		members := r.rooms[boardID]
		delete(members, conn.ID())
		if len(members) == 0 {
			delete(r.rooms, boardID)
		}
	}
	delete(r.joined, conn.ID())
}

// MembersOf returns the connections currently subscribed to the board.
func (r *Registry) MembersOf(boardID string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[boardID]
	out := make([]Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}
