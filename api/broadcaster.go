package api

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nour-derwich/system-management-pulse-hr/domain"
	"github.com/nour-derwich/system-management-pulse-hr/room"
)

var tracer = otel.Tracer("pulse-hr/gateway")

// Broadcaster validates inbound client frames, invokes the matching board
// operation and fans the result out: exactly one ack (or error) to the
// sender, at most one broadcast to the board room. Outbound send failures
// are logged and never fail the triggering request.
type Broadcaster struct {
	svc    TaskOps
	rooms  Rooms
	pub    Publisher
	logger *log.Logger
	now    func() time.Time
}

// NewBroadcaster wires the event fan-out. pub may be nil for
// single-instance deployments.
func NewBroadcaster(svc TaskOps, rooms Rooms, pub Publisher, logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Broadcaster{svc: svc, rooms: rooms, pub: pub, logger: logger, now: time.Now}
}

// HandleFrame processes one inbound frame from a live connection.
func (b *Broadcaster) HandleFrame(ctx context.Context, sender room.Conn, raw []byte) {
	var f frame
	if err := sonic.Unmarshal(raw, &f); err != nil {
		b.sendError(sender, "invalid frame")
		return
	}

	ctx, span := tracer.Start(ctx, "gateway.event")
	span.SetAttributes(attribute.String("event", f.Event))
	defer span.End()

	metrics := newEventMetrics(b.logger, f.Event, sender.ID())
	var err error
	defer func() { metrics.Log(err) }()

	switch f.Event {
	case evJoinBoard:
		err = b.handleJoin(sender, f.Data)
	case evCreateTask:
		err = b.handleCreate(ctx, sender, f.Data)
	case evUpdateTask:
		err = b.handleUpdate(ctx, sender, f.Data)
	case evMoveTask:
		err = b.handleMove(ctx, sender, f.Data)
	case evDeleteTask:
		err = b.handleDelete(ctx, sender, f.Data)
	case evTaskSelected, evTaskDeselected, evUserActivity:
		b.handlePresence(ctx, sender, f.Event, f.Data)
	default:
		b.logger.WithField("event", f.Event).Debug("ignoring unknown event")
	}
}

func (b *Broadcaster) handleJoin(sender room.Conn, data []byte) error {
	var p joinBoardPayload
	// clients may send the board id either bare or wrapped in an object
	if err := sonic.Unmarshal(data, &p); err != nil || p.BoardID == "" {
		var bare string
		if err := sonic.Unmarshal(data, &bare); err == nil {
			p.BoardID = bare
		}
	}
	if err := p.validate(); err != nil {
		b.sendError(sender, err.Error())
		return err
	}
	b.rooms.Join(sender, p.BoardID)
	b.sendFrame(sender, evBoardJoined, boardJoinedPayload{BoardID: p.BoardID})
	return nil
}

func (b *Broadcaster) handleCreate(ctx context.Context, sender room.Conn, data []byte) error {
	var p createTaskPayload
	if err := sonic.Unmarshal(data, &p); err != nil {
		b.sendError(sender, "Missing required fields for task creation")
		return err
	}
	if err := p.validate(); err != nil {
		b.sendError(sender, err.Error())
		return err
	}
	t := domain.Task{Title: *p.Task.Title}
	if p.Task.Description != nil {
		t.Description = *p.Task.Description
	}
	t.AssignedTo = p.Task.AssignedTo
	t.Tags = p.Task.Tags
	t.DueDate = p.Task.DueDate
	if u, ok := sender.(interface{ UserID() string }); ok {
		t.CreatedBy = u.UserID()
	}

	created, err := b.svc.CreateTask(ctx, p.BoardID, p.ColumnID, t)
	if err != nil {
		b.sendError(sender, operationMessage(err, "Could not create task"))
		return err
	}
	b.broadcast(ctx, p.BoardID, evTaskCreated, taskCreatedPayload{Task: *created, Column: p.ColumnID}, "")
	b.sendFrame(sender, evTaskCreated+ackSuffix, ackPayload{Success: true, Task: created})
	return nil
}

func (b *Broadcaster) handleUpdate(ctx context.Context, sender room.Conn, data []byte) error {
	var p updateTaskPayload
	if err := sonic.Unmarshal(data, &p); err != nil {
		b.sendError(sender, "Missing required fields for task update")
		return err
	}
	if err := p.validate(); err != nil {
		b.sendError(sender, err.Error())
		return err
	}
	upd := domain.TaskUpdate{
		Title:       p.Task.Title,
		Description: p.Task.Description,
		AssignedTo:  p.Task.AssignedTo,
		Tags:        p.Task.Tags,
		DueDate:     p.Task.DueDate,
	}
	updated, err := b.svc.UpdateTask(ctx, p.BoardID, p.Task.ID, upd)
	if err != nil {
		b.sendError(sender, operationMessage(err, "Could not update task"))
		return err
	}
	b.broadcast(ctx, p.BoardID, evTaskUpdated, taskUpdatedPayload{Task: *updated}, "")
	b.sendFrame(sender, evTaskUpdated+ackSuffix, ackPayload{Success: true, Task: updated})
	return nil
}

func (b *Broadcaster) handleMove(ctx context.Context, sender room.Conn, data []byte) error {
	var p moveTaskPayload
	if err := sonic.Unmarshal(data, &p); err != nil {
		b.sendError(sender, "Missing required fields for task movement")
		return err
	}
	if err := p.validate(); err != nil {
		b.sendError(sender, err.Error())
		return err
	}
	applied, err := b.svc.MoveTask(ctx, p.BoardID, domain.MoveRequest{
		TaskID:      p.TaskID,
		FromColumn:  p.FromColumn,
		ToColumn:    p.ToColumn,
		TargetOrder: *p.Order,
	})
	if err != nil {
		b.sendError(sender, operationMessage(err, "Could not move task"))
		return err
	}
	// the sender already applied the move optimistically and only needs
	// the ack; everyone else gets the authoritative position
	b.broadcast(ctx, p.BoardID, evTaskMoved, taskMovedPayload{
		TaskID:     p.TaskID,
		FromColumn: p.FromColumn,
		ToColumn:   p.ToColumn,
		Order:      applied,
		BoardID:    p.BoardID,
	}, sender.ID())
	b.sendFrame(sender, evTaskMoved+ackSuffix, ackPayload{Success: true, Order: &applied})
	return nil
}

func (b *Broadcaster) handleDelete(ctx context.Context, sender room.Conn, data []byte) error {
	var p deleteTaskPayload
	if err := sonic.Unmarshal(data, &p); err != nil {
		b.sendError(sender, "Missing required fields for task deletion")
		return err
	}
	if err := p.validate(); err != nil {
		b.sendError(sender, err.Error())
		return err
	}
	if err := b.svc.DeleteTask(ctx, p.BoardID, p.ColumnID, p.TaskID); err != nil {
		b.sendError(sender, operationMessage(err, "Could not delete task"))
		return err
	}
	b.broadcast(ctx, p.BoardID, evTaskDeleted, taskDeletedPayload{TaskID: p.TaskID, ColumnID: p.ColumnID}, "")
	b.sendFrame(sender, evTaskDeleted+ackSuffix, ackPayload{Success: true})
	return nil
}

// Disconnect tears down room membership for a closed connection.
func (b *Broadcaster) Disconnect(conn room.Conn) {
	b.rooms.LeaveAll(conn)
}

// broadcast fans a frame out to the board room, optionally excluding one
// local connection, and relays it to the other instances.
func (b *Broadcaster) broadcast(ctx context.Context, boardID, event string, data any, excludeID string) {
	payload, err := marshalFrame(event, data)
	if err != nil {
		b.logger.WithError(err).Error("marshal broadcast frame")
		return
	}
	for _, m := range b.rooms.MembersOf(boardID) {
		if excludeID != "" && m.ID() == excludeID {
			continue
		}
		if err := m.Send(payload); err != nil {
			b.logger.WithFields(log.Fields{"conn": m.ID(), "event": event}).Warn("dropping frame for unreachable member")
		}
	}
	if b.pub != nil {
		if err := b.pub.Publish(ctx, boardID, payload); err != nil {
			b.logger.WithError(err).WithField("board", boardID).Warn("publish to peers failed")
		}
	}
}

func (b *Broadcaster) sendFrame(conn room.Conn, event string, data any) {
	payload, err := marshalFrame(event, data)
	if err != nil {
		b.logger.WithError(err).Error("marshal frame")
		return
	}
	if err := conn.Send(payload); err != nil {
		b.logger.WithFields(log.Fields{"conn": conn.ID(), "event": event}).Warn("dropping frame for unreachable sender")
	}
}

func (b *Broadcaster) sendError(conn room.Conn, msg string) {
	b.sendFrame(conn, evError, errorPayload{Message: msg})
}

// operationMessage maps domain failures onto client-facing messages;
// internal detail stays in the logs.
func operationMessage(err error, fallback string) string {
	if domain.IsValidation(err) || domain.IsNotFound(err) {
		return err.Error()
	}
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		return "Board is busy, re-sync and retry"
	}
	return fallback
}
