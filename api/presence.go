package api

import (
	"context"
	"time"

	"github.com/bytedance/sonic"

	"github.com/nour-derwich/system-management-pulse-hr/room"
)

// handlePresence relays ephemeral activity signals to the rest of the
// room. Presence is never persisted and never acknowledged; frames with
// missing required fields are dropped with a debug log. A disconnected
// sender simply stops producing signals, so no explicit cleanup event
// exists.
func (b *Broadcaster) handlePresence(ctx context.Context, sender room.Conn, event string, data []byte) {
	var p presencePayload
	if err := sonic.Unmarshal(data, &p); err != nil {
		b.logger.WithField("event", event).Debug("dropping malformed presence frame")
		return
	}
	if p.BoardID == "" || p.UserID == "" {
		b.logger.WithField("event", event).Debug("dropping presence frame without board or user")
		return
	}

	switch event {
	case evTaskSelected:
		if p.TaskID == "" {
			b.logger.Debug("dropping task-selected without taskId")
			return
		}
		b.broadcast(ctx, p.BoardID, evTaskSelected, taskSelectedPayload{
			TaskID:     p.TaskID,
			UserID:     p.UserID,
			SelectedAt: b.now().UTC().Format(time.RFC3339),
		}, sender.ID())
	case evTaskDeselected:
		b.broadcast(ctx, p.BoardID, evTaskDeselected, taskDeselectedPayload{UserID: p.UserID}, sender.ID())
	case evUserActivity:
		b.broadcast(ctx, p.BoardID, evUserActive, userActivePayload{
			UserID:   p.UserID,
			TaskID:   p.TaskID,
			Activity: p.Activity,
		}, sender.ID())
	}
}
