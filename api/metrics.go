package api

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nour-derwich/system-management-pulse-hr/domain"
)

// eventMetrics accumulates timing and outcome data for one gateway event
// and emits a single structured log line when the event finishes.
type eventMetrics struct {
	logger *log.Logger
	event  string
	conn   string
	start  time.Time
}

func newEventMetrics(logger *log.Logger, event, connID string) *eventMetrics {
	return &eventMetrics{logger: logger, event: event, conn: connID, start: time.Now()}
}

func (m *eventMetrics) Log(err error) {
	if m == nil || m.logger == nil {
		return
	}
	fields := log.Fields{
		"event":    m.event,
		"conn":     m.conn,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if err != nil {
		fields["error"] = err.Error()
		switch {
		case domain.IsValidation(err):
			fields["error_stage"] = "validation"
		case domain.IsNotFound(err):
			fields["error_stage"] = "not_found"
		default:
			fields["error_stage"] = "operation"
		}
		m.logger.WithFields(fields).Warn("gateway.event.metrics")
		return
	}
	m.logger.WithFields(fields).Debug("gateway.event.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
