package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultChannel carries board event frames between instances.
const DefaultChannel = "board-events"

// envelope wraps a broadcast frame with its origin so an instance can
// skip the messages it published itself.
type envelope struct {
	Origin  string          `json:"origin"`
	BoardID string          `json:"boardId"`
	Frame   json.RawMessage `json:"frame"`
}

// Relay fans board event frames out to the other instances of the
// service over a Redis pub/sub channel.
type Relay struct {
	redis   *redis.Client
	channel string
	origin  string
	logger  *log.Logger
}

func NewRelay(client *redis.Client, channel string, logger *log.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Relay{
		redis:   client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Publish sends an already-marshalled frame to the channel.
func (r *Relay) Publish(ctx context.Context, boardID string, frame []byte) error {
	data, err := json.Marshal(envelope{Origin: r.origin, BoardID: boardID, Frame: frame})
	if err != nil {
		return err
	}
	return r.redis.Publish(ctx, r.channel, data).Err()
}

// Subscribe listens for frames published by other instances and hands
// them to deliver. It blocks until ctx is cancelled and reconnects when
// the pub/sub channel closes.
func (r *Relay) Subscribe(ctx context.Context, deliver func(boardID string, frame []byte)) {
	for {
		sub := r.redis.Subscribe(ctx, r.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.logger.WithError(err).Error("unable to parse relayed frame")
					continue
				}
				if env.Origin == r.origin {
					continue
				}
				deliver(env.BoardID, env.Frame)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
