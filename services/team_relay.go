package services

import (
	"context"
	"encoding/json"
	"fmt"

	"qteams/logging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RelayChannel is the Redis pub/sub channel shared by all instances.
const RelayChannel = "qteams:team-events"

const (
	relayChanged = "changed"
	relayDeleted = "deleted"
)

type relayEvent struct {
	Origin   string        `json:"origin"`
	Type     string        `json:"type"`
	TeamID   uint          `json:"team_id"`
	Snapshot *TeamSnapshot `json:"snapshot,omitempty"`
}

// TeamRelay publishes the team changes of this instance over Redis and
// replays the changes of other instances into a local notifier, so every
// websocket subscriber hears about every change.
type TeamRelay struct {
	redis *redis.Client
	id    string
	log   *logging.Logger
}

func NewTeamRelay(client *redis.Client, log *logging.Logger) *TeamRelay {
	if log == nil {
		log = logging.Nop()
	}
	id := uuid.NewString()
	return &TeamRelay{redis: client, id: id, log: log.With("instance", id)}
}

// ID identifies this instance on the channel.
func (r *TeamRelay) ID() string {
	return r.id
}

func (r *TeamRelay) TeamChanged(ctx context.Context, snapshot *TeamSnapshot) {
	r.publish(ctx, relayEvent{Type: relayChanged, TeamID: snapshot.TeamID, Snapshot: snapshot})
}

func (r *TeamRelay) TeamDeleted(ctx context.Context, teamID uint) {
	r.publish(ctx, relayEvent{Type: relayDeleted, TeamID: teamID})
}

func (r *TeamRelay) publish(ctx context.Context, event relayEvent) {
	event.Origin = r.id
	data, err := json.Marshal(event)
	if err != nil {
		r.log.WithTeam(event.TeamID).Warn("failed to marshal relay event", "error", err)
		return
	}
	if err := r.redis.Publish(ctx, RelayChannel, data).Err(); err != nil {
		r.log.WithTeam(event.TeamID).Warn("failed to publish relay event", "error", err)
	}
}

// Start subscribes to the channel and forwards events of other instances
// to sink until ctx is cancelled. It returns once the subscription is
// confirmed.
func (r *TeamRelay) Start(ctx context.Context, sink TeamNotifier) error {
	pubsub := r.redis.Subscribe(ctx, RelayChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", RelayChannel, err)
	}

	go func() {
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				r.dispatch(ctx, msg.Payload, sink)
			}
		}
	}()
	return nil
}

func (r *TeamRelay) dispatch(ctx context.Context, payload string, sink TeamNotifier) {
	var event relayEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		r.log.Warn("dropping malformed relay event", "error", err)
		return
	}
	if event.Origin == r.id {
		return
	}

	switch event.Type {
	case relayChanged:
		if event.Snapshot != nil {
			sink.TeamChanged(ctx, event.Snapshot)
		}
	case relayDeleted:
		sink.TeamDeleted(ctx, event.TeamID)
	default:
		r.log.WithTeam(event.TeamID).Debug("unknown relay event", "type", event.Type)
	}
}
