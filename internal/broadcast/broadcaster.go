// Package broadcast publishes room life-cycle and message events over Redis
// pub/sub. Publishing is fire-and-forget: a slow or failed subscriber never
// blocks a poster, and events are not replayed for late subscribers (history
// is independently retrievable from the message list).
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/embr/internal/metrics"
	"github.com/eldtechnologies/embr/internal/models"
	"github.com/eldtechnologies/embr/internal/room"
)

const (
	queueSize      = 256
	publishTimeout = 5 * time.Second
	maxChannelLen  = 1000
)

// pubsubChannel returns the pub/sub channel name for a room.
func pubsubChannel(roomID string) string {
	return fmt.Sprintf("room.events.%s", roomID)
}

// publisher is the slice of the Redis API the broadcaster needs; tests
// substitute a recording fake.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type envelope struct {
	roomID string
	event  models.Event
}

// Broadcaster fans events out to a room's subscribers. Emit enqueues onto a
// buffered queue drained by a single worker goroutine; a full queue drops
// the event rather than blocking the publisher.
type Broadcaster struct {
	rdb    publisher
	client *redis.Client // nil in tests; needed only for Subscribe
	log    zerolog.Logger

	queue chan envelope
	done  chan struct{}
	once  sync.Once
}

// New creates a Broadcaster over the given Redis client and starts its
// delivery worker.
func New(client *redis.Client, log zerolog.Logger) *Broadcaster {
	b := newWith(client, client, log)
	return b
}

func newWith(rdb publisher, client *redis.Client, log zerolog.Logger) *Broadcaster {
	b := &Broadcaster{
		rdb:    rdb,
		client: client,
		log:    log,
		queue:  make(chan envelope, queueSize),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Emit enqueues an event for delivery. Never blocks; the event is dropped
// (counted and logged) when the queue is full.
func (b *Broadcaster) Emit(roomID string, ev models.Event) {
	select {
	case b.queue <- envelope{roomID: roomID, event: ev}:
	default:
		metrics.EventsDropped.Inc()
		b.log.Warn().Str("room_id", roomID).Str("event", ev.Type).Msg("broadcast queue full, event dropped")
	}
}

// EmitSync publishes immediately and reports failure. Destroy events use
// this path so the event reaches the channel before the room's keys are
// deleted.
func (b *Broadcaster) EmitSync(ctx context.Context, roomID string, ev models.Event) error {
	return b.publish(ctx, roomID, ev)
}

// Close drains the queue and stops the worker.
func (b *Broadcaster) Close() {
	b.once.Do(func() {
		close(b.queue)
		<-b.done
	})
}

func (b *Broadcaster) run() {
	defer close(b.done)
	for env := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := b.publish(ctx, env.roomID, env.event); err != nil {
			b.log.Warn().Err(err).Str("room_id", env.roomID).Str("event", env.event.Type).Msg("event publish failed")
		}
		cancel()
	}
}

// publish appends chat events to the room's channel key and publishes on
// pub/sub for live delivery.
func (b *Broadcaster) publish(ctx context.Context, roomID string, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", room.ErrBroadcast, err)
	}

	if ev.Type == models.EventMessage {
		b.appendToChannel(ctx, roomID, data)
	}

	if err := b.rdb.Publish(ctx, pubsubChannel(roomID), data).Err(); err != nil {
		return fmt.Errorf("%w: %v", room.ErrBroadcast, err)
	}
	metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
	return nil
}

// appendToChannel maintains the TTL-bearing channel key as a capped stream
// of delivered events. Best-effort: the pub/sub publish is what subscribers
// see. The key's TTL follows the metadata key; if the metadata key is gone
// the room is gone and the channel key is removed so a late append cannot
// resurrect it without an expiry.
func (b *Broadcaster) appendToChannel(ctx context.Context, roomID string, data []byte) {
	key := room.ChannelKey(roomID)
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: maxChannelLen,
		Approx: true,
		Values: map[string]interface{}{"event": string(data)},
	}).Err()
	if err != nil {
		b.log.Debug().Err(err).Str("room_id", roomID).Msg("channel append failed")
		return
	}

	metaTTL, err := b.rdb.TTL(ctx, room.MetaKey(roomID)).Result()
	if err != nil {
		return
	}
	if metaTTL > 0 {
		b.rdb.Expire(ctx, key, metaTTL)
	} else {
		b.rdb.Del(ctx, key)
	}
}

// Subscribe returns a live stream of the room's events. The stream closes
// when ctx is cancelled or after a destroy event. Events published before
// the subscription are not replayed.
func (b *Broadcaster) Subscribe(ctx context.Context, roomID string) (<-chan models.Event, error) {
	if b.client == nil {
		return nil, fmt.Errorf("%w: no live connection", room.ErrBroadcast)
	}

	sub := b.client.Subscribe(ctx, pubsubChannel(roomID))
	// Force the SUBSCRIBE round-trip so a dead connection fails here, not
	// silently in the reader goroutine.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("%w: %v", room.ErrBroadcast, err)
	}

	out := make(chan models.Event, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev models.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn().Err(err).Str("room_id", roomID).Msg("undecodable event on channel")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Type == models.EventDestroyed {
					return
				}
			}
		}
	}()
	return out, nil
}
