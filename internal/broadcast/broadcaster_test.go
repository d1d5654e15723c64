package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/embr/internal/metrics"
	"github.com/eldtechnologies/embr/internal/models"
	"github.com/eldtechnologies/embr/internal/room"
)

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]string // channel -> payloads
	streams   []string            // XAdd stream keys
	expired   map[string]time.Duration
	deleted   []string
	metaTTL   time.Duration
	block     chan struct{} // when set, Publish waits until closed
}

func newFakePublisher(metaTTL time.Duration) *fakePublisher {
	return &fakePublisher{
		published: make(map[string][]string),
		expired:   make(map[string]time.Duration),
		metaTTL:   metaTTL,
	}
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	return redis.NewIntResult(1, nil)
}

func (f *fakePublisher) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, a.Stream)
	return redis.NewStringResult("1-1", nil)
}

func (f *fakePublisher) TTL(ctx context.Context, key string) *redis.DurationCmd {
	return redis.NewDurationResult(f.metaTTL, nil)
}

func (f *fakePublisher) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakePublisher) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakePublisher) publishedOn(channel string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.published[channel]))
	copy(out, f.published[channel])
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEmitDeliversMessageEvents(t *testing.T) {
	req := require.New(t)
	fake := newFakePublisher(120 * time.Second)
	b := newWith(fake, nil, zerolog.Nop())
	defer b.Close()

	msg := models.Message{ID: "m1", Sender: "alice", Text: "hi", RoomID: "r1", Token: "secret"}
	b.Emit("r1", models.NewMessageEvent(msg))

	waitFor(t, func() bool { return len(fake.publishedOn(pubsubChannel("r1"))) == 1 })

	var ev models.Event
	req.NoError(json.Unmarshal([]byte(fake.publishedOn(pubsubChannel("r1"))[0]), &ev))
	req.Equal(models.EventMessage, ev.Type)
	req.NotContains(string(ev.Payload), "secret")

	// Message events land on the channel key and its TTL tracks metadata.
	fake.mu.Lock()
	defer fake.mu.Unlock()
	req.Equal([]string{room.ChannelKey("r1")}, fake.streams)
	req.Equal(120*time.Second, fake.expired[room.ChannelKey("r1")])
}

func TestChannelKeyRemovedWhenRoomGone(t *testing.T) {
	req := require.New(t)
	fake := newFakePublisher(-2) // metadata key is gone
	b := newWith(fake, nil, zerolog.Nop())
	defer b.Close()

	b.Emit("r1", models.NewMessageEvent(models.Message{ID: "m1", RoomID: "r1"}))
	waitFor(t, func() bool { return len(fake.publishedOn(pubsubChannel("r1"))) == 1 })

	fake.mu.Lock()
	defer fake.mu.Unlock()
	req.Equal([]string{room.ChannelKey("r1")}, fake.deleted)
	req.Empty(fake.expired)
}

func TestEmitSyncDestroy(t *testing.T) {
	req := require.New(t)
	fake := newFakePublisher(60 * time.Second)
	b := newWith(fake, nil, zerolog.Nop())
	defer b.Close()

	req.NoError(b.EmitSync(context.Background(), "r1", models.NewDestroyedEvent()))

	published := fake.publishedOn(pubsubChannel("r1"))
	req.Len(published, 1)

	var ev models.Event
	req.NoError(json.Unmarshal([]byte(published[0]), &ev))
	req.Equal(models.EventDestroyed, ev.Type)
	req.Equal("true", string(ev.Payload))

	// Destroy events bypass the channel key; it is about to be deleted.
	req.Empty(fake.streams)
}

func TestEmitNeverBlocksWhenQueueFull(t *testing.T) {
	req := require.New(t)
	fake := newFakePublisher(60 * time.Second)
	fake.block = make(chan struct{})
	b := newWith(fake, nil, zerolog.Nop())

	before := testutil.ToFloat64(metrics.EventsDropped)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// One event is stuck in the worker; fill the queue past capacity.
		for i := 0; i < queueSize+10; i++ {
			b.Emit("r1", models.NewDestroyedEvent())
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full queue")
	}

	req.GreaterOrEqual(testutil.ToFloat64(metrics.EventsDropped)-before, float64(1))

	close(fake.block)
	b.Close()
}
