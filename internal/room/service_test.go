package room

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/embr/internal/kv"
	"github.com/eldtechnologies/embr/internal/models"
)

// fakeEmitter records emitted events and, together with journalStore, the
// order of emits relative to store operations.
type fakeEmitter struct {
	mu      sync.Mutex
	events  []models.Event
	syncErr error
	journal *[]string
}

func (f *fakeEmitter) Emit(roomID string, ev models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if f.journal != nil {
		*f.journal = append(*f.journal, "emit:"+ev.Type)
	}
}

func (f *fakeEmitter) EmitSync(ctx context.Context, roomID string, ev models.Event) error {
	f.Emit(roomID, ev)
	return f.syncErr
}

// journalStore wraps a Store, recording deletions and optionally failing
// specific keys.
type journalStore struct {
	kv.Store
	journal    *[]string
	failDelete map[string]error
}

func (s *journalStore) DeleteKey(ctx context.Context, key string) error {
	if s.journal != nil {
		*s.journal = append(*s.journal, "delete:"+key)
	}
	if err, ok := s.failDelete[key]; ok {
		return err
	}
	return s.Store.DeleteKey(ctx, key)
}

func testPolicy(t *testing.T) TokenPolicy {
	t.Helper()
	policy, err := NewSignedTokenPolicy(bytes.Repeat([]byte("s"), 32))
	require.NoError(t, err)
	return policy
}

func newTestService(t *testing.T) (*Service, *kv.MemoryStore, *fakeEmitter) {
	t.Helper()
	store := kv.NewMemoryStore()
	emitter := &fakeEmitter{}
	svc := NewService(store, emitter, testPolicy(t), zerolog.Nop())
	return svc, store, emitter
}

func TestCreateRoom(t *testing.T) {
	req := require.New(t)
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx)
	req.NoError(err)
	req.NotEmpty(created.ID)
	req.NotEmpty(created.Token)
	req.EqualValues(600, created.TTL)

	exists, err := store.Exists(ctx, MetaKey(created.ID))
	req.NoError(err)
	req.True(exists)

	ttl, err := svc.TTL(ctx, created.ID)
	req.NoError(err)
	req.Greater(ttl, int64(0))
	req.LessOrEqual(ttl, int64(600))

	role, err := svc.VerifyToken(ctx, created.ID, created.Token)
	req.NoError(err)
	req.Equal(RoleCreator, role)
}

func TestTTLNeverNegative(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newTestService(t)

	// Unknown room: the store reports the NoTTL sentinel, the service
	// floors it at exactly 0.
	ttl, err := svc.TTL(context.Background(), "00000000-0000-0000-0000-000000000000")
	req.NoError(err)
	req.EqualValues(0, ttl)
}

func TestPostToMissingRoom(t *testing.T) {
	req := require.New(t)
	svc, store, emitter := newTestService(t)
	ctx := context.Background()

	roomID := "11111111-1111-1111-1111-111111111111"
	_, err := svc.Post(ctx, roomID, "tok", "alice", "hi")
	req.ErrorIs(err, ErrRoomNotFound)

	raw, err := store.ReadListRange(ctx, MessagesKey(roomID), 0, -1)
	req.NoError(err)
	req.Empty(raw)
	req.Empty(emitter.events)
}

func TestPostLengthBounds(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx)
	req.NoError(err)

	_, err = svc.Post(ctx, created.ID, created.Token, strings.Repeat("a", MaxSenderLen), "hi")
	req.NoError(err)
	_, err = svc.Post(ctx, created.ID, created.Token, strings.Repeat("a", MaxSenderLen+1), "hi")
	req.ErrorIs(err, ErrValidation)

	_, err = svc.Post(ctx, created.ID, created.Token, "alice", strings.Repeat("x", MaxTextLen))
	req.NoError(err)
	_, err = svc.Post(ctx, created.ID, created.Token, "alice", strings.Repeat("x", MaxTextLen+1))
	req.ErrorIs(err, ErrValidation)

	// Bounds count characters, not bytes.
	_, err = svc.Post(ctx, created.ID, created.Token, strings.Repeat("é", MaxSenderLen), "hi")
	req.NoError(err)
}

func TestListPreservesInsertionOrder(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx)
	req.NoError(err)

	texts := []string{"first", "second", "third"}
	for _, text := range texts {
		_, err := svc.Post(ctx, created.ID, created.Token, "alice", text)
		req.NoError(err)
	}

	messages, err := svc.List(ctx, created.ID, created.Token)
	req.NoError(err)
	req.Len(messages, len(texts))
	for i, text := range texts {
		req.Equal(text, messages[i].Text)
	}
}

func TestTokenRedaction(t *testing.T) {
	req := require.New(t)
	svc, _, emitter := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx)
	req.NoError(err)

	guestToken, err := svc.Join(ctx, created.ID)
	req.NoError(err)
	req.NotEqual(created.Token, guestToken)

	_, err = svc.Post(ctx, created.ID, created.Token, "alice", "hi")
	req.NoError(err)
	_, err = svc.Post(ctx, created.ID, guestToken, "bob", "hello back")
	req.NoError(err)

	// The creator sees their own token, not the guest's.
	asCreator, err := svc.List(ctx, created.ID, created.Token)
	req.NoError(err)
	req.Len(asCreator, 2)
	req.Equal(created.Token, asCreator[0].Token)
	req.Empty(asCreator[1].Token)

	// And vice versa.
	asGuest, err := svc.List(ctx, created.ID, guestToken)
	req.NoError(err)
	req.Empty(asGuest[0].Token)
	req.Equal(guestToken, asGuest[1].Token)

	// Broadcast events never carry a token.
	for _, ev := range emitter.events {
		req.Equal(models.EventMessage, ev.Type)
		req.NotContains(string(ev.Payload), `"token"`)
	}
}

func TestPostSyncsDependentTTLs(t *testing.T) {
	req := require.New(t)
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx)
	req.NoError(err)

	// Simulate a room halfway through its life, with an existing channel
	// key, and verify posting copies the metadata TTL rather than
	// resetting to the 600 second constant.
	req.NoError(store.SetTTL(ctx, MetaKey(created.ID), 300))
	req.NoError(store.AppendToList(ctx, ChannelKey(created.ID), []byte("x")))

	_, err = svc.Post(ctx, created.ID, created.Token, "alice", "hi")
	req.NoError(err)

	metaTTL, err := store.GetTTL(ctx, MetaKey(created.ID))
	req.NoError(err)
	for _, key := range []string{MessagesKey(created.ID), ChannelKey(created.ID)} {
		ttl, err := store.GetTTL(ctx, key)
		req.NoError(err)
		req.InDelta(metaTTL, ttl, 2, "key %s should track the metadata TTL", key)
		req.Less(ttl, int64(600))
	}
}

func TestDestroyEmitsBeforeDeleting(t *testing.T) {
	req := require.New(t)
	journal := []string{}
	store := &journalStore{Store: kv.NewMemoryStore(), journal: &journal}
	emitter := &fakeEmitter{journal: &journal}
	svc := NewService(store, emitter, testPolicy(t), zerolog.Nop())
	ctx := context.Background()

	created, err := svc.Create(ctx)
	req.NoError(err)
	_, err = svc.Post(ctx, created.ID, created.Token, "alice", "hi")
	req.NoError(err)

	req.NoError(svc.Destroy(ctx, created.ID))

	req.Equal([]string{
		"emit:" + models.EventDestroyed,
		"delete:" + ChannelKey(created.ID),
		"delete:" + MetaKey(created.ID),
		"delete:" + MessagesKey(created.ID),
	}, journal[len(journal)-4:])

	// The room is logically gone.
	_, err = svc.Post(ctx, created.ID, created.Token, "alice", "again")
	req.ErrorIs(err, ErrRoomNotFound)
	_, err = svc.VerifyToken(ctx, created.ID, created.Token)
	req.ErrorIs(err, ErrRoomNotFound)
}

func TestDestroyIsBestEffort(t *testing.T) {
	req := require.New(t)
	journal := []string{}
	mem := kv.NewMemoryStore()
	ctx := context.Background()

	emitter := &fakeEmitter{}
	svc := NewService(mem, emitter, testPolicy(t), zerolog.Nop())
	created, err := svc.Create(ctx)
	req.NoError(err)
	_, err = svc.Post(ctx, created.ID, created.Token, "alice", "hi")
	req.NoError(err)

	failing := &journalStore{
		Store:      mem,
		journal:    &journal,
		failDelete: map[string]error{MetaKey(created.ID): errors.New("boom")},
	}
	svc = NewService(failing, emitter, testPolicy(t), zerolog.Nop())

	err = svc.Destroy(ctx, created.ID)
	req.Error(err)
	req.Contains(err.Error(), "partially destroyed")

	// Every key was still attempted and the others are gone.
	req.Len(journal, 3)
	for _, key := range []string{ChannelKey(created.ID), MessagesKey(created.ID)} {
		exists, err := mem.Exists(ctx, key)
		req.NoError(err)
		req.False(exists, "key %s should be deleted", key)
	}
}

func TestDestroyProceedsWhenEmitFails(t *testing.T) {
	req := require.New(t)
	store := kv.NewMemoryStore()
	emitter := &fakeEmitter{syncErr: ErrBroadcast}
	svc := NewService(store, emitter, testPolicy(t), zerolog.Nop())
	ctx := context.Background()

	created, err := svc.Create(ctx)
	req.NoError(err)
	req.NoError(svc.Destroy(ctx, created.ID))

	exists, err := store.Exists(ctx, MetaKey(created.ID))
	req.NoError(err)
	req.False(exists)
}

func TestEndToEndScenario(t *testing.T) {
	req := require.New(t)
	svc, _, emitter := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx)
	req.NoError(err)

	msg, err := svc.Post(ctx, created.ID, created.Token, "alice", "hi")
	req.NoError(err)
	req.NotZero(msg.Timestamp)

	own, err := svc.List(ctx, created.ID, created.Token)
	req.NoError(err)
	req.Equal(created.Token, own[0].Token)

	guestToken, err := svc.Join(ctx, created.ID)
	req.NoError(err)
	other, err := svc.List(ctx, created.ID, guestToken)
	req.NoError(err)
	req.Empty(other[0].Token)

	req.NoError(svc.Destroy(ctx, created.ID))
	req.Equal(models.EventDestroyed, emitter.events[len(emitter.events)-1].Type)

	_, err = svc.Post(ctx, created.ID, created.Token, "alice", "too late")
	req.ErrorIs(err, ErrRoomNotFound)
}
