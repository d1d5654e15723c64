// Package room implements the lifecycle and message operations for
// short-lived shared chat rooms. All room state lives in TTL-bearing keys of
// an external store; the metadata key is the sole authority for existence.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/embr/internal/ident"
	"github.com/eldtechnologies/embr/internal/kv"
	"github.com/eldtechnologies/embr/internal/models"
)

// TimeToLive is the fixed room lifetime set at creation. Posting messages
// never extends it; dependent keys only ever copy the metadata key's
// remaining TTL.
const TimeToLive = 600 * time.Second

// Message field bounds, counted in characters.
const (
	MaxSenderLen = 100
	MaxTextLen   = 1000
)

// MetaKey returns the key holding a room's metadata hash.
func MetaKey(roomID string) string {
	return fmt.Sprintf("meta:%s", roomID)
}

// MessagesKey returns the key holding a room's ordered message list.
func MessagesKey(roomID string) string {
	return fmt.Sprintf("messages:%s", roomID)
}

// ChannelKey returns the key backing a room's broadcast channel.
func ChannelKey(roomID string) string {
	return fmt.Sprintf("channel:%s", roomID)
}

// Emitter publishes events on a room's broadcast channel.
type Emitter interface {
	// Emit is fire-and-forget; a failed or slow delivery never blocks the
	// caller.
	Emit(roomID string, ev models.Event)

	// EmitSync publishes and waits for the publish to complete. Used for
	// destroy events, which must reach the channel before keys are deleted.
	EmitSync(ctx context.Context, roomID string, ev models.Event) error
}

// Service implements room lifecycle and message operations over an external
// store and a broadcaster. It holds no in-process locks: consistency relies
// on the atomicity of individual store operations and on the append-only
// message history.
type Service struct {
	store  kv.Store
	events Emitter
	tokens TokenPolicy
	log    zerolog.Logger
}

// NewService wires a Service with its dependencies.
func NewService(store kv.Store, events Emitter, tokens TokenPolicy, log zerolog.Logger) *Service {
	return &Service{store: store, events: events, tokens: tokens, log: log}
}

// Create provisions a new room: fresh id, empty participant list, TTL set to
// TimeToLive. Returns the id and the creator's token.
func (s *Service) Create(ctx context.Context) (models.CreatedRoom, error) {
	roomID := ident.NewRoomID()

	token, err := s.tokens.Issue(roomID, RoleCreator)
	if err != nil {
		return models.CreatedRoom{}, err
	}

	key := MetaKey(roomID)
	fields := map[string]string{
		models.MetaFieldConnected: "[]",
		models.MetaFieldCreatedAt: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if err := s.store.SetHash(ctx, key, fields); err != nil {
		return models.CreatedRoom{}, err
	}

	ttl := int64(TimeToLive.Seconds())
	if err := s.store.SetTTL(ctx, key, ttl); err != nil {
		return models.CreatedRoom{}, err
	}

	s.log.Info().Str("room_id", roomID).Msg("room created")

	return models.CreatedRoom{ID: roomID, Token: token, TTL: ttl}, nil
}

// TTL reports the room's remaining lifetime in seconds, floored at 0. An
// expired or missing room reports 0, never a negative number; callers treat
// 0 as "about to vanish".
func (s *Service) TTL(ctx context.Context, roomID string) (int64, error) {
	ttl, err := s.store.GetTTL(ctx, MetaKey(roomID))
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Destroy tears a room down early. The destroy event is published before any
// key is deleted so connected clients learn of the destruction even if they
// cannot re-query store state. Deletion is best-effort: every key is
// attempted and partial failures are joined into the returned error.
func (s *Service) Destroy(ctx context.Context, roomID string) error {
	if err := s.events.EmitSync(ctx, roomID, models.NewDestroyedEvent()); err != nil {
		// Clients may miss the event, but the room still has to go.
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("destroy event publish failed")
	}

	var errs error
	for _, key := range []string{ChannelKey(roomID), MetaKey(roomID), MessagesKey(roomID)} {
		if err := s.store.DeleteKey(ctx, key); err != nil {
			errs = errors.Join(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	if errs != nil {
		return fmt.Errorf("room %s partially destroyed: %w", roomID, errs)
	}

	s.log.Info().Str("room_id", roomID).Msg("room destroyed")
	return nil
}

// Post appends a message to the room's history, broadcasts it, and brings
// the dependent keys' TTLs back in lockstep with the metadata key. The
// existence check can race with destruction; the accepted outcome is either
// ErrRoomNotFound or a message that vanishes with the room.
func (s *Service) Post(ctx context.Context, roomID, token, sender, text string) (models.Message, error) {
	if n := utf8.RuneCountInString(sender); n == 0 || n > MaxSenderLen {
		return models.Message{}, fmt.Errorf("%w: sender must be 1-%d characters", ErrValidation, MaxSenderLen)
	}
	if n := utf8.RuneCountInString(text); n == 0 || n > MaxTextLen {
		return models.Message{}, fmt.Errorf("%w: text must be 1-%d characters", ErrValidation, MaxTextLen)
	}

	exists, err := s.store.Exists(ctx, MetaKey(roomID))
	if err != nil {
		return models.Message{}, err
	}
	if !exists {
		return models.Message{}, ErrRoomNotFound
	}

	msg := models.Message{
		ID:        ident.NewMessageID(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		RoomID:    roomID,
		Token:     token,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.store.AppendToList(ctx, MessagesKey(roomID), data); err != nil {
		return models.Message{}, err
	}

	// Message is durably stored; live delivery is best-effort from here.
	s.events.Emit(roomID, models.NewMessageEvent(msg))

	if err := s.syncTTLs(ctx, roomID); err != nil {
		return models.Message{}, err
	}

	return msg, nil
}

// syncTTLs copies the metadata key's remaining TTL onto the message list and
// channel keys so all three expire within the same second. The TTL is copied,
// never reset to TimeToLive. A non-positive remaining TTL means the room
// expired mid-operation; nothing to sync.
func (s *Service) syncTTLs(ctx context.Context, roomID string) error {
	remaining, err := s.store.GetTTL(ctx, MetaKey(roomID))
	if err != nil {
		return err
	}
	if remaining <= 0 {
		return nil
	}
	if err := s.store.SetTTL(ctx, MessagesKey(roomID), remaining); err != nil {
		return err
	}
	return s.store.SetTTL(ctx, ChannelKey(roomID), remaining)
}

// List returns the room's full history in insertion order. Each message's
// token survives only when it equals the caller's token; otherwise the field
// is removed entirely.
func (s *Service) List(ctx context.Context, roomID, token string) ([]models.Message, error) {
	raw, err := s.store.ReadListRange(ctx, MessagesKey(roomID), 0, -1)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(raw))
	for _, data := range raw {
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn().Err(err).Str("room_id", roomID).Msg("skipping undecodable message")
			continue
		}
		messages = append(messages, msg.Redacted(token))
	}
	return messages, nil
}

// Join mints a participant token for an existing room. Possession of the
// room id is the join credential, mirroring the room link being the thing
// the creator shares.
func (s *Service) Join(ctx context.Context, roomID string) (string, error) {
	exists, err := s.store.Exists(ctx, MetaKey(roomID))
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrRoomNotFound
	}
	return s.tokens.Issue(roomID, RoleParticipant)
}

// VerifyToken checks possession of a token bound to the room, against the
// authoritative room state. ErrRoomNotFound when the metadata key is absent,
// ErrUnauthorized on mismatch.
func (s *Service) VerifyToken(ctx context.Context, roomID, token string) (Role, error) {
	exists, err := s.store.Exists(ctx, MetaKey(roomID))
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrRoomNotFound
	}
	return s.tokens.Verify(roomID, token)
}
