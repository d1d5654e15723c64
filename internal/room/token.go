package room

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Role distinguishes the room's creator from joined participants. Only the
// creator may destroy the room.
type Role byte

const (
	RoleCreator     Role = 'c'
	RoleParticipant Role = 'p'
)

// TokenPolicy decides how room access tokens are issued and verified. The
// guard only checks possession of a token bound to the room; it does not
// authenticate identity.
type TokenPolicy interface {
	// Issue mints a fresh token bound to the room with the given role.
	Issue(roomID string, role Role) (string, error)

	// Verify checks that the token is bound to the room and returns its
	// role. Returns ErrUnauthorized on any mismatch.
	Verify(roomID, token string) (Role, error)
}

const (
	tokenNonceLen = 16
	tokenMACLen   = 32
)

// SignedTokenPolicy issues stateless tokens: role || nonce || MAC, where the
// MAC is a keyed BLAKE2b over roomId, role, and nonce. Every participant
// gets a distinct token (distinct nonce), so message redaction can tell
// posters apart without storing tokens as separate entities.
type SignedTokenPolicy struct {
	secret []byte
}

// NewSignedTokenPolicy returns the default token policy. The secret must be
// at least 32 bytes; rotating it invalidates all outstanding tokens.
func NewSignedTokenPolicy(secret []byte) (*SignedTokenPolicy, error) {
	if len(secret) < 32 || len(secret) > 64 {
		return nil, fmt.Errorf("token secret must be 32-64 bytes, got %d", len(secret))
	}
	return &SignedTokenPolicy{secret: secret}, nil
}

func (p *SignedTokenPolicy) Issue(roomID string, role Role) (string, error) {
	nonce := make([]byte, tokenNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("token nonce: %w", err)
	}

	raw := make([]byte, 0, 1+tokenNonceLen+tokenMACLen)
	raw = append(raw, byte(role))
	raw = append(raw, nonce...)
	raw = append(raw, p.mac(roomID, role, nonce)...)

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func (p *SignedTokenPolicy) Verify(roomID, token string) (Role, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != 1+tokenNonceLen+tokenMACLen {
		return 0, ErrUnauthorized
	}

	role := Role(raw[0])
	if role != RoleCreator && role != RoleParticipant {
		return 0, ErrUnauthorized
	}

	nonce := raw[1 : 1+tokenNonceLen]
	mac := raw[1+tokenNonceLen:]
	if !hmac.Equal(mac, p.mac(roomID, role, nonce)) {
		return 0, ErrUnauthorized
	}
	return role, nil
}

func (p *SignedTokenPolicy) mac(roomID string, role Role, nonce []byte) []byte {
	h, err := blake2b.New256(p.secret)
	if err != nil {
		// Only possible with an oversized key; the constructor bounds it.
		panic(err)
	}
	h.Write([]byte(roomID))
	h.Write([]byte{byte(role)})
	h.Write(nonce)
	return h.Sum(nil)
}
