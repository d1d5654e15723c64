package models

// Message represents a chat message stored in the room's message list.
//
// Token is the poster's access token. It is stored alongside the message so
// readers can recognise their own prior messages, but it survives a read
// only when the reader presents the same token, and it is always stripped
// from broadcast events.
type Message struct {
	ID        string `json:"id"`        // ULID
	Sender    string `json:"sender"`    // display name, <= 100 chars
	Text      string `json:"text"`      // body, <= 1000 chars
	Timestamp int64  `json:"timestamp"` // Unix ms at server receipt
	RoomID    string `json:"roomId"`
	Token     string `json:"token,omitempty"`
}

// Redacted returns a copy with the token removed unless it equals the
// caller's token. Removal relies on omitempty so the field is absent from
// JSON output, not blanked.
func (m Message) Redacted(callerToken string) Message {
	if m.Token != callerToken {
		m.Token = ""
	}
	return m
}
