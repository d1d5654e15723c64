package models

// Meta hash field names under meta:{roomId}.
const (
	MetaFieldConnected = "connected"
	MetaFieldCreatedAt = "createdAt"
)

// Room describes a room's metadata as stored in the meta hash.
//
// Connected is reserved presence state: it is written empty at creation and
// never mutated by the current operations.
type Room struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"` // Unix ms
	Connected string `json:"connected"`  // JSON array of participant ids
}

// CreatedRoom is returned to the creator and is the only place the raw
// access token ever leaves the service.
type CreatedRoom struct {
	ID    string `json:"room_id"`
	Token string `json:"token"`
	TTL   int64  `json:"ttl"` // seconds
}
