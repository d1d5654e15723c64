// Package embr provides a client for the embr ephemeral chat room API.
package embr

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is an embr API client. Token is set by CreateRoom or by the caller
// when joining an existing room.
type Client struct {
	BaseURL    string
	RoomID     string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new embr client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Join obtains a participant token for an existing room and stores it on
// the client.
func (c *Client) Join(ctx context.Context, roomID string) error {
	var resp struct {
		RoomID string `json:"room_id"`
		Token  string `json:"token"`
	}
	path := fmt.Sprintf("/room/%s/join", roomID)
	if err := c.do(ctx, http.MethodPost, path, nil, http.StatusOK, &resp); err != nil {
		return err
	}
	c.RoomID = resp.RoomID
	c.Token = resp.Token
	return nil
}

// Room is the create-room response.
type Room struct {
	ID    string `json:"room_id"`
	Token string `json:"token"`
	TTL   int64  `json:"ttl"`
}

// Message is a chat message. Token is present only on the caller's own
// messages.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	RoomID    string `json:"roomId"`
	Token     string `json:"token,omitempty"`
}

// Event is a live room event: "chat.message" with a Message payload, or
// "destroy.isDestroyed" when the room is torn down.
type Event struct {
	Type    string
	Message *Message // set for chat.message
}

type apiError struct {
	Error string `json:"error"`
}

// CreateRoom creates a room and stores its id and token on the client.
func (c *Client) CreateRoom(ctx context.Context) (*Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodPost, "/room", nil, http.StatusCreated, &room); err != nil {
		return nil, err
	}
	c.RoomID = room.ID
	c.Token = room.Token
	return &room, nil
}

// TTL returns the room's remaining lifetime in seconds.
func (c *Client) TTL(ctx context.Context) (int64, error) {
	var resp struct {
		TTL int64 `json:"ttl"`
	}
	path := fmt.Sprintf("/room/%s/ttl", c.RoomID)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return 0, err
	}
	return resp.TTL, nil
}

// PostMessage posts a message to the room.
func (c *Client) PostMessage(ctx context.Context, sender, text string) error {
	body := map[string]string{"sender": sender, "text": text}
	path := fmt.Sprintf("/room/%s/messages", c.RoomID)
	return c.do(ctx, http.MethodPost, path, body, http.StatusCreated, nil)
}

// ListMessages returns the room's history in insertion order.
func (c *Client) ListMessages(ctx context.Context) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	path := fmt.Sprintf("/room/%s/messages", c.RoomID)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DestroyRoom destroys the room early.
func (c *Client) DestroyRoom(ctx context.Context) error {
	path := fmt.Sprintf("/room/%s/", c.RoomID)
	return c.do(ctx, http.MethodDelete, path, nil, http.StatusNoContent, nil)
}

// Subscribe streams live room events until ctx is cancelled or the room is
// destroyed.
func (c *Client) Subscribe(ctx context.Context) (<-chan Event, error) {
	url := fmt.Sprintf("%s/room/%s/events?token=%s", c.BaseURL, c.RoomID, c.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout on the streaming request; ctx bounds it.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		readEvents(resp.Body, out)
	}()
	return out, nil
}

// readEvents parses the SSE stream into Events.
func readEvents(r io.Reader, out chan<- Event) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)

	var eventType string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			ev := Event{Type: eventType}
			if eventType == "chat.message" {
				var msg Message
				if err := json.Unmarshal([]byte(data), &msg); err != nil {
					continue
				}
				ev.Message = &msg
			}
			out <- ev
			if eventType == "destroy.isDestroyed" {
				return
			}
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, wantStatus int, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("X-Room-Token", c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return decodeError(resp)
	}
	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
	}
	return fmt.Errorf("unexpected status %s", resp.Status)
}
