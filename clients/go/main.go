// Command embr-demo exercises the embr API end to end: create a room, join
// it as a second participant, exchange messages, watch the live stream, and
// destroy the room.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/eldtechnologies/embr/clients/go/embr"
)

func main() {
	baseURL := os.Getenv("EMBR_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	creator := embr.NewClient(baseURL)
	room, err := creator.CreateRoom(ctx)
	if err != nil {
		fatal("create room", err)
	}
	fmt.Printf("room %s (ttl %ds)\n", room.ID, room.TTL)

	guest := embr.NewClient(baseURL)
	if err := guest.Join(ctx, room.ID); err != nil {
		fatal("join room", err)
	}

	events, err := guest.Subscribe(ctx)
	if err != nil {
		fatal("subscribe", err)
	}

	if err := creator.PostMessage(ctx, "alice", "hi"); err != nil {
		fatal("post", err)
	}
	if err := guest.PostMessage(ctx, "bob", "hello back"); err != nil {
		fatal("post", err)
	}

	messages, err := creator.ListMessages(ctx)
	if err != nil {
		fatal("list", err)
	}
	for _, m := range messages {
		mine := ""
		if m.Token != "" {
			mine = " (mine)"
		}
		fmt.Printf("[%s] %s: %s%s\n", time.UnixMilli(m.Timestamp).Format("15:04:05"), m.Sender, m.Text, mine)
	}

	if err := creator.DestroyRoom(ctx); err != nil {
		fatal("destroy", err)
	}

	for ev := range events {
		if ev.Type == "destroy.isDestroyed" {
			fmt.Println("room destroyed")
			break
		}
	}
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
