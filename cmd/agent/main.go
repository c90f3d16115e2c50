package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"linklearn-realtime/internal/engine"
)

// A headless session participant. It joins a session over the relay,
// mirrors the shared whiteboard and editor state, prints incoming chat
// and forwards stdin lines as chat messages.
func main() {
	var (
		serverURL = flag.String("server", envOr("LINKLEARN_SERVER", "http://localhost:8080"), "API base URL")
		wsURL     = flag.String("ws", envOr("LINKLEARN_WS", "ws://localhost:8080"), "WebSocket base URL")
		sessionID = flag.Int64("session", 0, "session id to join")
		userID    = flag.Int64("user", 0, "user id")
		name      = flag.String("name", envOr("LINKLEARN_NAME", "agent"), "display name")
	)
	flag.Parse()

	if *sessionID == 0 || *userID == 0 {
		log.Fatal("both -session and -user are required")
	}

	api, err := engine.NewAPIClient(*serverURL, *sessionID)
	if err != nil {
		log.Fatalf("Failed to create API client: %v", err)
	}

	dialURL := fmt.Sprintf("%s/ws/session/%d/?user_id=%d&name=%s",
		strings.TrimRight(*wsURL, "/"), *sessionID, *userID, *name)
	ch, err := engine.DialChannel(dialURL)
	if err != nil {
		log.Fatalf("Failed to connect to session: %v", err)
	}
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(engine.Config{
		SessionID: *sessionID,
		UserID:    *userID,
		UserName:  *name,
		OnChat: func(msg engine.ChatIn) {
			fmt.Printf("[%s] %s\n", msg.Sender, msg.Content)
		},
		OnSessionEnded: func(redirectURL string) {
			log.Printf("Session ended, review at %s", redirectURL)
			cancel()
		},
		OnTimerDisplay: func(formatted string) {
			fmt.Printf("\r⏱ %s", formatted)
		},
		OnAlert: func(message string) {
			log.Printf("Alert: %s", message)
		},
	}, ch, api)

	// Replay the chat history before going live.
	backlog, err := eng.LoadChatBacklog(ctx)
	if err != nil {
		log.Printf("Failed to load chat history: %v", err)
	}
	for _, msg := range backlog {
		fmt.Printf("[%s] %s\n", msg.Sender, msg.Content)
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			eng.SendChat(scanner.Text())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Leaving session...")
		cancel()
	}()

	log.Printf("Joined session %d as %s", *sessionID, *name)
	eng.Run(ctx)

	// Push any unsaved state before disconnecting.
	if eng.Dirty() {
		if err := eng.FlushState(context.Background()); err != nil {
			log.Printf("Failed to flush state: %v", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
