package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"linklearn-realtime/internal/config"
)

// Client wraps redis for the chat backlog cache.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// CachedChatMessage is the backlog entry stored per session.
type CachedChatMessage struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// New connects to redis and verifies the connection.
func New(cfg config.RedisConfig, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Println("[Cache] Connected to redis")
	return &Client{rdb: rdb, ttl: ttl}, nil
}

func chatKey(sessionID int64) string {
	return fmt.Sprintf("session:%d:chat", sessionID)
}

// AddChatMessage appends a message to the session backlog and refreshes
// the TTL.
func (c *Client) AddChatMessage(ctx context.Context, sessionID int64, msg CachedChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}

	key := chatKey(sessionID)
	pipe := c.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push chat message: %w", err)
	}
	return nil
}

// GetChatMessages returns the full backlog for a session in insertion
// order. An empty slice means a cache miss; the caller falls back to
// the database.
func (c *Client) GetChatMessages(ctx context.Context, sessionID int64) ([]CachedChatMessage, error) {
	items, err := c.rdb.LRange(ctx, chatKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read chat backlog: %w", err)
	}

	messages := make([]CachedChatMessage, 0, len(items))
	for _, item := range items {
		var msg CachedChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			log.Printf("[Cache] Skipping corrupt backlog entry for session %d: %v", sessionID, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Redis exposes the underlying client for collaborators sharing the
// connection, like the presence manager.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Ping verifies the connection, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// DropSession removes the backlog for an ended session.
func (c *Client) DropSession(ctx context.Context, sessionID int64) error {
	return c.rdb.Del(ctx, chatKey(sessionID)).Err()
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
