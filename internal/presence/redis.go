package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// presenceTTL bounds how long a participant counts as present without
// a heartbeat.
const presenceTTL = 60 * time.Second

// Data is the per-participant presence record.
type Data struct {
	UserID        int64  `json:"user_id"`
	SessionID     int64  `json:"session_id"`
	Name          string `json:"name"`
	LastHeartbeat int64  `json:"last_heartbeat"`
}

// Manager tracks which participants are connected to which session.
type Manager struct {
	client *redis.Client
}

// NewManager wraps an existing redis client.
func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

func key(sessionID, userID int64) string {
	return fmt.Sprintf("presence:session:%d:user:%d", sessionID, userID)
}

// SetPresent marks a participant connected to a session.
func (m *Manager) SetPresent(ctx context.Context, sessionID, userID int64, name string) error {
	data := Data{
		UserID:        userID,
		SessionID:     sessionID,
		Name:          name,
		LastHeartbeat: time.Now().Unix(),
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, key(sessionID, userID), jsonData, presenceTTL).Err()
}

// Heartbeat extends a participant's presence TTL.
func (m *Manager) Heartbeat(ctx context.Context, sessionID, userID int64) error {
	ok, err := m.client.Expire(ctx, key(sessionID, userID), presenceTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d not present in session %d", userID, sessionID)
	}
	return nil
}

// Remove clears a participant's presence on disconnect.
func (m *Manager) Remove(ctx context.Context, sessionID, userID int64) error {
	return m.client.Del(ctx, key(sessionID, userID)).Err()
}

// Get returns a participant's presence, or nil when absent.
func (m *Manager) Get(ctx context.Context, sessionID, userID int64) (*Data, error) {
	val, err := m.client.Get(ctx, key(sessionID, userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var data Data
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// IsPresent reports whether a participant currently counts as
// connected.
func (m *Manager) IsPresent(ctx context.Context, sessionID, userID int64) (bool, error) {
	n, err := m.client.Exists(ctx, key(sessionID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
