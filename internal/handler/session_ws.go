package handler

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"gorm.io/gorm"

	"linklearn-realtime/internal/cache"
	"linklearn-realtime/internal/model"
	"linklearn-realtime/internal/presence"
)

// SessionWSHandler relays realtime frames between the two participants
// of a tutoring session.
type SessionWSHandler struct {
	db           *gorm.DB
	cache        *cache.Client
	presence     *presence.Manager
	writeTimeout time.Duration
	rooms        map[int64]*SessionRoom
	mu           sync.RWMutex
}

// SessionRoom holds the live connections of one session.
type SessionRoom struct {
	clients      map[*websocket.Conn]*SessionClient
	writeTimeout time.Duration
	mu           sync.RWMutex
}

// SessionClient is one connected participant.
type SessionClient struct {
	UserID  int64
	Name    string
	Conn    *websocket.Conn
	writeMu sync.Mutex
}

// chatFrame is the shape broadcast back for an incoming chat message.
type chatFrame struct {
	Type     string `json:"type"`
	Sender   string `json:"sender"`
	SenderID int64  `json:"sender_id"`
	Content  string `json:"content"`
}

// inboundChat is the client-sent chat shape.
type inboundChat struct {
	Content string `json:"content"`
}

// NewSessionWSHandler creates the relay handler. presenceManager may
// be nil when redis is unavailable. writeTimeout bounds each relay
// write so one stalled participant cannot wedge the broadcast loop.
func NewSessionWSHandler(db *gorm.DB, cacheClient *cache.Client, presenceManager *presence.Manager, writeTimeout time.Duration) *SessionWSHandler {
	return &SessionWSHandler{
		db:           db,
		cache:        cacheClient,
		presence:     presenceManager,
		writeTimeout: writeTimeout,
		rooms:        make(map[int64]*SessionRoom),
	}
}

func (h *SessionWSHandler) getOrCreateRoom(sessionID int64) *SessionRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[sessionID]; ok {
		return room
	}

	room := &SessionRoom{
		clients:      make(map[*websocket.Conn]*SessionClient),
		writeTimeout: h.writeTimeout,
	}
	h.rooms[sessionID] = room
	log.Printf("[SessionWS] Created room for session %d", sessionID)
	return room
}

func (h *SessionWSHandler) removeRoomIfEmpty(sessionID int64, room *SessionRoom) {
	room.mu.RLock()
	empty := len(room.clients) == 0
	room.mu.RUnlock()
	if !empty {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.rooms[sessionID]; ok && current == room {
		delete(h.rooms, sessionID)
		log.Printf("[SessionWS] Removed empty room for session %d", sessionID)
	}
}

// HandleWebSocket runs the read loop for one participant connection.
func (h *SessionWSHandler) HandleWebSocket(c *websocket.Conn) {
	sessionID, ok1 := c.Locals("sessionId").(int64)
	userID, ok2 := c.Locals("userId").(int64)
	name, ok3 := c.Locals("name").(string)

	if !ok1 || !ok2 || !ok3 {
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"invalid session"}`))
		c.Close()
		return
	}

	room := h.getOrCreateRoom(sessionID)

	client := &SessionClient{
		UserID: userID,
		Name:   name,
		Conn:   c,
	}

	room.mu.Lock()
	room.clients[c] = client
	room.mu.Unlock()

	log.Printf("[SessionWS] Client connected: session=%d, user=%d (%s)", sessionID, userID, name)

	if h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := h.presence.SetPresent(ctx, sessionID, userID, name); err != nil {
			log.Printf("[SessionWS] Failed to mark presence: %v", err)
		}
		cancel()
	}

	defer func() {
		room.mu.Lock()
		delete(room.clients, c)
		room.mu.Unlock()
		c.Close()
		if h.presence != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := h.presence.Remove(ctx, sessionID, userID); err != nil {
				log.Printf("[SessionWS] Failed to clear presence: %v", err)
			}
			cancel()
		}
		log.Printf("[SessionWS] Client disconnected: session=%d, user=%d", sessionID, userID)
		h.removeRoomIfEmpty(sessionID, room)
	}()

	lastBeat := time.Now()
	for {
		_, frame, err := c.ReadMessage()
		if err != nil {
			break
		}

		if h.presence != nil && time.Since(lastBeat) > 20*time.Second {
			lastBeat = time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := h.presence.Heartbeat(ctx, sessionID, userID); err != nil {
				log.Printf("[SessionWS] Heartbeat failed: %v", err)
			}
			cancel()
		}

		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(frame, &probe); err != nil || probe.Type == "" {
			continue
		}

		switch probe.Type {
		case "chat":
			h.handleChat(room, client, sessionID, frame)
		case "timer":
			// Timer actions are visible to both participants, the
			// sender included, so its display restarts from the
			// relayed frame too.
			room.broadcastAll(frame)
		case "whiteboard", "code_change", "video_signal":
			// The sender already applied its own change locally.
			room.broadcastExcept(client, frame)
		default:
			log.Printf("[SessionWS] Ignoring unknown frame type %q from user %d", probe.Type, userID)
		}
	}
}

// handleChat persists the message and re-emits it to everyone with the
// sender identity attached.
func (h *SessionWSHandler) handleChat(room *SessionRoom, client *SessionClient, sessionID int64, frame []byte) {
	var in inboundChat
	if err := json.Unmarshal(frame, &in); err != nil || in.Content == "" {
		return
	}

	msg := model.ChatMessage{
		SessionID:  sessionID,
		SenderID:   client.UserID,
		SenderName: client.Name,
		Content:    in.Content,
	}
	if err := h.db.Create(&msg).Error; err != nil {
		log.Printf("[SessionWS] Failed to persist chat message: %v", err)
		return
	}

	if h.cache != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			cached := cache.CachedChatMessage{
				ID:        msg.ID,
				Sender:    client.Name,
				SenderID:  client.UserID,
				Content:   in.Content,
				Timestamp: msg.CreatedAt,
			}
			if err := h.cache.AddChatMessage(ctx, sessionID, cached); err != nil {
				log.Printf("[SessionWS] Failed to cache chat message: %v", err)
			}
		}()
	}

	out, err := json.Marshal(chatFrame{
		Type:     "chat",
		Sender:   client.Name,
		SenderID: client.UserID,
		Content:  in.Content,
	})
	if err != nil {
		return
	}
	room.broadcastAll(out)
}

// NotifySessionEnded pushes the end-of-session frame to every
// connected participant. Called from the HTTP end handler.
func (h *SessionWSHandler) NotifySessionEnded(sessionID int64, redirectURL string) {
	h.mu.RLock()
	room, ok := h.rooms[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	frame, err := json.Marshal(map[string]string{
		"type":         "session_ended",
		"redirect_url": redirectURL,
	})
	if err != nil {
		return
	}
	room.broadcastAll(frame)
}

func (r *SessionRoom) broadcastAll(frame []byte) {
	r.broadcastExcept(nil, frame)
}

func (r *SessionRoom) broadcastExcept(skip *SessionClient, frame []byte) {
	r.mu.RLock()
	clients := make([]*SessionClient, 0, len(r.clients))
	for _, client := range r.clients {
		if client == skip {
			continue
		}
		clients = append(clients, client)
	}
	r.mu.RUnlock()

	for _, client := range clients {
		client.writeMu.Lock()
		if r.writeTimeout > 0 {
			client.Conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
		}
		err := client.Conn.WriteMessage(websocket.TextMessage, frame)
		client.writeMu.Unlock()
		if err != nil {
			log.Printf("[SessionWS] Failed to send to user %d: %v", client.UserID, err)
		}
	}
}
