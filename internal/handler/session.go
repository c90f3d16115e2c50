package handler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"linklearn-realtime/internal/cache"
	"linklearn-realtime/internal/config"
	"linklearn-realtime/internal/model"
	"linklearn-realtime/internal/presence"
)

// SessionHandler serves the HTTP side of a tutoring session: batched
// state saves, the teaching timer, chat backlog and session end.
type SessionHandler struct {
	db       *gorm.DB
	cache    *cache.Client
	hub      *SessionWSHandler
	presence *presence.Manager
	cfg      config.SessionConfig
}

// NewSessionHandler creates the session HTTP handler.
func NewSessionHandler(db *gorm.DB, cacheClient *cache.Client, hub *SessionWSHandler, presenceManager *presence.Manager, cfg config.SessionConfig) *SessionHandler {
	return &SessionHandler{db: db, cache: cacheClient, hub: hub, presence: presenceManager, cfg: cfg}
}

// SaveStateRequest carries a partial state update. Nil fields are left
// untouched so the whiteboard and IDE can flush independently.
type SaveStateRequest struct {
	Whiteboard  *string `json:"whiteboard"`
	IdeCode     *string `json:"ide_code"`
	IdeLanguage *string `json:"ide_language"`
}

// SessionStateResponse is the persisted state a rejoining client
// restores from.
type SessionStateResponse struct {
	Whiteboard      string `json:"whiteboard"`
	IdeCode         string `json:"ide_code"`
	IdeLanguage     string `json:"ide_language"`
	TimerRunning    bool   `json:"timer_running"`
	TimerStartedAt  string `json:"timer_started_at,omitempty"`
	TeachingSeconds int64  `json:"teaching_seconds"`
	User1Online     bool   `json:"user1_online"`
	User2Online     bool   `json:"user2_online"`
}

func (h *SessionHandler) loadSession(c *fiber.Ctx) (*model.Session, error) {
	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid session id",
		})
	}

	var session model.Session
	if err := h.db.Preload("Timers").First(&session, sessionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "session not found",
			})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load session",
		})
	}
	return &session, nil
}

// SaveState applies a partial whiteboard/IDE state update.
// POST /session/:id/save-state/
func (h *SessionHandler) SaveState(c *fiber.Ctx) error {
	session, err := h.loadSession(c)
	if session == nil {
		return err
	}

	var req SaveStateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	updates := map[string]any{}
	if req.Whiteboard != nil {
		updates["whiteboard_state"] = *req.Whiteboard
	}
	if req.IdeCode != nil {
		updates["ide_code"] = *req.IdeCode
	}
	if req.IdeLanguage != nil {
		updates["ide_language"] = *req.IdeLanguage
	}

	if len(updates) > 0 {
		if err := h.db.Model(session).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to save state",
			})
		}
	}

	return c.JSON(fiber.Map{"success": true})
}

// GetState returns the persisted session state for a rejoining client.
// GET /session/:id/state/
func (h *SessionHandler) GetState(c *fiber.Ctx) error {
	session, err := h.loadSession(c)
	if session == nil {
		return err
	}

	resp := SessionStateResponse{
		Whiteboard:  session.WhiteboardState,
		IdeCode:     session.IdeCode,
		IdeLanguage: session.IdeLanguage,
	}
	// An explicit user_id narrows the total to that participant's
	// teaching segments; without one the session-wide total is
	// reported.
	userID := int64(c.QueryInt("user_id", 0))
	if userID > 0 {
		resp.TeachingSeconds = session.TeachingSeconds(userID)
	}
	for i := range session.Timers {
		t := &session.Timers[i]
		if userID <= 0 {
			resp.TeachingSeconds += t.DurationSeconds
		}
		if t.IsRunning() {
			resp.TimerRunning = true
			resp.TimerStartedAt = t.StartTime.UTC().Format(time.RFC3339)
		}
	}

	if h.presence != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if online, err := h.presence.IsPresent(ctx, session.ID, session.User1ID); err == nil {
			resp.User1Online = online
		}
		if online, err := h.presence.IsPresent(ctx, session.ID, session.User2ID); err == nil {
			resp.User2Online = online
		}
	}

	return c.JSON(resp)
}

// StartTimer opens a new teaching segment. A segment already running
// is stopped and folded first so at most one runs per session.
// POST /session/:id/start-timer/
func (h *SessionHandler) StartTimer(c *fiber.Ctx) error {
	session, err := h.loadSession(c)
	if session == nil {
		return err
	}
	if !session.IsActive {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session has ended",
		})
	}

	var req struct {
		TeacherID int64 `json:"teacher_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.TeacherID == 0 {
		// Default to the first participant when the client sends no
		// explicit teacher, matching single-teacher sessions.
		req.TeacherID = session.User1ID
	}

	now := time.Now()
	for i := range session.Timers {
		t := &session.Timers[i]
		if t.IsRunning() {
			t.Stop(now)
			if err := h.db.Save(t).Error; err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "failed to close previous timer",
				})
			}
		}
	}

	timer := model.SessionTimer{
		SessionID: session.ID,
		TeacherID: req.TeacherID,
		StartTime: now,
	}
	if err := h.db.Create(&timer).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to start timer",
		})
	}

	var teacher model.User
	teacherName := ""
	if err := h.db.First(&teacher, req.TeacherID).Error; err == nil {
		teacherName = teacher.Name
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"timer_id": timer.ID,
		"teacher":  teacherName,
	})
}

// StopTimer closes the running segment and returns its duration.
// POST /session/:id/stop-timer/
func (h *SessionHandler) StopTimer(c *fiber.Ctx) error {
	session, err := h.loadSession(c)
	if session == nil {
		return err
	}

	now := time.Now()
	for i := range session.Timers {
		t := &session.Timers[i]
		if !t.IsRunning() {
			continue
		}
		t.Stop(now)
		if err := h.db.Save(t).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to stop timer",
			})
		}
		return c.JSON(fiber.Map{
			"success":  true,
			"duration": t.DurationSeconds,
		})
	}

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "no timer is running",
	})
}

// EndSession marks the session finished, closes any running timer and
// pushes the end notification to both connected clients.
// POST /session/:id/end/
func (h *SessionHandler) EndSession(c *fiber.Ctx) error {
	session, err := h.loadSession(c)
	if session == nil {
		return err
	}
	if !session.IsActive {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session has already ended",
		})
	}

	now := time.Now()
	for i := range session.Timers {
		t := &session.Timers[i]
		if t.IsRunning() {
			t.Stop(now)
			if err := h.db.Save(t).Error; err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "failed to stop timer",
				})
			}
		}
	}

	if err := h.db.Model(session).Updates(map[string]any{
		"is_active": false,
		"end_time":  now,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to end session",
		})
	}

	redirect := fmt.Sprintf(h.cfg.ReviewPathFormat, session.ID)
	if h.hub != nil {
		h.hub.NotifySessionEnded(session.ID, redirect)
	}

	log.Printf("[Session %d] Ended, redirecting participants to %s", session.ID, redirect)

	return c.JSON(fiber.Map{
		"success":  true,
		"redirect": redirect,
	})
}

// ChatBacklogMessage is one entry in the backlog response.
type ChatBacklogMessage struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	SenderID  int64  `json:"sender_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ChatBacklog returns the session's chat history in send order, from
// the redis cache when warm and the database otherwise.
// GET /chat/session/:id/
func (h *SessionHandler) ChatBacklog(c *fiber.Ctx) error {
	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid session id",
		})
	}

	if h.cache != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		cached, err := h.cache.GetChatMessages(ctx, int64(sessionID))
		cancel()
		if err == nil && len(cached) > 0 {
			messages := make([]ChatBacklogMessage, len(cached))
			for i, m := range cached {
				messages[i] = ChatBacklogMessage{
					ID:        m.ID,
					Sender:    m.Sender,
					SenderID:  m.SenderID,
					Content:   m.Content,
					Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
				}
			}
			return c.JSON(fiber.Map{"messages": messages})
		}
	}

	var rows []model.ChatMessage
	if err := h.db.
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load chat history",
		})
	}

	messages := make([]ChatBacklogMessage, len(rows))
	for i, m := range rows {
		messages[i] = ChatBacklogMessage{
			ID:        m.ID,
			Sender:    m.SenderName,
			SenderID:  m.SenderID,
			Content:   m.Content,
			Timestamp: m.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return c.JSON(fiber.Map{"messages": messages})
}
