package model

import (
	"time"
)

// User is a session participant. Accounts, credits and authentication
// live outside this service; only identity and display name are kept
// for attribution.
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// Session is one tutoring session between two users, including the
// persisted whiteboard and IDE state the clients batch-save.
type Session struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	User1ID   int64      `gorm:"not null" json:"user1_id"`
	User2ID   int64      `gorm:"not null" json:"user2_id"`
	StartTime time.Time  `gorm:"autoCreateTime" json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	IsActive  bool       `gorm:"default:true;index" json:"is_active"`

	// State persistence
	WhiteboardState string `gorm:"type:text;default:''" json:"whiteboard_state"`
	IdeCode         string `gorm:"type:text;default:'// Start coding...'" json:"ide_code"`
	IdeLanguage     string `gorm:"type:varchar(50);default:'javascript'" json:"ide_language"`

	// Relations
	Timers []SessionTimer `gorm:"foreignKey:SessionID" json:"timers,omitempty"`
}

func (Session) TableName() string {
	return "sessions"
}

// TeachingSeconds sums the finished timer segments of one teacher.
func (s *Session) TeachingSeconds(teacherID int64) int64 {
	var total int64
	for _, t := range s.Timers {
		if t.TeacherID == teacherID {
			total += t.DurationSeconds
		}
	}
	return total
}

// SessionTimer is one teaching segment within a session. At most one
// timer per session runs at a time; starting a new one stops the
// previous segment first.
type SessionTimer struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID       int64      `gorm:"not null;index" json:"session_id"`
	TeacherID       int64      `gorm:"not null" json:"teacher_id"`
	StartTime       time.Time  `gorm:"autoCreateTime" json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int64      `gorm:"default:0" json:"duration_seconds"`
}

func (SessionTimer) TableName() string {
	return "session_timers"
}

// IsRunning reports whether the segment is still open.
func (t *SessionTimer) IsRunning() bool {
	return t.EndTime == nil
}

// Stop closes the segment and folds the elapsed seconds into
// DurationSeconds. Stopping a stopped timer is a no-op.
func (t *SessionTimer) Stop(now time.Time) {
	if t.EndTime != nil {
		return
	}
	end := now
	t.EndTime = &end
	elapsed := int64(end.Sub(t.StartTime) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	t.DurationSeconds = elapsed
}

// ChatMessage is one persisted chat line within a session. SenderName
// is denormalized so the backlog endpoint needs no join.
type ChatMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  int64     `gorm:"not null;index:idx_session_created" json:"session_id"`
	SenderID   int64     `gorm:"not null" json:"sender_id"`
	SenderName string    `gorm:"type:varchar(100);not null" json:"sender"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index:idx_session_created" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
