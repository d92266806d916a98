package session

import (
	"errors"
	"fmt"
	"time"
)

// EmergencyGrace is the one-time window granted by EmergencyAccess.
const EmergencyGrace = 5 * time.Minute

const timeLayout = time.RFC3339Nano

var (
	// ErrNotFound is returned when no session matches both ids.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicate is returned by Insert when the session id is taken.
	ErrDuplicate = errors.New("session already exists")
	// ErrInvalidDuration rejects negative time limits.
	ErrInvalidDuration = errors.New("duration must not be negative")
	// ErrMissingID rejects sessions without a user id or session id.
	ErrMissingID = errors.New("session_id and user_id are required")
)

// Session is one user's time-boxed access window.
type Session struct {
	UserID        string
	SessionID     string
	StartTime     time.Time
	EndTime       time.Time
	Blocked       bool
	EmergencyUsed bool
	Active        bool
}

// Expired reports whether now is past the end of the session window.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.EndTime)
}

// Record is the persisted shape shared by every store.
type Record struct {
	UserID        string `json:"user_id" bson:"user_id"`
	SessionID     string `json:"session_id" bson:"session_id"`
	StartTime     string `json:"start_time" bson:"start_time"`
	EndTime       string `json:"end_time" bson:"end_time"`
	Blocked       bool   `json:"blocked" bson:"blocked"`
	EmergencyUsed bool   `json:"emergency_used" bson:"emergency_used"`
	Active        bool   `json:"active" bson:"active"`
}

// FormatTime renders t in the stored form: RFC 3339 in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func ParseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

func (s *Session) Record() Record {
	return Record{
		UserID:        s.UserID,
		SessionID:     s.SessionID,
		StartTime:     FormatTime(s.StartTime),
		EndTime:       FormatTime(s.EndTime),
		Blocked:       s.Blocked,
		EmergencyUsed: s.EmergencyUsed,
		Active:        s.Active,
	}
}

func (r Record) Session() (*Session, error) {
	start, err := ParseTime(r.StartTime)
	if err != nil {
		return nil, fmt.Errorf("bad start_time %q: %w", r.StartTime, err)
	}
	end, err := ParseTime(r.EndTime)
	if err != nil {
		return nil, fmt.Errorf("bad end_time %q: %w", r.EndTime, err)
	}
	return &Session{
		UserID:        r.UserID,
		SessionID:     r.SessionID,
		StartTime:     start,
		EndTime:       end,
		Blocked:       r.Blocked,
		EmergencyUsed: r.EmergencyUsed,
		Active:        r.Active,
	}, nil
}
