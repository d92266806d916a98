package session

import (
	"context"
	"errors"
	"time"
)

// Store persists session records. UpdateOne must apply the patch atomically:
// the filter guards and the write are a single step for concurrent callers.
type Store interface {
	Insert(ctx context.Context, s *Session) error
	FindOne(ctx context.Context, f Filter) (*Session, error)
	UpdateOne(ctx context.Context, f Filter, p Patch) (bool, error)
}

// Filter selects exactly one record of one user. Nil guards are ignored.
type Filter struct {
	SessionID     string
	UserID        string
	Blocked       *bool
	EmergencyUsed *bool
	EndTime       *time.Time
}

type Patch struct {
	EndTime       *time.Time
	Blocked       *bool
	EmergencyUsed *bool
	Active        *bool
}

var errEmptyFilter = errors.New("filter requires session_id and user_id")

func checkIDs(s *Session) error {
	if s.SessionID == "" || s.UserID == "" {
		return ErrMissingID
	}
	return nil
}

func (f Filter) validate() error {
	if f.SessionID == "" || f.UserID == "" {
		return errEmptyFilter
	}
	return nil
}

// Matches compares on the persisted representation so that end_time guards
// behave the same for every store.
func (f Filter) Matches(r Record) bool {
	if r.SessionID != f.SessionID || r.UserID != f.UserID {
		return false
	}
	if f.Blocked != nil && r.Blocked != *f.Blocked {
		return false
	}
	if f.EmergencyUsed != nil && r.EmergencyUsed != *f.EmergencyUsed {
		return false
	}
	if f.EndTime != nil && r.EndTime != FormatTime(*f.EndTime) {
		return false
	}
	return true
}

func (p Patch) Apply(r *Record) {
	if p.EndTime != nil {
		r.EndTime = FormatTime(*p.EndTime)
	}
	if p.Blocked != nil {
		r.Blocked = *p.Blocked
	}
	if p.EmergencyUsed != nil {
		r.EmergencyUsed = *p.EmergencyUsed
	}
	if p.Active != nil {
		r.Active = *p.Active
	}
}

func (p Patch) empty() bool {
	return p.EndTime == nil && p.Blocked == nil && p.EmergencyUsed == nil && p.Active == nil
}

func boolPtr(v bool) *bool { return &v }

func timePtr(t time.Time) *time.Time { return &t }
