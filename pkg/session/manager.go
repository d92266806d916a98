package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Manager runs the session state machine for a single user. Every lookup is
// scoped to that user, so a foreign session id behaves as unknown.
type Manager struct {
	userID string
	store  Store
	now    func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(userID string, store Store, opts ...Option) *Manager {
	m := &Manager{
		userID: userID,
		store:  store,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) UserID() string {
	return m.userID
}

func (m *Manager) CreateSession(ctx context.Context, durationMinutes int) (string, error) {
	if m.userID == "" {
		return "", ErrMissingID
	}
	if durationMinutes < 0 {
		return "", ErrInvalidDuration
	}

	now := m.now()
	s := &Session{
		UserID:    m.userID,
		SessionID: uuid.NewString(),
		StartTime: now,
		EndTime:   now.Add(time.Duration(durationMinutes) * time.Minute),
		Active:    true,
	}

	if err := m.store.Insert(ctx, s); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return s.SessionID, nil
}

// ValidateSession reports whether the session is usable right now. The first
// check past end_time blocks the record; a block stays until EmergencyAccess.
func (m *Manager) ValidateSession(ctx context.Context, sessionID string) (bool, error) {
	s, err := m.find(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if s.Blocked {
		return false, nil
	}

	if s.Expired(m.now()) {
		// Guarded on the end_time we read: a concurrent emergency reset wins.
		_, err := m.store.UpdateOne(ctx, Filter{
			SessionID: s.SessionID,
			UserID:    m.userID,
			Blocked:   boolPtr(false),
			EndTime:   timePtr(s.EndTime),
		}, Patch{
			Blocked: boolPtr(true),
			Active:  boolPtr(false),
		})
		if err != nil {
			return false, fmt.Errorf("block session: %w", err)
		}
		return false, nil
	}

	return true, nil
}

// EmergencyAccess reopens a blocked session for EmergencyGrace, once.
// Unknown, unblocked and exhausted sessions all return false.
func (m *Manager) EmergencyAccess(ctx context.Context, sessionID string) (bool, error) {
	s, err := m.find(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !s.Blocked || s.EmergencyUsed {
		return false, nil
	}

	applied, err := m.store.UpdateOne(ctx, Filter{
		SessionID:     s.SessionID,
		UserID:        m.userID,
		Blocked:       boolPtr(true),
		EmergencyUsed: boolPtr(false),
	}, Patch{
		EndTime:       timePtr(m.now().Add(EmergencyGrace)),
		Blocked:       boolPtr(false),
		EmergencyUsed: boolPtr(true),
		Active:        boolPtr(true),
	})
	if err != nil {
		return false, fmt.Errorf("emergency access: %w", err)
	}
	return applied, nil
}

// Deactivate marks the session inactive on a controlled shutdown. The blocked
// flag is left as is.
func (m *Manager) Deactivate(ctx context.Context, sessionID string) error {
	if sessionID == "" || m.userID == "" {
		return ErrNotFound
	}
	applied, err := m.store.UpdateOne(ctx, Filter{
		SessionID: sessionID,
		UserID:    m.userID,
	}, Patch{
		Active: boolPtr(false),
	})
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	if !applied {
		return ErrNotFound
	}
	return nil
}

// Activate marks a resumed session live again. A blocked session is left
// untouched and false is returned.
func (m *Manager) Activate(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" || m.userID == "" {
		return false, nil
	}
	applied, err := m.store.UpdateOne(ctx, Filter{
		SessionID: sessionID,
		UserID:    m.userID,
		Blocked:   boolPtr(false),
	}, Patch{
		Active: boolPtr(true),
	})
	if err != nil {
		return false, fmt.Errorf("activate session: %w", err)
	}
	return applied, nil
}

func (m *Manager) Lookup(ctx context.Context, sessionID string) (*Session, error) {
	return m.find(ctx, sessionID)
}

func (m *Manager) find(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" || m.userID == "" {
		return nil, ErrNotFound
	}
	s, err := m.store.FindOne(ctx, Filter{SessionID: sessionID, UserID: m.userID})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}
