package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timebox/pkg/session"
)

func TestMemoryStore_DuplicateInsert(t *testing.T) {
	store := session.NewMemoryStore()
	s := &session.Session{UserID: "alice", SessionID: "sid", StartTime: time.Now(), EndTime: time.Now()}

	require.NoError(t, store.Insert(context.Background(), s))
	assert.ErrorIs(t, store.Insert(context.Background(), s), session.ErrDuplicate)
}

func TestMemoryStore_InsertRequiresIDs(t *testing.T) {
	store := session.NewMemoryStore()
	now := time.Now()

	tests := []struct {
		name string
		s    *session.Session
	}{
		{name: "No user", s: &session.Session{SessionID: "sid", StartTime: now, EndTime: now}},
		{name: "No session id", s: &session.Session{UserID: "alice", StartTime: now, EndTime: now}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.ErrorIs(t, store.Insert(context.Background(), test.s), session.ErrMissingID)
		})
	}

	_, err := store.FindOne(context.Background(), session.Filter{SessionID: "sid", UserID: "alice"})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemoryStore_ConcurrentEmergency(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := session.NewMemoryStore()
	m := session.NewManager("alice", store, session.WithClock(clock.Now))

	id, err := m.CreateSession(ctx, 1)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	ok, err := m.ValidateSession(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := session.NewManager("alice", store, session.WithClock(clock.Now)).EmergencyAccess(ctx, id)
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
}

func TestMemoryStore_EndTimeGuard(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	end := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, &session.Session{
		UserID: "alice", SessionID: "sid", StartTime: end.Add(-time.Hour), EndTime: end, Active: true,
	}))

	blocked := true
	stale := end.Add(-time.Second)
	applied, err := store.UpdateOne(ctx, session.Filter{SessionID: "sid", UserID: "alice", EndTime: &stale},
		session.Patch{Blocked: &blocked})
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = store.UpdateOne(ctx, session.Filter{SessionID: "sid", UserID: "alice", EndTime: &end},
		session.Patch{Blocked: &blocked})
	require.NoError(t, err)
	assert.True(t, applied)

	_, err = store.FindOne(ctx, session.Filter{SessionID: "sid"})
	assert.Error(t, err)
}
