package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"timebox/pkg/session"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func lookup(t *testing.T, m *session.Manager, id string) *session.Session {
	t.Helper()
	s, err := m.Lookup(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestCreateThenValidate(t *testing.T) {
	ctx := context.Background()

	for _, d := range []int{1, 10, 60, 24 * 60} {
		store := session.NewMemoryStore()
		m := session.NewManager("alice", store, session.WithClock(newClock().Now))

		id, err := m.CreateSession(ctx, d)
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		ok, err := m.ValidateSession(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok, "duration %d", d)

		s := lookup(t, m, id)
		assert.Equal(t, "alice", s.UserID)
		assert.True(t, s.Active)
		assert.False(t, s.Blocked)
		assert.False(t, s.EmergencyUsed)
		assert.Equal(t, time.Duration(d)*time.Minute, s.EndTime.Sub(s.StartTime))
	}
}

func TestCreateSession_UniqueIDs(t *testing.T) {
	m := session.NewManager("alice", session.NewMemoryStore())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := m.CreateSession(context.Background(), 5)
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestCreateSession_NegativeDuration(t *testing.T) {
	m := session.NewManager("alice", session.NewMemoryStore())

	id, err := m.CreateSession(context.Background(), -1)
	assert.ErrorIs(t, err, session.ErrInvalidDuration)
	assert.Empty(t, id)
}

func TestCreateSession_EmptyUser(t *testing.T) {
	store := session.NewMemoryStore()
	m := session.NewManager("", store)

	id, err := m.CreateSession(context.Background(), 10)
	assert.ErrorIs(t, err, session.ErrMissingID)
	assert.Empty(t, id)

	ok, err := m.ValidateSession(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate_ExpiryBlocksOnce(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := session.NewMemoryStore()
	m := session.NewManager("alice", store, session.WithClock(clock.Now))

	id, err := m.CreateSession(ctx, 10)
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)

	ok, err := m.ValidateSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	s := lookup(t, m, id)
	assert.True(t, s.Blocked)
	assert.False(t, s.Active)

	for i := 0; i < 3; i++ {
		ok, err = m.ValidateSession(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, s, lookup(t, m, id))
}

func TestValidate_ZeroDuration(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := session.NewManager("alice", session.NewMemoryStore(), session.WithClock(clock.Now))

	id, err := m.CreateSession(ctx, 0)
	require.NoError(t, err)

	clock.Advance(time.Millisecond)

	ok, err := m.ValidateSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, lookup(t, m, id).Blocked)
}

func TestValidate_AtEndTimeStillValid(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := session.NewManager("alice", session.NewMemoryStore(), session.WithClock(clock.Now))

	id, err := m.CreateSession(ctx, 1)
	require.NoError(t, err)

	clock.Advance(time.Minute)

	ok, err := m.ValidateSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidate_NotFound(t *testing.T) {
	m := session.NewManager("alice", session.NewMemoryStore())

	ok, err := m.ValidateSession(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.ValidateSession(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmergency_NotBlocked(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager("alice", session.NewMemoryStore(), session.WithClock(newClock().Now))

	id, err := m.CreateSession(ctx, 10)
	require.NoError(t, err)
	before := lookup(t, m, id)

	ok, err := m.EmergencyAccess(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, lookup(t, m, id))
}

func TestEmergency_NotFound(t *testing.T) {
	m := session.NewManager("alice", session.NewMemoryStore())

	ok, err := m.EmergencyAccess(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmergency_FullScenario(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := session.NewManager("alice", session.NewMemoryStore(), session.WithClock(clock.Now))

	id, err := m.CreateSession(ctx, 10)
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	ok, err := m.ValidateSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, lookup(t, m, id).Blocked)

	ok, err = m.EmergencyAccess(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	s := lookup(t, m, id)
	assert.False(t, s.Blocked)
	assert.True(t, s.Active)
	assert.True(t, s.EmergencyUsed)
	assert.True(t, clock.Now().Add(session.EmergencyGrace).Equal(s.EndTime))

	ok, err = m.ValidateSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	// Override is not renewable while still in the grace window either.
	ok, err = m.EmergencyAccess(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(6 * time.Minute)
	ok, err = m.ValidateSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	s = lookup(t, m, id)
	assert.True(t, s.Blocked)
	assert.False(t, s.Active)
	assert.True(t, s.EmergencyUsed)

	ok, err = m.EmergencyAccess(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.ValidateSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCrossUserIsolation(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := session.NewMemoryStore()
	alice := session.NewManager("alice", store, session.WithClock(clock.Now))
	bob := session.NewManager("bob", store, session.WithClock(clock.Now))

	id, err := alice.CreateSession(ctx, 10)
	require.NoError(t, err)

	ok, err := bob.ValidateSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(11 * time.Minute)

	// bob's check must not fire the expiry transition on alice's record.
	ok, err = bob.ValidateSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, lookup(t, alice, id).Blocked)

	ok, err = alice.ValidateSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = bob.EmergencyAccess(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, lookup(t, alice, id).EmergencyUsed)

	_, err = bob.Lookup(ctx, id)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, bob.Deactivate(ctx, id), session.ErrNotFound)
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := session.NewManager("alice", session.NewMemoryStore(), session.WithClock(clock.Now))

	id, err := m.CreateSession(ctx, 10)
	require.NoError(t, err)

	require.NoError(t, m.Deactivate(ctx, id))
	s := lookup(t, m, id)
	assert.False(t, s.Active)
	assert.False(t, s.Blocked)

	// a paused session can be resumed
	ok, err := m.ValidateSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	applied, err := m.Activate(ctx, id)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, lookup(t, m, id).Active)

	require.NoError(t, m.Deactivate(ctx, id))
	assert.ErrorIs(t, m.Deactivate(ctx, "missing"), session.ErrNotFound)
}

func TestActivate_BlockedStaysInactive(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := session.NewManager("alice", session.NewMemoryStore(), session.WithClock(clock.Now))

	id, err := m.CreateSession(ctx, 1)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	ok, err := m.ValidateSession(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	applied, err := m.Activate(ctx, id)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.False(t, lookup(t, m, id).Active)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Insert(ctx context.Context, s *session.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockStore) FindOne(ctx context.Context, f session.Filter) (*session.Session, error) {
	args := m.Called(ctx, f)
	if s := args.Get(0); s != nil {
		return s.(*session.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) UpdateOne(ctx context.Context, f session.Filter, p session.Patch) (bool, error) {
	args := m.Called(ctx, f, p)
	return args.Bool(0), args.Error(1)
}

func TestManager_StoreFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	clock := newClock()

	t.Run("create", func(t *testing.T) {
		store := new(mockStore)
		store.On("Insert", ctx, mock.AnythingOfType("*session.Session")).Return(boom)

		_, err := session.NewManager("alice", store).CreateSession(ctx, 5)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("validate lookup", func(t *testing.T) {
		store := new(mockStore)
		store.On("FindOne", ctx, mock.Anything).Return(nil, boom)

		ok, err := session.NewManager("alice", store).ValidateSession(ctx, "sid")
		assert.ErrorIs(t, err, boom)
		assert.False(t, ok)
	})

	t.Run("validate block write", func(t *testing.T) {
		store := new(mockStore)
		store.On("FindOne", ctx, mock.Anything).Return(&session.Session{
			UserID:    "alice",
			SessionID: "sid",
			EndTime:   clock.Now().Add(-time.Minute),
			Active:    true,
		}, nil)
		store.On("UpdateOne", ctx, mock.Anything, mock.Anything).Return(false, boom)

		ok, err := session.NewManager("alice", store, session.WithClock(clock.Now)).ValidateSession(ctx, "sid")
		assert.ErrorIs(t, err, boom)
		assert.False(t, ok)
	})

	t.Run("emergency write", func(t *testing.T) {
		store := new(mockStore)
		store.On("FindOne", ctx, mock.Anything).Return(&session.Session{
			UserID:    "alice",
			SessionID: "sid",
			EndTime:   clock.Now().Add(-time.Minute),
			Blocked:   true,
		}, nil)
		store.On("UpdateOne", ctx, mock.Anything, mock.Anything).Return(false, boom)

		ok, err := session.NewManager("alice", store, session.WithClock(clock.Now)).EmergencyAccess(ctx, "sid")
		assert.ErrorIs(t, err, boom)
		assert.False(t, ok)
	})

	t.Run("deactivate", func(t *testing.T) {
		store := new(mockStore)
		store.On("UpdateOne", ctx, mock.Anything, mock.Anything).Return(false, boom)

		err := session.NewManager("alice", store).Deactivate(ctx, "sid")
		assert.ErrorIs(t, err, boom)
	})
}

func TestEmergency_LostRace(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := new(mockStore)
	store.On("FindOne", ctx, mock.Anything).Return(&session.Session{
		UserID:    "alice",
		SessionID: "sid",
		EndTime:   clock.Now().Add(-time.Minute),
		Blocked:   true,
	}, nil)
	store.On("UpdateOne", ctx, mock.MatchedBy(func(f session.Filter) bool {
		return f.UserID == "alice" && f.Blocked != nil && *f.Blocked &&
			f.EmergencyUsed != nil && !*f.EmergencyUsed
	}), mock.Anything).Return(false, nil)

	ok, err := session.NewManager("alice", store, session.WithClock(clock.Now)).EmergencyAccess(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, ok)
	store.AssertExpectations(t)
}
