package judging

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockContentionAndExpiry(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "fintech")
	f.judge(t, "alice", 5)
	f.judge(t, "bob", 5)

	first, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice", DurationMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, LockReview, first.LockType)
	assert.Equal(t, t0.Add(60*time.Minute), first.ExpiresAt)

	f.clock.Advance(10 * time.Minute)
	_, err = f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "bob"})
	require.ErrorIs(t, err, ErrAlreadyLocked)
	var lockErr *Error
	require.ErrorAs(t, err, &lockErr)
	require.NotNil(t, lockErr.Holder)
	assert.Equal(t, "alice", lockErr.Holder.JudgeID)
	assert.Equal(t, int64(50*60), lockErr.Holder.RemainingSeconds)
	assert.Equal(t, KindConflict, KindOf(err))

	f.clock.Advance(51 * time.Minute)
	second, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "bob"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "bob", second.JudgeID)

	history, err := f.Locks.History(f.ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].IsActive)
	assert.Equal(t, ReleaseExpired, history[0].ReleaseReason)
	assert.True(t, history[1].IsActive)
}

func TestAcquireBySameJudgeRenews(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)

	first, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice", DurationMinutes: 30})
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	again, err := f.Locks.Acquire(f.ctx, AcquireLock{
		ApplicationID: "app-1", JudgeID: "alice", LockType: LockScoring, SessionID: "tab-2", DurationMinutes: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, LockScoring, again.LockType)
	assert.Equal(t, "tab-2", again.SessionID)
	assert.Equal(t, t0.Add(70*time.Minute), again.ExpiresAt)
	assert.Equal(t, t0.Add(10*time.Minute), again.LastActivity)

	history, err := f.Locks.History(f.ctx, "app-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAcquireValidation(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)

	_, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice", LockType: "peek"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice", DurationMinutes: 241})
	require.ErrorIs(t, err, ErrInvalidInput)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "duration_minutes", e.Field)

	_, err = f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "missing", JudgeID: "alice"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.Judges.Deactivate(f.ctx, "alice", "admin")
	require.NoError(t, err)
	_, err = f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice"})
	require.ErrorIs(t, err, ErrJudgeInactive)
}

func TestAcquireUsesDefaultDuration(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)

	l, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(60*time.Minute), l.ExpiresAt)
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	judges := []string{"j1", "j2", "j3", "j4", "j5", "j6", "j7", "j8"}
	for _, id := range judges {
		f.judge(t, id, 5)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		rejected int
	)
	for _, id := range judges {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: id})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case CodeOf(err) == CodeAlreadyLocked:
				rejected++
			default:
				t.Errorf("unexpected error for %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, len(judges)-1, rejected)

	history, err := f.Locks.History(f.ctx, "app-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestReleaseOwnership(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)
	f.judge(t, "bob", 5)

	_, err := f.Locks.Release(f.ctx, "app-1", "alice")
	require.ErrorIs(t, err, ErrLockNotFound)

	_, err = f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice"})
	require.NoError(t, err)

	_, err = f.Locks.Release(f.ctx, "app-1", "bob")
	require.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	f.clock.Advance(5 * time.Minute)
	released, err := f.Locks.Release(f.ctx, "app-1", "alice")
	require.NoError(t, err)
	assert.False(t, released.IsActive)
	assert.Equal(t, ReleaseReleased, released.ReleaseReason)
	require.NotNil(t, released.ReleasedAt)
	assert.Equal(t, t0.Add(5*time.Minute), *released.ReleasedAt)

	st, err := f.Locks.CheckStatus(f.ctx, "app-1")
	require.NoError(t, err)
	assert.False(t, st.Locked)

	_, err = f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "bob"})
	require.NoError(t, err)
}

func TestCheckStatus(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)

	st, err := f.Locks.CheckStatus(f.ctx, "app-1")
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Nil(t, st.Lock)

	_, err = f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice", DurationMinutes: 30})
	require.NoError(t, err)

	f.clock.Advance(15 * time.Minute)
	st, err = f.Locks.CheckStatus(f.ctx, "app-1")
	require.NoError(t, err)
	require.True(t, st.Locked)
	assert.Equal(t, "alice", st.Lock.JudgeID)
	assert.Equal(t, int64(15*60), st.RemainingSeconds)
	assert.Equal(t, 15.0, st.RemainingMinutes)

	f.clock.Advance(16 * time.Minute)
	st, err = f.Locks.CheckStatus(f.ctx, "app-1")
	require.NoError(t, err)
	assert.False(t, st.Locked)

	history, err := f.Locks.History(f.ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].IsActive)
	assert.Equal(t, ReleaseExpired, history[0].ReleaseReason)
}

func TestExtendIsCapped(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)
	f.judge(t, "bob", 5)

	_, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice", DurationMinutes: 60})
	require.NoError(t, err)

	_, err = f.Locks.Extend(f.ctx, "app-1", "alice", 0)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.Locks.Extend(f.ctx, "app-1", "bob", 30)
	require.ErrorIs(t, err, ErrNotOwner)

	l, err := f.Locks.Extend(f.ctx, "app-1", "alice", 30)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(90*time.Minute), l.ExpiresAt)

	f.clock.Advance(10 * time.Minute)
	l, err = f.Locks.Extend(f.ctx, "app-1", "alice", 200)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(250*time.Minute), l.ExpiresAt)
	assert.Equal(t, t0.Add(10*time.Minute), l.LastActivity)
}

func TestExtendAfterExpiry(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)

	_, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice", DurationMinutes: 5})
	require.NoError(t, err)
	f.clock.Advance(6 * time.Minute)

	_, err = f.Locks.Extend(f.ctx, "app-1", "alice", 10)
	require.ErrorIs(t, err, ErrLockNotFound)

	history, err := f.Locks.History(f.ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ReleaseExpired, history[0].ReleaseReason)
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)

	l, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice", DurationMinutes: 30})
	require.NoError(t, err)

	f.clock.Advance(7 * time.Minute)
	hb, err := f.Locks.Heartbeat(f.ctx, "app-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(7*time.Minute), hb.LastActivity)
	assert.Equal(t, l.ExpiresAt, hb.ExpiresAt)
}

func TestCleanupExpired(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"app-1", "app-2", "app-3"} {
		f.app(t, id, "")
	}
	f.judge(t, "alice", 5)

	for _, tc := range []struct {
		app string
		min int
	}{{"app-1", 10}, {"app-2", 20}, {"app-3", 120}} {
		_, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: tc.app, JudgeID: "alice", DurationMinutes: tc.min})
		require.NoError(t, err)
	}

	f.clock.Advance(30 * time.Minute)
	n, err := f.Locks.CleanupExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.Locks.CleanupExpired(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	history, err := f.Locks.History(f.ctx, "app-2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ReleaseSwept, history[0].ReleaseReason)

	st, err := f.Locks.CheckStatus(f.ctx, "app-3")
	require.NoError(t, err)
	assert.True(t, st.Locked)
}

func TestLockExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)
	f.judge(t, "bob", 5)

	_, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice", DurationMinutes: 10})
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	_, err = f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "bob"})
	require.ErrorIs(t, err, ErrAlreadyLocked, "a lease is live through its expiry second")

	f.clock.Advance(time.Second)
	_, err = f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "bob"})
	require.NoError(t, err)
}
