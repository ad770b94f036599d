package judging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignRespectsCapacity(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"app-1", "app-2", "app-3"} {
		f.app(t, id, "")
	}
	f.judge(t, "alice", 2)

	f.assign(t, "app-1", "alice")
	f.assign(t, "app-2", "alice")
	_, err := f.Assignments.Assign(f.ctx, "app-3", "alice", 1, "admin")
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, KindValidation, KindOf(err))

	j, err := f.Judges.Get(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, j.AssignedApplicationsCount)
	assert.LessOrEqual(t, j.AssignedApplicationsCount, j.MaxApplicationsPerJudge)
}

func TestAssignRejectsDuplicatesAndInactiveJudges(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)
	f.judge(t, "bob", 5)

	a := f.assign(t, "app-1", "alice")
	assert.Equal(t, StatusAssigned, a.Status)
	assert.Equal(t, 1, a.ScoringRound)
	assert.Equal(t, t0, a.AssignedAt)

	_, err := f.Assignments.Assign(f.ctx, "app-1", "alice", 1, "admin")
	require.ErrorIs(t, err, ErrDuplicateAssignment)

	_, err = f.Judges.Deactivate(f.ctx, "bob", "admin")
	require.NoError(t, err)
	_, err = f.Assignments.Assign(f.ctx, "app-1", "bob", 1, "admin")
	require.ErrorIs(t, err, ErrJudgeInactive)

	_, err = f.Assignments.Assign(f.ctx, "nope", "alice", 1, "admin")
	require.ErrorIs(t, err, ErrNotFound)

	j, err := f.Judges.Get(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, j.AssignedApplicationsCount)
}

func TestReviewStateMachine(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)
	a := f.assign(t, "app-1", "alice")

	_, err := f.Assignments.CompleteReview(f.ctx, a.ID, "alice", "", 0)
	require.ErrorIs(t, err, ErrInvalidTransition)

	f.clock.Advance(time.Minute)
	started, err := f.Assignments.StartReview(f.ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.Equal(t, t0.Add(time.Minute), *started.StartedAt)

	_, err = f.Assignments.StartReview(f.ctx, a.ID, "alice")
	require.ErrorIs(t, err, ErrInvalidTransition)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, StatusUnderReview, e.Status)

	done, err := f.Assignments.CompleteReview(f.ctx, a.ID, "alice", "thorough", 42)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, "thorough", done.ReviewNotes)
	assert.Equal(t, 42, done.TimeSpentMinutes)
	require.NotNil(t, done.CompletedAt)

	_, err = f.Assignments.DeclareConflict(f.ctx, a.ID, "alice", "cousin")
	require.ErrorIs(t, err, ErrCannotDeclareConflictOnCompleted)

	got, err := f.Assignments.Get(f.ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.False(t, got.ConflictDeclared)

	_, err = f.Assignments.Reassign(f.ctx, a.ID, "admin", "second look")
	require.ErrorIs(t, err, ErrCannotReassignCompleted)
}

func TestOtherJudgeCannotSeeAssignment(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)
	f.judge(t, "bob", 5)
	a := f.assign(t, "app-1", "alice")

	_, err := f.Assignments.StartReview(f.ctx, a.ID, "bob")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.Assignments.Get(f.ctx, a.ID, "bob")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := f.Assignments.Get(f.ctx, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, got.Status)
}

func TestConflictAndReassign(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.app(t, "app-2", "")
	f.judge(t, "alice", 2)
	a := f.assign(t, "app-1", "alice")
	f.assign(t, "app-2", "alice")

	_, err := f.Assignments.StartReview(f.ctx, a.ID, "alice")
	require.NoError(t, err)

	c, err := f.Assignments.DeclareConflict(f.ctx, a.ID, "alice", "former employer")
	require.NoError(t, err)
	assert.Equal(t, StatusConflictDeclared, c.Status)
	assert.True(t, c.ConflictDeclared)
	assert.Equal(t, "former employer", c.ConflictReason)

	_, err = f.Assignments.DeclareConflict(f.ctx, a.ID, "alice", "again")
	require.ErrorIs(t, err, ErrInvalidTransition)

	j, err := f.Judges.Get(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, j.AssignedApplicationsCount)

	f.clock.Advance(time.Hour)
	r, err := f.Assignments.Reassign(f.ctx, a.ID, "admin", "conflict withdrawn")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, r.Status)
	assert.False(t, r.ConflictDeclared)
	assert.Empty(t, r.ConflictReason)
	assert.Nil(t, r.StartedAt)
	assert.Equal(t, t0.Add(time.Hour), r.AssignedAt)
	assert.Equal(t, "admin", r.ReassignedBy)
	assert.Equal(t, "conflict withdrawn", r.ReassignmentReason)
	require.NotNil(t, r.ReassignedAt)

	j, err = f.Judges.Get(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, j.AssignedApplicationsCount)

	events, err := f.Audit.ForKey(f.ctx, a.ID)
	require.NoError(t, err)
	types := []string{}
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		"assignment.created", "assignment.started", "assignment.conflict_declared", "assignment.reassigned",
	}, types)
	assert.Equal(t, "admin", events[3].Actor)
}

func TestReassignOutOfConflictNeedsCapacity(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.app(t, "app-2", "")
	f.judge(t, "alice", 1)
	a := f.assign(t, "app-1", "alice")

	_, err := f.Assignments.DeclareConflict(f.ctx, a.ID, "alice", "")
	require.NoError(t, err)
	f.assign(t, "app-2", "alice")

	_, err = f.Assignments.Reassign(f.ctx, a.ID, "admin", "")
	require.ErrorIs(t, err, ErrCapacityExceeded)

	got, err := f.Assignments.Get(f.ctx, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusConflictDeclared, got.Status)
}

func TestFindAssignments(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"app-1", "app-2", "app-3"} {
		f.app(t, id, "")
	}
	f.judge(t, "alice", 5)
	f.judge(t, "bob", 5)

	a1 := f.assign(t, "app-1", "alice")
	f.assign(t, "app-2", "alice")
	f.assign(t, "app-1", "bob")

	_, err := f.Assignments.StartReview(f.ctx, a1.ID, "alice")
	require.NoError(t, err)
	_, err = f.Assignments.CompleteReview(f.ctx, a1.ID, "alice", "", 10)
	require.NoError(t, err)

	byJudge, err := f.Assignments.FindByJudge(f.ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, byJudge, 2)

	byApp, err := f.Assignments.FindByApplication(f.ctx, "app-1")
	require.NoError(t, err)
	assert.Len(t, byApp, 2)

	pending, err := f.Assignments.FindPending(f.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "app-2", pending[0].ApplicationID)

	completed, err := f.Assignments.FindCompleted(f.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, a1.ID, completed[0].ID)

	none, err := f.Assignments.FindByJudge(f.ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStartReviewHonoursAnotherJudgesLease(t *testing.T) {
	f := newFixture(t)
	f.app(t, "app-1", "")
	f.judge(t, "alice", 5)
	f.judge(t, "bob", 5)
	f.assign(t, "app-1", "alice")
	mine := f.assign(t, "app-1", "bob")

	_, err := f.Locks.Acquire(f.ctx, AcquireLock{ApplicationID: "app-1", JudgeID: "alice", DurationMinutes: 60})
	require.NoError(t, err)

	_, err = f.Assignments.StartReview(f.ctx, mine.ID, "bob")
	require.ErrorIs(t, err, ErrAlreadyLocked)
	var lockErr *Error
	require.ErrorAs(t, err, &lockErr)
	require.NotNil(t, lockErr.Holder)
	assert.Equal(t, "alice", lockErr.Holder.JudgeID)

	a, err := f.Assignments.Get(f.ctx, mine.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, a.Status)

	// Once alice's lease runs out bob may start.
	f.clock.Advance(61 * time.Minute)
	a, err = f.Assignments.StartReview(f.ctx, mine.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, a.Status)

	st, err := f.Locks.CheckStatus(f.ctx, "app-1")
	require.NoError(t, err)
	assert.False(t, st.Locked)
}
