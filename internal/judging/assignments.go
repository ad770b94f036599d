package judging

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mind-engage/judged/internal/audit"
	"github.com/mind-engage/judged/internal/db"
)

// AssignmentManager owns the assignment lifecycle and the judge capacity
// counter that goes with it.
//
//	assigned -> under_review -> completed
//	assigned|under_review -> conflict_declared
//	assigned|under_review|conflict_declared -> assigned (reassign)
type AssignmentManager struct {
	*env
	locks     *LockManager
	recompute *RecomputeQueue
}

// Assign gives the judge the application, claiming one unit of capacity.
func (m *AssignmentManager) Assign(ctx context.Context, applicationID, judgeID string, round int, actor string) (Assignment, error) {
	switch {
	case strings.TrimSpace(applicationID) == "":
		return Assignment{}, fieldError("application_id", "application_id is required")
	case strings.TrimSpace(judgeID) == "":
		return Assignment{}, fieldError("judge_id", "judge_id is required")
	case round < 0:
		return Assignment{}, fieldError("scoring_round", "scoring_round must be positive")
	}
	if round == 0 {
		round = 1
	}

	now := m.now()
	id := uuid.NewString()
	var out Assignment
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		if _, err := getApplication(ctx, tx, applicationID); err != nil {
			return err
		}
		if _, err := getJudge(ctx, tx, judgeID); err != nil {
			return err
		}
		if _, err := getAssignmentFor(ctx, tx, applicationID, judgeID); err == nil {
			return newError(CodeDuplicateAssignment, "judge %s is already assigned to application %s", judgeID, applicationID)
		} else if KindOf(err) != KindNotFound {
			return err
		}
		if err := claimSlot(ctx, tx, judgeID, unix(now)); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO assignments (id,application_id,judge_id,status,assigned_at,scoring_round)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			id, applicationID, judgeID, string(StatusAssigned), unix(now), round)
		if db.IsUniqueViolation(err) {
			return newError(CodeDuplicateAssignment, "judge %s is already assigned to application %s", judgeID, applicationID)
		}
		if err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
		if out, err = getAssignment(ctx, tx, id); err != nil {
			return err
		}
		return m.audit.Append(ctx, tx, audit.AssignmentCreated, id, actor, map[string]any{
			"application_id": applicationID, "judge_id": judgeID, "scoring_round": round,
		})
	})
	if err != nil {
		return Assignment{}, err
	}
	m.obs.AssignmentTransition(StatusAssigned)
	m.log.Info("assignment created", "assignment_id", id, "application_id", applicationID, "judge_id", judgeID)
	return out, nil
}

// claimSlot increments the judge's assignment counter when the judge is
// active and below capacity.
func claimSlot(ctx context.Context, tx *sql.Tx, judgeID string, now int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE judges SET assigned_applications_count = assigned_applications_count + 1, updated_at=$1
		WHERE id=$2 AND is_active = TRUE AND assigned_applications_count < max_applications_per_judge`,
		now, judgeID)
	if err != nil {
		return fmt.Errorf("claim judge capacity: %w", err)
	}
	ok, err := db.RowsAffected(res)
	if err != nil || ok {
		return err
	}
	j, err := getJudge(ctx, tx, judgeID)
	if err != nil {
		return err
	}
	if !j.IsActive {
		return newError(CodeJudgeInactive, "judge %s is not active", judgeID)
	}
	return newError(CodeCapacityExceeded, "judge %s already holds %d of %d assignments",
		judgeID, j.AssignedApplicationsCount, j.MaxApplicationsPerJudge)
}

func releaseSlot(ctx context.Context, tx *sql.Tx, judgeID string, now int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE judges SET assigned_applications_count = assigned_applications_count - 1, updated_at=$1
		WHERE id=$2 AND assigned_applications_count > 0`, now, judgeID)
	if err != nil {
		return fmt.Errorf("release judge capacity: %w", err)
	}
	return nil
}

// StartReview moves the assignment under review. It is refused while another
// judge holds the application's lease.
func (m *AssignmentManager) StartReview(ctx context.Context, id, judgeID string) (Assignment, error) {
	at := m.now()
	guard := func(tx *sql.Tx, a Assignment) error {
		return m.locks.guard(ctx, tx, a.ApplicationID, a.JudgeID, at)
	}
	return m.transition(ctx, id, judgeID, StatusUnderReview, audit.ReviewStarted, guard,
		`status=$1, started_at=$2`, []any{string(StatusUnderReview), unix(at)},
		[]Status{StatusAssigned})
}

func (m *AssignmentManager) CompleteReview(ctx context.Context, id, judgeID, notes string, timeSpentMinutes int) (Assignment, error) {
	if timeSpentMinutes < 0 {
		return Assignment{}, fieldError("time_spent_minutes", "time_spent_minutes must not be negative")
	}
	now := unix(m.now())
	a, err := m.transition(ctx, id, judgeID, StatusCompleted, audit.ReviewCompleted, nil,
		`status=$1, completed_at=$2, review_notes=$3, time_spent_minutes=$4`,
		[]any{string(StatusCompleted), now, notes, timeSpentMinutes},
		[]Status{StatusUnderReview})
	if err == nil {
		m.recompute.Enqueue(a.JudgeID)
	}
	return a, err
}

// DeclareConflict takes the judge off the application. Capacity is given
// back unless the judge already scored it.
func (m *AssignmentManager) DeclareConflict(ctx context.Context, id, judgeID, reason string) (Assignment, error) {
	now := unix(m.now())
	after := func(tx *sql.Tx, a Assignment) error {
		scored, err := scoreExists(ctx, tx, a.ApplicationID, a.JudgeID)
		if err != nil || scored {
			return err
		}
		return releaseSlot(ctx, tx, a.JudgeID, now)
	}
	a, err := m.transition(ctx, id, judgeID, StatusConflictDeclared, audit.ConflictDeclared, after,
		`status=$1, conflict_declared=TRUE, conflict_reason=$2`,
		[]any{string(StatusConflictDeclared), reason},
		[]Status{StatusAssigned, StatusUnderReview})
	if err == nil {
		m.recompute.Enqueue(a.JudgeID)
	}
	return a, err
}

// Reassign puts the assignment back to assigned with review and conflict
// state cleared. Leaving conflict_declared claims capacity again.
func (m *AssignmentManager) Reassign(ctx context.Context, id, actor, reason string) (Assignment, error) {
	now := unix(m.now())
	var out Assignment
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		a, err := getAssignment(ctx, tx, id)
		if err != nil {
			return err
		}
		if a.Status == StatusCompleted {
			return statusError(CodeCannotReassignCompleted, a, "assignment %s is completed", id)
		}
		if a.Status == StatusConflictDeclared {
			if err := claimSlot(ctx, tx, a.JudgeID, now); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE assignments SET status=$1, assigned_at=$2, started_at=NULL, completed_at=NULL,
				review_notes='', time_spent_minutes=0, conflict_declared=FALSE, conflict_reason='',
				reassigned_by=$3, reassignment_reason=$4, reassigned_at=$2
			WHERE id=$5 AND status=$6`,
			string(StatusAssigned), now, actor, reason, id, string(a.Status))
		if err != nil {
			return fmt.Errorf("reassign: %w", err)
		}
		if ok, err := db.RowsAffected(res); err != nil {
			return err
		} else if !ok {
			return m.reportFailure(ctx, tx, id, StatusAssigned)
		}
		if out, err = getAssignment(ctx, tx, id); err != nil {
			return err
		}
		return m.audit.Append(ctx, tx, audit.AssignmentReassigned, id, actor, map[string]any{
			"from": a.Status, "judge_id": a.JudgeID, "reason": reason,
		})
	})
	if err != nil {
		return Assignment{}, err
	}
	m.obs.AssignmentTransition(StatusAssigned)
	m.recompute.Enqueue(out.JudgeID)
	m.log.Info("assignment reassigned", "assignment_id", id, "actor", actor, "reason", reason)
	return out, nil
}

// transition applies set to the assignment only while its status is one of
// from. A zero-row update is re-read to report why.
func (m *AssignmentManager) transition(ctx context.Context, id, judgeID string, to Status, event string,
	after func(*sql.Tx, Assignment) error, set string, args []any, from []Status) (Assignment, error) {
	var out Assignment
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		if _, err := m.load(ctx, tx, id, judgeID); err != nil {
			return err
		}
		n := len(args)
		where := fmt.Sprintf(` WHERE id=$%d AND status IN (%s)`, n+1, placeholders(n+2, len(from)))
		params := append(append([]any{}, args...), id)
		for _, s := range from {
			params = append(params, string(s))
		}
		res, err := tx.ExecContext(ctx, `UPDATE assignments SET `+set+where, params...)
		if err != nil {
			return fmt.Errorf("assignment %s -> %s: %w", id, to, err)
		}
		if ok, err := db.RowsAffected(res); err != nil {
			return err
		} else if !ok {
			return m.reportFailure(ctx, tx, id, to)
		}
		if out, err = getAssignment(ctx, tx, id); err != nil {
			return err
		}
		if after != nil {
			if err := after(tx, out); err != nil {
				return err
			}
		}
		return m.audit.Append(ctx, tx, event, id, judgeID, map[string]any{
			"application_id": out.ApplicationID, "status": out.Status,
		})
	})
	if err != nil {
		return Assignment{}, err
	}
	m.obs.AssignmentTransition(to)
	return out, nil
}

func (m *AssignmentManager) reportFailure(ctx context.Context, tx *sql.Tx, id string, to Status) error {
	cur, err := getAssignment(ctx, tx, id)
	if err != nil {
		return err
	}
	switch {
	case to == StatusConflictDeclared && cur.Status == StatusCompleted:
		return statusError(CodeCannotDeclareConflictOnCompleted, cur, "assignment %s is completed", id)
	case to == StatusAssigned && cur.Status == StatusCompleted:
		return statusError(CodeCannotReassignCompleted, cur, "assignment %s is completed", id)
	}
	return statusError(CodeInvalidTransition, cur, "assignment %s cannot move from %s to %s", id, cur.Status, to)
}

func statusError(code Code, a Assignment, format string, args ...any) *Error {
	e := newError(code, format, args...)
	e.Status = a.Status
	return e
}

// load returns the assignment if judgeID may see it. An empty judgeID is an
// administrative caller.
func (m *AssignmentManager) load(ctx context.Context, q db.Querier, id, judgeID string) (Assignment, error) {
	a, err := getAssignment(ctx, q, id)
	if err != nil {
		return Assignment{}, err
	}
	if judgeID != "" && a.JudgeID != judgeID {
		return Assignment{}, newError(CodeNotFound, "assignment %s not found", id)
	}
	return a, nil
}

func (m *AssignmentManager) Get(ctx context.Context, id, judgeID string) (Assignment, error) {
	return m.load(ctx, m.db, id, judgeID)
}

func (m *AssignmentManager) FindByJudge(ctx context.Context, judgeID string) ([]Assignment, error) {
	return queryAssignments(ctx, m.db, `judge_id=$1`, judgeID)
}

func (m *AssignmentManager) FindByApplication(ctx context.Context, applicationID string) ([]Assignment, error) {
	return queryAssignments(ctx, m.db, `application_id=$1`, applicationID)
}

// FindPending lists the judge's assignments still awaiting a score.
func (m *AssignmentManager) FindPending(ctx context.Context, judgeID string) ([]Assignment, error) {
	return queryAssignments(ctx, m.db, `judge_id=$1 AND status IN ($2,$3)`,
		judgeID, string(StatusAssigned), string(StatusUnderReview))
}

func (m *AssignmentManager) FindCompleted(ctx context.Context, judgeID string) ([]Assignment, error) {
	return queryAssignments(ctx, m.db, `judge_id=$1 AND status=$2`, judgeID, string(StatusCompleted))
}

// placeholders renders n positional parameters starting at $start.
func placeholders(start, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(ps, ",")
}
