package judging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/judged/internal/db"
)

type scanner interface {
	Scan(dest ...any) error
}

func unix(t time.Time) int64 { return t.Unix() }

func fromUnix(s int64) time.Time { return time.Unix(s, 0).UTC() }

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

// ---- applications ----

const applicationColumns = `id, title, sector, category, workflow_stage, created_at, updated_at`

func scanApplication(s scanner) (Application, error) {
	var (
		a              Application
		created, updat int64
	)
	if err := s.Scan(&a.ID, &a.Title, &a.Sector, &a.Category, &a.WorkflowStage, &created, &updat); err != nil {
		return Application{}, err
	}
	a.CreatedAt, a.UpdatedAt = fromUnix(created), fromUnix(updat)
	return a, nil
}

func getApplication(ctx context.Context, q db.Querier, id string) (Application, error) {
	a, err := scanApplication(q.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Application{}, newError(CodeNotFound, "application %s not found", id)
	}
	if err != nil {
		return Application{}, fmt.Errorf("load application: %w", err)
	}
	return a, nil
}

// ---- judges ----

const judgeColumns = `id, user_id, name, email, expertise_sectors, is_active,
	assigned_applications_count, max_applications_per_judge, total_scores_submitted,
	total_applications_reviewed, average_score_given, created_at, updated_at`

func scanJudge(s scanner) (Judge, error) {
	var (
		j              Judge
		sectors        string
		created, updat int64
	)
	if err := s.Scan(&j.ID, &j.UserID, &j.Name, &j.Email, &sectors, &j.IsActive,
		&j.AssignedApplicationsCount, &j.MaxApplicationsPerJudge, &j.TotalScoresSubmitted,
		&j.TotalApplicationsReviewed, &j.AverageScoreGiven, &created, &updat); err != nil {
		return Judge{}, err
	}
	if err := json.Unmarshal([]byte(sectors), &j.ExpertiseSectors); err != nil || j.ExpertiseSectors == nil {
		j.ExpertiseSectors = []string{}
	}
	j.CreatedAt, j.UpdatedAt = fromUnix(created), fromUnix(updat)
	return j, nil
}

func getJudge(ctx context.Context, q db.Querier, id string) (Judge, error) {
	j, err := scanJudge(q.QueryRowContext(ctx, `SELECT `+judgeColumns+` FROM judges WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Judge{}, newError(CodeNotFound, "judge %s not found", id)
	}
	if err != nil {
		return Judge{}, fmt.Errorf("load judge: %w", err)
	}
	return j, nil
}

// ---- assignments ----

const assignmentColumns = `id, application_id, judge_id, status, assigned_at, started_at, completed_at,
	review_notes, time_spent_minutes, conflict_declared, conflict_reason, scoring_round,
	reassigned_by, reassignment_reason, reassigned_at`

func scanAssignment(s scanner) (Assignment, error) {
	var (
		a                              Assignment
		status                         string
		assigned                       int64
		started, completed, reassigned sql.NullInt64
	)
	if err := s.Scan(&a.ID, &a.ApplicationID, &a.JudgeID, &status, &assigned, &started, &completed,
		&a.ReviewNotes, &a.TimeSpentMinutes, &a.ConflictDeclared, &a.ConflictReason, &a.ScoringRound,
		&a.ReassignedBy, &a.ReassignmentReason, &reassigned); err != nil {
		return Assignment{}, err
	}
	a.Status = Status(status)
	a.AssignedAt = fromUnix(assigned)
	a.StartedAt = fromNullUnix(started)
	a.CompletedAt = fromNullUnix(completed)
	a.ReassignedAt = fromNullUnix(reassigned)
	return a, nil
}

func getAssignment(ctx context.Context, q db.Querier, id string) (Assignment, error) {
	a, err := scanAssignment(q.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, newError(CodeNotFound, "assignment %s not found", id)
	}
	if err != nil {
		return Assignment{}, fmt.Errorf("load assignment: %w", err)
	}
	return a, nil
}

func getAssignmentFor(ctx context.Context, q db.Querier, applicationID, judgeID string) (Assignment, error) {
	a, err := scanAssignment(q.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE application_id=$1 AND judge_id=$2`,
		applicationID, judgeID))
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, newError(CodeNotFound, "judge %s has no assignment for application %s", judgeID, applicationID)
	}
	if err != nil {
		return Assignment{}, fmt.Errorf("load assignment: %w", err)
	}
	return a, nil
}

func queryAssignments(ctx context.Context, q db.Querier, where string, args ...any) ([]Assignment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE `+where+` ORDER BY assigned_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	out := []Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ---- locks ----

const lockColumns = `id, application_id, judge_id, user_id, locked_at, expires_at, is_active,
	lock_type, session_id, last_activity, released_at, release_reason`

func scanLock(s scanner) (Lock, error) {
	var (
		l                         Lock
		lockType                  string
		locked, expires, lastSeen int64
		released                  sql.NullInt64
	)
	if err := s.Scan(&l.ID, &l.ApplicationID, &l.JudgeID, &l.UserID, &locked, &expires, &l.IsActive,
		&lockType, &l.SessionID, &lastSeen, &released, &l.ReleaseReason); err != nil {
		return Lock{}, err
	}
	l.LockType = LockType(lockType)
	l.LockedAt, l.ExpiresAt, l.LastActivity = fromUnix(locked), fromUnix(expires), fromUnix(lastSeen)
	l.ReleasedAt = fromNullUnix(released)
	return l, nil
}

// ---- scores ----

const scoreColumns = `s.id, s.application_id, s.assignment_id, s.judge_id, s.scheme, s.criteria_json,
	s.total_score, s.weighted_score, s.grade, s.comments, s.review_notes, s.time_spent_minutes,
	s.scored_at, s.updated_at, COALESCE(j.name, '')`

const scoreFrom = ` FROM scores s LEFT JOIN judges j ON j.id = s.judge_id`

func scanScore(s scanner) (Score, error) {
	var (
		sc            Score
		criteria      string
		scored, updat int64
	)
	if err := s.Scan(&sc.ID, &sc.ApplicationID, &sc.AssignmentID, &sc.JudgeID, &sc.Scheme, &criteria,
		&sc.TotalScore, &sc.WeightedScore, &sc.Grade, &sc.Comments, &sc.ReviewNotes, &sc.TimeSpentMinutes,
		&scored, &updat, &sc.JudgeName); err != nil {
		return Score{}, err
	}
	if err := json.Unmarshal([]byte(criteria), &sc.Criteria); err != nil {
		return Score{}, fmt.Errorf("decode criteria of score %s: %w", sc.ID, err)
	}
	sc.ScoredAt, sc.UpdatedAt = fromUnix(scored), fromUnix(updat)
	return sc, nil
}

func getScore(ctx context.Context, q db.Querier, id string) (Score, error) {
	sc, err := scanScore(q.QueryRowContext(ctx, `SELECT `+scoreColumns+scoreFrom+` WHERE s.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Score{}, newError(CodeNotFound, "score %s not found", id)
	}
	if err != nil {
		return Score{}, fmt.Errorf("load score: %w", err)
	}
	return sc, nil
}

func queryScores(ctx context.Context, q db.Querier, where string, args ...any) ([]Score, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+scoreColumns+scoreFrom+` WHERE `+where+` ORDER BY s.scored_at, s.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	out := []Score{}
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func scoreExists(ctx context.Context, q db.Querier, applicationID, judgeID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM scores WHERE application_id=$1 AND judge_id=$2`, applicationID, judgeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check score: %w", err)
	}
	return true, nil
}
