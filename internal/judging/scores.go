package judging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mind-engage/judged/internal/audit"
	"github.com/mind-engage/judged/internal/db"
	"github.com/mind-engage/judged/internal/rubric"
)

// ScoreManager records one score per judge and application. Derived fields
// always come from the rubric, never from the caller.
type ScoreManager struct {
	*env
	cfg       Config
	locks     *LockManager
	recompute *RecomputeQueue
}

type SubmitScore struct {
	ApplicationID    string             `json:"application_id"`
	JudgeID          string             `json:"judge_id"`
	Scheme           string             `json:"scheme"`
	Criteria         map[string]float64 `json:"criteria" validate:"required"`
	Comments         string             `json:"comments"`
	ReviewNotes      string             `json:"review_notes"`
	TimeSpentMinutes int                `json:"time_spent_minutes" validate:"gte=0"`
}

// ScorePatch carries the fields an update may change. Criteria are merged
// into the stored values.
type ScorePatch struct {
	Criteria         map[string]float64 `json:"criteria"`
	Comments         *string            `json:"comments"`
	ReviewNotes      *string            `json:"review_notes"`
	TimeSpentMinutes *int               `json:"time_spent_minutes" validate:"omitempty,gte=0"`
}

// Submit validates and stores the judge's score, completing the assignment
// in the same transaction. Another judge's live lease on the application
// blocks it. The judge's own lease is released afterwards.
func (m *ScoreManager) Submit(ctx context.Context, in SubmitScore) (Score, error) {
	out, err := m.submit(ctx, in)
	if err != nil {
		m.obs.ScoreRejected(CodeOf(err))
		return Score{}, err
	}
	m.obs.ScoreSubmitted(out.Scheme)

	if _, err := m.locks.Release(ctx, in.ApplicationID, in.JudgeID); err != nil {
		switch CodeOf(err) {
		case CodeLockNotFound, CodeNotOwner:
		default:
			m.log.Warn("release lock after score", "application_id", in.ApplicationID, "judge_id", in.JudgeID, "err", err)
		}
	}
	m.recompute.Enqueue(in.JudgeID)
	m.log.Info("score submitted",
		"score_id", out.ID, "application_id", out.ApplicationID, "judge_id", out.JudgeID,
		"weighted_score", out.WeightedScore, "grade", out.Grade)
	return out, nil
}

func (m *ScoreManager) submit(ctx context.Context, in SubmitScore) (Score, error) {
	switch {
	case strings.TrimSpace(in.ApplicationID) == "":
		return Score{}, fieldError("application_id", "application_id is required")
	case strings.TrimSpace(in.JudgeID) == "":
		return Score{}, fieldError("judge_id", "judge_id is required")
	case in.TimeSpentMinutes < 0:
		return Score{}, fieldError("time_spent_minutes", "time_spent_minutes must not be negative")
	}
	if in.Scheme == "" {
		in.Scheme = m.cfg.DefaultScheme
	}
	scheme, ok := rubric.Lookup(in.Scheme)
	if !ok {
		return Score{}, fieldError("scheme", fmt.Sprintf("unknown scheme %q", in.Scheme))
	}

	now := m.now()
	id := uuid.NewString()
	var out Score
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		a, err := getAssignmentFor(ctx, tx, in.ApplicationID, in.JudgeID)
		if err != nil {
			return err
		}
		if dup, err := scoreExists(ctx, tx, in.ApplicationID, in.JudgeID); err != nil {
			return err
		} else if dup {
			return newError(CodeDuplicateScore, "judge %s already scored application %s", in.JudgeID, in.ApplicationID)
		}
		if !a.Status.Reviewable() {
			return statusError(CodeAssignmentNotReviewable, a, "assignment %s is %s", a.ID, a.Status)
		}
		if err := m.locks.guard(ctx, tx, in.ApplicationID, in.JudgeID, now); err != nil {
			return err
		}
		res, err := m.derive(scheme, in.Criteria, in.Comments)
		if err != nil {
			return err
		}

		criteria, _ := json.Marshal(in.Criteria)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO scores (id,application_id,assignment_id,judge_id,scheme,criteria_json,total_score,
				weighted_score,grade,comments,review_notes,time_spent_minutes,scored_at,updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)`,
			id, in.ApplicationID, a.ID, in.JudgeID, scheme.Name, string(criteria), res.TotalScore,
			res.WeightedScore, string(res.Grade), in.Comments, in.ReviewNotes, in.TimeSpentMinutes, unix(now))
		if db.IsUniqueViolation(err) {
			return newError(CodeDuplicateScore, "judge %s already scored application %s", in.JudgeID, in.ApplicationID)
		}
		if err != nil {
			return fmt.Errorf("insert score: %w", err)
		}

		upd, err := tx.ExecContext(ctx,
			`UPDATE assignments SET status=$1, started_at=COALESCE(started_at, $2), completed_at=$2,
				review_notes=$3, time_spent_minutes=$4
			WHERE id=$5 AND status IN ($6,$7)`,
			string(StatusCompleted), unix(now), in.ReviewNotes, in.TimeSpentMinutes, a.ID,
			string(StatusAssigned), string(StatusUnderReview))
		if err != nil {
			return fmt.Errorf("complete assignment: %w", err)
		}
		if ok, err := db.RowsAffected(upd); err != nil {
			return err
		} else if !ok {
			cur, err := getAssignment(ctx, tx, a.ID)
			if err != nil {
				return err
			}
			return statusError(CodeAssignmentNotReviewable, cur, "assignment %s is %s", a.ID, cur.Status)
		}

		app, err := getApplication(ctx, tx, in.ApplicationID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO judge_history (judge_id,application_id,category,score_submitted,scored_at)
			VALUES ($1,$2,$3,$4,$5)`,
			in.JudgeID, in.ApplicationID, app.Category, res.WeightedScore, unix(now))
		if err != nil {
			return fmt.Errorf("append judge history: %w", err)
		}
		if err := refreshStage(ctx, tx, in.ApplicationID, unix(now)); err != nil {
			return err
		}
		if out, err = getScore(ctx, tx, id); err != nil {
			return err
		}
		return m.audit.Append(ctx, tx, audit.ScoreSubmitted, in.ApplicationID, in.JudgeID, map[string]any{
			"score_id": id, "assignment_id": a.ID, "scheme": scheme.Name,
			"weighted_score": res.WeightedScore, "grade": res.Grade,
		})
	})
	if err != nil {
		return Score{}, err
	}
	return out, nil
}

// Update lets the judge who owns the score revise it. Derived fields are
// recomputed from the merged criteria.
func (m *ScoreManager) Update(ctx context.Context, scoreID, judgeID string, p ScorePatch) (Score, error) {
	if p.TimeSpentMinutes != nil && *p.TimeSpentMinutes < 0 {
		return Score{}, fieldError("time_spent_minutes", "time_spent_minutes must not be negative")
	}
	now := m.now()
	var out Score
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		cur, err := getScore(ctx, tx, scoreID)
		if err != nil {
			return err
		}
		if cur.JudgeID != judgeID {
			return newError(CodeNotOwner, "score %s belongs to another judge", scoreID)
		}
		scheme, ok := rubric.Lookup(cur.Scheme)
		if !ok {
			return fmt.Errorf("score %s uses unregistered scheme %q", scoreID, cur.Scheme)
		}

		merged := make(map[string]float64, len(cur.Criteria))
		for k, v := range cur.Criteria {
			merged[k] = v
		}
		for k, v := range p.Criteria {
			merged[k] = v
		}
		comments, notes, spent := cur.Comments, cur.ReviewNotes, cur.TimeSpentMinutes
		if p.Comments != nil {
			comments = *p.Comments
		}
		if p.ReviewNotes != nil {
			notes = *p.ReviewNotes
		}
		if p.TimeSpentMinutes != nil {
			spent = *p.TimeSpentMinutes
		}

		res, err := m.derive(scheme, merged, comments)
		if err != nil {
			return err
		}
		criteria, _ := json.Marshal(merged)
		_, err = tx.ExecContext(ctx,
			`UPDATE scores SET criteria_json=$1, total_score=$2, weighted_score=$3, grade=$4,
				comments=$5, review_notes=$6, time_spent_minutes=$7, updated_at=$8
			WHERE id=$9`,
			string(criteria), res.TotalScore, res.WeightedScore, string(res.Grade),
			comments, notes, spent, unix(now), scoreID)
		if err != nil {
			return fmt.Errorf("update score: %w", err)
		}
		if out, err = getScore(ctx, tx, scoreID); err != nil {
			return err
		}
		return m.audit.Append(ctx, tx, audit.ScoreUpdated, cur.ApplicationID, judgeID, map[string]any{
			"score_id": scoreID, "from": cur.WeightedScore, "to": res.WeightedScore, "grade": res.Grade,
		})
	})
	if err != nil {
		m.obs.ScoreRejected(CodeOf(err))
		return Score{}, err
	}
	m.recompute.Enqueue(judgeID)
	return out, nil
}

// derive runs the rubric and the comment rule, mapping failures to judging errors.
func (m *ScoreManager) derive(scheme rubric.Scheme, values map[string]float64, comments string) (rubric.Result, error) {
	res, err := scheme.Derive(values)
	if err != nil {
		var (
			rangeErr   *rubric.RangeError
			missingErr *rubric.MissingCriterionError
			unknownErr *rubric.UnknownCriterionError
		)
		switch {
		case errors.As(err, &rangeErr):
			e := newError(CodeOutOfRange, "%s", rangeErr.Error())
			e.Field, e.Err = rangeErr.Criterion, err
			return rubric.Result{}, e
		case errors.As(err, &missingErr):
			e := fieldError(missingErr.Criterion, missingErr.Error())
			e.Err = err
			return rubric.Result{}, e
		case errors.As(err, &unknownErr):
			e := fieldError(unknownErr.Criterion, unknownErr.Error())
			e.Err = err
			return rubric.Result{}, e
		}
		return rubric.Result{}, err
	}
	if rubric.CommentsRequired(res.RawTotal, m.cfg.CommentThreshold) && !rubric.HasComments(comments) {
		e := newError(CodeMissingComments, "comments are required for a total below %.0f", m.cfg.CommentThreshold)
		e.Field = "comments"
		return rubric.Result{}, e
	}
	return res, nil
}

// refreshStage marks the application judged once no assignment is left
// open, and in judging before that.
func refreshStage(ctx context.Context, tx *sql.Tx, applicationID string, now int64) error {
	var open int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE application_id=$1 AND status IN ($2,$3)`,
		applicationID, string(StatusAssigned), string(StatusUnderReview)).Scan(&open)
	if err != nil {
		return fmt.Errorf("count open assignments: %w", err)
	}
	stage := StageInJudging
	if open == 0 {
		stage = StageJudged
	}
	return setWorkflowStage(ctx, tx, applicationID, stage, now)
}

func (m *ScoreManager) Get(ctx context.Context, id string) (Score, error) {
	return getScore(ctx, m.db, id)
}

func (m *ScoreManager) ListForApplication(ctx context.Context, applicationID string) ([]Score, error) {
	return queryScores(ctx, m.db, `s.application_id=$1`, applicationID)
}

func (m *ScoreManager) ListForJudge(ctx context.Context, judgeID string) ([]Score, error) {
	return queryScores(ctx, m.db, `s.judge_id=$1`, judgeID)
}
