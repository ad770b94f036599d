package judging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mind-engage/judged/internal/audit"
	"github.com/mind-engage/judged/internal/db"
)

// ApplicationDirectory is the narrow view the core has of applications:
// lookup by id plus the workflow_stage side channel.
type ApplicationDirectory struct {
	*env
}

// Upsert creates or updates an application's descriptive fields. The
// workflow stage is left alone on update.
func (d *ApplicationDirectory) Upsert(ctx context.Context, a Application) (Application, error) {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if strings.TrimSpace(a.Title) == "" {
		e := newError(CodeInvalidInput, "title is required")
		e.Field = "title"
		return Application{}, e
	}
	now := unix(d.now())
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO applications (id,title,sector,category,workflow_stage,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, sector=EXCLUDED.sector,
			category=EXCLUDED.category, updated_at=EXCLUDED.updated_at`,
		a.ID, a.Title, a.Sector, a.Category, StageSubmitted, now)
	if err != nil {
		return Application{}, fmt.Errorf("upsert application: %w", err)
	}
	return d.Get(ctx, a.ID)
}

func (d *ApplicationDirectory) Get(ctx context.Context, id string) (Application, error) {
	return getApplication(ctx, d.db, id)
}

// SetWorkflowStage overwrites the application's stage.
func (d *ApplicationDirectory) SetWorkflowStage(ctx context.Context, id, stage string) error {
	return setWorkflowStage(ctx, d.db, id, stage, unix(d.now()))
}

func setWorkflowStage(ctx context.Context, q db.Querier, id, stage string, now int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE applications SET workflow_stage=$1, updated_at=$2 WHERE id=$3`, stage, now, id)
	if err != nil {
		return fmt.Errorf("set workflow stage: %w", err)
	}
	ok, err := db.RowsAffected(res)
	if err != nil {
		return err
	}
	if !ok {
		return newError(CodeNotFound, "application %s not found", id)
	}
	return nil
}

// JudgeDirectory onboards and deactivates judges. Judges are never deleted.
type JudgeDirectory struct {
	*env
}

type NewJudge struct {
	ID                      string   `json:"id"`
	UserID                  string   `json:"user_id"`
	Name                    string   `json:"name" validate:"required"`
	Email                   string   `json:"email" validate:"omitempty,email"`
	ExpertiseSectors        []string `json:"expertise_sectors"`
	MaxApplicationsPerJudge int      `json:"max_applications_per_judge" validate:"gte=0"`
}

const defaultJudgeCapacity = 10

func (d *JudgeDirectory) Create(ctx context.Context, in NewJudge, actor string) (Judge, error) {
	if strings.TrimSpace(in.Name) == "" {
		e := newError(CodeInvalidInput, "name is required")
		e.Field = "name"
		return Judge{}, e
	}
	if in.MaxApplicationsPerJudge < 0 {
		e := newError(CodeInvalidInput, "max_applications_per_judge must not be negative")
		e.Field = "max_applications_per_judge"
		return Judge{}, e
	}
	if in.MaxApplicationsPerJudge == 0 {
		in.MaxApplicationsPerJudge = defaultJudgeCapacity
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	sectors := normalizeSectors(in.ExpertiseSectors)
	buf, _ := json.Marshal(sectors)
	now := unix(d.now())

	err := db.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO judges (id,user_id,name,email,expertise_sectors,is_active,max_applications_per_judge,created_at,updated_at)
			VALUES ($1,$2,$3,$4,$5,TRUE,$6,$7,$7)`,
			in.ID, in.UserID, in.Name, in.Email, string(buf), in.MaxApplicationsPerJudge, now)
		if db.IsUniqueViolation(err) {
			return newError(CodeInvalidInput, "judge %s already exists", in.ID)
		}
		if err != nil {
			return fmt.Errorf("insert judge: %w", err)
		}
		return d.audit.Append(ctx, tx, audit.JudgeCreated, in.ID, actor, map[string]any{
			"name": in.Name, "sectors": sectors, "capacity": in.MaxApplicationsPerJudge,
		})
	})
	if err != nil {
		return Judge{}, err
	}
	return d.Get(ctx, in.ID)
}

func (d *JudgeDirectory) Get(ctx context.Context, id string) (Judge, error) {
	return getJudge(ctx, d.db, id)
}

func (d *JudgeDirectory) List(ctx context.Context, activeOnly bool) ([]Judge, error) {
	query := `SELECT ` + judgeColumns + ` FROM judges`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	rows, err := d.db.QueryContext(ctx, query+` ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list judges: %w", err)
	}
	defer rows.Close()

	out := []Judge{}
	for rows.Next() {
		j, err := scanJudge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Deactivate stops the judge from taking new assignments or leases.
// Existing assignments are left untouched.
func (d *JudgeDirectory) Deactivate(ctx context.Context, id, actor string) (Judge, error) {
	err := db.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE judges SET is_active=FALSE, updated_at=$1 WHERE id=$2`, unix(d.now()), id)
		if err != nil {
			return fmt.Errorf("deactivate judge: %w", err)
		}
		ok, err := db.RowsAffected(res)
		if err != nil {
			return err
		}
		if !ok {
			return newError(CodeNotFound, "judge %s not found", id)
		}
		return d.audit.Append(ctx, tx, audit.JudgeDeactivated, id, actor, struct{}{})
	})
	if err != nil {
		return Judge{}, err
	}
	return d.Get(ctx, id)
}

// History returns the judge's judging history, oldest first.
func (d *JudgeDirectory) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT application_id, category, score_submitted, scored_at
		FROM judge_history WHERE judge_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("judge history: %w", err)
	}
	defer rows.Close()

	out := []HistoryEntry{}
	for rows.Next() {
		var (
			h  HistoryEntry
			at int64
		)
		if err := rows.Scan(&h.ApplicationID, &h.Category, &h.ScoreSubmitted, &at); err != nil {
			return nil, err
		}
		h.ScoredAt = fromUnix(at)
		out = append(out, h)
	}
	return out, rows.Err()
}

func normalizeSectors(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
