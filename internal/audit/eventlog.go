// Package audit keeps an append-only log of judging state changes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mind-engage/judged/internal/db"
)

const (
	LockAcquired         = "lock.acquired"
	LockRenewed          = "lock.renewed"
	LockReleased         = "lock.released"
	LockExtended         = "lock.extended"
	LocksSwept           = "lock.swept"
	AssignmentCreated    = "assignment.created"
	ReviewStarted        = "assignment.started"
	ReviewCompleted      = "assignment.completed"
	ConflictDeclared     = "assignment.conflict_declared"
	AssignmentReassigned = "assignment.reassigned"
	ScoreSubmitted       = "score.submitted"
	ScoreUpdated         = "score.updated"
	JudgeCreated         = "judge.created"
	JudgeDeactivated     = "judge.deactivated"
)

type Event struct {
	Seq       int64           `json:"seq"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Actor     string          `json:"actor,omitempty"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

type Log struct {
	db  *sql.DB
	now func() time.Time
}

func NewLog(h *sql.DB, now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{db: h, now: now}
}

// Append writes one event through q, so callers can make it part of the
// transaction that performed the change.
func (l *Log) Append(ctx context.Context, q db.Querier, typ, key, actor string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("audit: encode %s: %w", typ, err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO audit_log (typ, key, actor, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		typ, key, actor, string(buf), l.now().Unix())
	if err != nil {
		return fmt.Errorf("audit: append %s: %w", typ, err)
	}
	return nil
}

// ForKey returns the events recorded for key, oldest first.
func (l *Log) ForKey(ctx context.Context, key string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, typ, key, actor, data, created_at FROM audit_log WHERE key=$1 ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			data string
			at   int64
		)
		if err := rows.Scan(&e.Seq, &e.Type, &e.Key, &e.Actor, &data, &at); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		e.CreatedAt = time.Unix(at, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
