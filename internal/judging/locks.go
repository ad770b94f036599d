package judging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/judged/internal/audit"
	"github.com/mind-engage/judged/internal/db"
	"github.com/mind-engage/judged/internal/rubric"
)

const (
	ReleaseReleased = "released"
	ReleaseExpired  = "expired"
	ReleaseSwept    = "swept"
)

// LockManager hands out time-boxed review leases, one per application.
type LockManager struct {
	*env
	cfg Config
}

type AcquireLock struct {
	ApplicationID   string   `json:"application_id"`
	JudgeID         string   `json:"judge_id"`
	UserID          string   `json:"user_id"`
	LockType        LockType `json:"lock_type"`
	SessionID       string   `json:"session_id"`
	DurationMinutes int      `json:"duration_minutes"`
}

var errLostRace = errors.New("lock insert lost the race")

// Acquire takes the lease on an application, or renews it when the caller
// already holds it. A lease held by another judge is never waited on.
func (m *LockManager) Acquire(ctx context.Context, in AcquireLock) (Lock, error) {
	if in.LockType == "" {
		in.LockType = LockReview
	}
	if err := m.validateAcquire(&in); err != nil {
		m.obs.LockRejected(CodeOf(err))
		return Lock{}, err
	}

	now := m.now()
	expires := now.Add(time.Duration(in.DurationMinutes) * time.Minute)
	var (
		out     Lock
		renewed bool
		expired int64
	)
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		if _, err := getApplication(ctx, tx, in.ApplicationID); err != nil {
			return err
		}
		j, err := getJudge(ctx, tx, in.JudgeID)
		if err != nil {
			return err
		}
		if !j.IsActive {
			return newError(CodeJudgeInactive, "judge %s is not active", j.ID)
		}

		cur, n, err := m.resolve(ctx, tx, in.ApplicationID, now)
		if err != nil {
			return err
		}
		expired = n

		if cur != nil && cur.JudgeID != in.JudgeID {
			e := newError(CodeAlreadyLocked, "application %s is locked by judge %s", in.ApplicationID, cur.JudgeID)
			e.Holder = holderOf(*cur, now)
			return e
		}

		if cur != nil {
			_, err := tx.ExecContext(ctx,
				`UPDATE application_locks SET expires_at=$1, lock_type=$2, session_id=$3, user_id=$4, last_activity=$5
				WHERE id=$6 AND is_active = TRUE`,
				unix(expires), string(in.LockType), in.SessionID, in.UserID, unix(now), cur.ID)
			if err != nil {
				return fmt.Errorf("renew lock: %w", err)
			}
			out, err = m.get(ctx, tx, cur.ID)
			if err != nil {
				return err
			}
			renewed = true
			return m.audit.Append(ctx, tx, audit.LockRenewed, in.ApplicationID, in.JudgeID, map[string]any{
				"lock_id": out.ID, "expires_at": out.ExpiresAt, "lock_type": out.LockType,
			})
		}

		id := uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO application_locks (id,application_id,judge_id,user_id,locked_at,expires_at,is_active,lock_type,session_id,last_activity)
			VALUES ($1,$2,$3,$4,$5,$6,TRUE,$7,$8,$5)`,
			id, in.ApplicationID, in.JudgeID, in.UserID, unix(now), unix(expires), string(in.LockType), in.SessionID)
		if db.IsUniqueViolation(err) {
			return errLostRace
		}
		if err != nil {
			return fmt.Errorf("insert lock: %w", err)
		}
		out, err = m.get(ctx, tx, id)
		if err != nil {
			return err
		}
		return m.audit.Append(ctx, tx, audit.LockAcquired, in.ApplicationID, in.JudgeID, map[string]any{
			"lock_id": id, "expires_at": out.ExpiresAt, "lock_type": out.LockType, "session_id": in.SessionID,
		})
	})
	if errors.Is(err, errLostRace) {
		err = m.lostRace(ctx, in.ApplicationID, now)
	}
	if err != nil {
		m.obs.LockRejected(CodeOf(err))
		return Lock{}, err
	}
	if expired > 0 {
		m.obs.LocksExpired(int(expired), false)
	}
	m.obs.LockAcquired(out.LockType, renewed)
	m.log.Info("lock acquired",
		"application_id", in.ApplicationID, "judge_id", in.JudgeID,
		"lock_type", out.LockType, "renewed", renewed, "expires_at", out.ExpiresAt)
	return out, nil
}

func (m *LockManager) validateAcquire(in *AcquireLock) error {
	switch {
	case in.ApplicationID == "":
		return fieldError("application_id", "application_id is required")
	case in.JudgeID == "":
		return fieldError("judge_id", "judge_id is required")
	case !in.LockType.Valid():
		return fieldError("lock_type", fmt.Sprintf("unknown lock type %q", in.LockType))
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = m.cfg.LockDefaultMinutes
	}
	if in.DurationMinutes < 1 || in.DurationMinutes > m.cfg.LockMaxMinutes {
		return fieldError("duration_minutes",
			fmt.Sprintf("duration must be between 1 and %d minutes", m.cfg.LockMaxMinutes))
	}
	return nil
}

// lostRace reports the lease that beat a concurrent insert.
func (m *LockManager) lostRace(ctx context.Context, applicationID string, now time.Time) error {
	e := newError(CodeAlreadyLocked, "application %s was locked concurrently", applicationID)
	if cur, err := m.active(ctx, m.db, applicationID); err == nil && cur != nil {
		e.Message = fmt.Sprintf("application %s is locked by judge %s", applicationID, cur.JudgeID)
		e.Holder = holderOf(*cur, now)
	}
	return e
}

// Release ends the caller's lease.
func (m *LockManager) Release(ctx context.Context, applicationID, judgeID string) (Lock, error) {
	var out Lock
	err := m.owned(ctx, applicationID, judgeID, func(tx *sql.Tx, cur Lock, now time.Time) error {
		if err := deactivate(ctx, tx, cur.ID, now, ReleaseReleased); err != nil {
			return err
		}
		var err error
		if out, err = m.get(ctx, tx, cur.ID); err != nil {
			return err
		}
		return m.audit.Append(ctx, tx, audit.LockReleased, applicationID, judgeID, map[string]any{
			"lock_id": cur.ID, "held_seconds": now.Unix() - cur.LockedAt.Unix(),
		})
	})
	if err != nil {
		return Lock{}, err
	}
	m.log.Info("lock released", "application_id", applicationID, "judge_id", judgeID)
	return out, nil
}

// CheckStatus reports who holds the application, expiring a stale lease on the way.
func (m *LockManager) CheckStatus(ctx context.Context, applicationID string) (LockStatus, error) {
	now := m.now()
	st := LockStatus{ApplicationID: applicationID}
	var expired int64
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		cur, n, err := m.resolve(ctx, tx, applicationID, now)
		if err != nil {
			return err
		}
		expired = n
		if cur != nil {
			remaining := cur.Remaining(now)
			st.Locked = true
			st.Lock = cur
			st.RemainingSeconds = int64(remaining / time.Second)
			st.RemainingMinutes = rubric.Round2(remaining.Minutes())
		}
		return nil
	})
	if err != nil {
		return LockStatus{}, err
	}
	if expired > 0 {
		m.obs.LocksExpired(int(expired), false)
	}
	return st, nil
}

// Extend pushes the caller's lease forward. The lease never reaches past
// LockMaxMinutes from now.
func (m *LockManager) Extend(ctx context.Context, applicationID, judgeID string, additionalMinutes int) (Lock, error) {
	if additionalMinutes < 1 || additionalMinutes > m.cfg.LockMaxMinutes {
		return Lock{}, fieldError("additional_minutes",
			fmt.Sprintf("extension must be between 1 and %d minutes", m.cfg.LockMaxMinutes))
	}
	var out Lock
	err := m.owned(ctx, applicationID, judgeID, func(tx *sql.Tx, cur Lock, now time.Time) error {
		expires := cur.ExpiresAt.Add(time.Duration(additionalMinutes) * time.Minute)
		if limit := now.Add(time.Duration(m.cfg.LockMaxMinutes) * time.Minute); expires.After(limit) {
			expires = limit
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE application_locks SET expires_at=$1, last_activity=$2 WHERE id=$3 AND is_active = TRUE`,
			unix(expires), unix(now), cur.ID)
		if err != nil {
			return fmt.Errorf("extend lock: %w", err)
		}
		if out, err = m.get(ctx, tx, cur.ID); err != nil {
			return err
		}
		return m.audit.Append(ctx, tx, audit.LockExtended, applicationID, judgeID, map[string]any{
			"lock_id": cur.ID, "additional_minutes": additionalMinutes, "expires_at": out.ExpiresAt,
		})
	})
	if err != nil {
		return Lock{}, err
	}
	return out, nil
}

// Heartbeat records activity on the caller's lease without extending it.
func (m *LockManager) Heartbeat(ctx context.Context, applicationID, judgeID string) (Lock, error) {
	var out Lock
	err := m.owned(ctx, applicationID, judgeID, func(tx *sql.Tx, cur Lock, now time.Time) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE application_locks SET last_activity=$1 WHERE id=$2 AND is_active = TRUE`, unix(now), cur.ID)
		if err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
		out, err = m.get(ctx, tx, cur.ID)
		return err
	})
	if err != nil {
		return Lock{}, err
	}
	return out, nil
}

// CleanupExpired deactivates every expired lease and returns how many it closed.
func (m *LockManager) CleanupExpired(ctx context.Context) (int, error) {
	now := m.now()
	var n int64
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		var err error
		if n, err = expireStale(ctx, tx, "", now, ReleaseSwept); err != nil || n == 0 {
			return err
		}
		return m.audit.Append(ctx, tx, audit.LocksSwept, "application_locks", "", map[string]any{"count": n})
	})
	if err != nil {
		return 0, err
	}
	m.obs.LocksExpired(int(n), true)
	if n > 0 {
		m.log.Info("expired locks swept", "count", n)
	}
	return int(n), nil
}

// History lists every lease taken on the application, oldest first.
func (m *LockManager) History(ctx context.Context, applicationID string) ([]Lock, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+lockColumns+` FROM application_locks WHERE application_id=$1 ORDER BY locked_at, id`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("lock history: %w", err)
	}
	defer rows.Close()

	out := []Lock{}
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// owned runs fn on the caller's live lease. Lazy expiry is committed even
// when the call then fails with LockNotFound or NotOwner.
func (m *LockManager) owned(ctx context.Context, applicationID, judgeID string,
	fn func(tx *sql.Tx, cur Lock, now time.Time) error) error {
	now := m.now()
	var (
		fail    error
		expired int64
	)
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		cur, n, err := m.resolve(ctx, tx, applicationID, now)
		if err != nil {
			return err
		}
		expired = n
		switch {
		case cur == nil:
			fail = newError(CodeLockNotFound, "application %s has no active lock", applicationID)
			return nil
		case cur.JudgeID != judgeID:
			e := newError(CodeNotOwner, "lock on application %s belongs to judge %s", applicationID, cur.JudgeID)
			e.Holder = holderOf(*cur, now)
			fail = e
			return nil
		}
		return fn(tx, *cur, now)
	})
	if expired > 0 && err == nil {
		m.obs.LocksExpired(int(expired), false)
	}
	if err != nil {
		return err
	}
	return fail
}

// guard fails with AlreadyLocked while a judge other than judgeID holds a
// live lease on the application. An application nobody holds passes.
func (m *LockManager) guard(ctx context.Context, tx *sql.Tx, applicationID, judgeID string, now time.Time) error {
	cur, _, err := m.resolve(ctx, tx, applicationID, now)
	if err != nil || cur == nil || cur.JudgeID == judgeID {
		return err
	}
	e := newError(CodeAlreadyLocked, "application %s is locked by judge %s", applicationID, cur.JudgeID)
	e.Holder = holderOf(*cur, now)
	return e
}

// resolve expires a stale lease on the application and returns the live one, if any.
func (m *LockManager) resolve(ctx context.Context, tx *sql.Tx, applicationID string, now time.Time) (*Lock, int64, error) {
	n, err := expireStale(ctx, tx, applicationID, now, ReleaseExpired)
	if err != nil {
		return nil, 0, err
	}
	cur, err := m.active(ctx, tx, applicationID)
	return cur, n, err
}

func (m *LockManager) active(ctx context.Context, q db.Querier, applicationID string) (*Lock, error) {
	l, err := scanLock(q.QueryRowContext(ctx,
		`SELECT `+lockColumns+` FROM application_locks WHERE application_id=$1 AND is_active = TRUE`, applicationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active lock: %w", err)
	}
	return &l, nil
}

func (m *LockManager) get(ctx context.Context, q db.Querier, id string) (Lock, error) {
	l, err := scanLock(q.QueryRowContext(ctx, `SELECT `+lockColumns+` FROM application_locks WHERE id=$1`, id))
	if err != nil {
		return Lock{}, fmt.Errorf("load lock %s: %w", id, err)
	}
	return l, nil
}

// expireStale deactivates leases whose expiry has passed. An empty
// applicationID covers every application.
func expireStale(ctx context.Context, q db.Querier, applicationID string, now time.Time, reason string) (int64, error) {
	query := `UPDATE application_locks SET is_active=FALSE, released_at=$1, release_reason=$2
		WHERE is_active = TRUE AND expires_at < $3`
	args := []any{unix(now), reason, unix(now)}
	if applicationID != "" {
		query += ` AND application_id=$4`
		args = append(args, applicationID)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("expire locks: %w", err)
	}
	return res.RowsAffected()
}

func deactivate(ctx context.Context, q db.Querier, id string, now time.Time, reason string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE application_locks SET is_active=FALSE, released_at=$1, release_reason=$2
		WHERE id=$3 AND is_active = TRUE`, unix(now), reason, id)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func fieldError(field, msg string) *Error {
	e := newError(CodeInvalidInput, "%s", msg)
	e.Field = field
	return e
}
