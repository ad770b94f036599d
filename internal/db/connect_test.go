package db_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/judged/internal/db"
	"github.com/mind-engage/judged/internal/db/dbtest"
)

func TestParseDriver(t *testing.T) {
	cases := map[string]db.Driver{
		"":         db.DriverSQLite,
		"sqlite3":  db.DriverSQLite,
		"Postgres": db.DriverPostgres,
		"pgx":      db.DriverPostgres,
	}
	for in, want := range cases {
		got, err := db.ParseDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := db.ParseDriver("mysql")
	assert.Error(t, err)
}

func TestSchemaIsIdempotent(t *testing.T) {
	h := dbtest.Open(t)
	require.NoError(t, db.EnsureSchema(context.Background(), h, db.DriverSQLite))
}

func TestIsUniqueViolation(t *testing.T) {
	h := dbtest.Open(t)
	ctx := context.Background()

	insert := `INSERT INTO applications (id,title,created_at,updated_at) VALUES ($1,$2,$3,$4)`
	_, err := h.ExecContext(ctx, insert, "app-1", "First", 1, 1)
	require.NoError(t, err)

	_, err = h.ExecContext(ctx, insert, "app-1", "Again", 2, 2)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))
	assert.False(t, db.IsUniqueViolation(nil))
}

func TestOneActiveLockPerApplication(t *testing.T) {
	h := dbtest.Open(t)
	ctx := context.Background()

	_, err := h.ExecContext(ctx, `INSERT INTO applications (id,title,created_at,updated_at) VALUES ('app-1','A',1,1)`)
	require.NoError(t, err)

	insert := `INSERT INTO application_locks
		(id,application_id,judge_id,locked_at,expires_at,is_active,lock_type,last_activity)
		VALUES ($1,'app-1',$2,1,100,$3,'review',1)`
	_, err = h.ExecContext(ctx, insert, "l1", "j1", true)
	require.NoError(t, err)

	// inactive history rows never collide
	_, err = h.ExecContext(ctx, insert, "l0", "j0", false)
	require.NoError(t, err)

	_, err = h.ExecContext(ctx, insert, "l2", "j2", true)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	h := dbtest.Open(t)
	ctx := context.Background()

	err := db.WithTx(ctx, h, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO applications (id,title,created_at,updated_at) VALUES ('app-x','X',1,1)`)
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var n int
	require.NoError(t, h.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications`).Scan(&n))
	assert.Zero(t, n)
}
