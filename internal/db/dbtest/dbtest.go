// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/judged/internal/db"
)

// Open returns a fresh in-memory SQLite database with the schema applied.
// Each call gets its own named database so parallel tests never share rows.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	h, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}
