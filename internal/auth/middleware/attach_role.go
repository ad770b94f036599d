// internal/auth/middleware/attach_role.go
package auth

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/mind-engage/judged/internal/rbac"
)

// AttachRoleFromDB makes the users table authoritative for role and judge id.
// Subjects without a row (the configured admin) keep their token claims.
// allowClaimFallback=true in dev/offline; false in prod.
func AttachRoleFromDB(db *sql.DB, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx) // set by JWTMiddleware

			var role, judgeID string
			err := db.QueryRowContext(ctx,
				`SELECT role, judge_id FROM users WHERE id=$1`, sub,
			).Scan(&role, &judgeID)

			switch {
			case err == nil && role != "":
				ctx = rbac.WithRole(ctx, role)
				ctx = WithJudgeID(ctx, judgeID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return

			case errors.Is(err, sql.ErrNoRows) || isUsersTableMissing(err):
				if claimRole == RoleAdmin || (allowClaimFallback && claimRole != "") {
					next.ServeHTTP(w, r)
					return
				}
				writeErr(w, http.StatusForbidden, "no account for token subject")
				return

			default:
				if allowClaimFallback && claimRole != "" {
					next.ServeHTTP(w, r)
					return
				}
				writeErr(w, http.StatusForbidden, "no account for token subject")
				return
			}
		})
	}
}

func isUsersTableMissing(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table: users") || // sqlite
		strings.Contains(msg, `relation "users" does not exist`) // postgres
}
