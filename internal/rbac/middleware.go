package rbac

import (
	"encoding/json"
	"net/http"
)

var defaultChecker = NewChecker(nil)

// Allowed reports whether role carries perm under the default policy.
func Allowed(role, perm string) bool {
	return role != "" && defaultChecker.Has(role, perm)
}

func deny(w http.ResponseWriter, perm string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "forbidden", "message": "missing permission " + perm,
	})
}

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Allowed(RoleFromContext(r.Context()), perm) {
				deny(w, perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnerOr lets the request through when isOwner holds, or when the
// role carries perm (acting on someone else's records).
func RequireOwnerOr(perm string, isOwner func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOwner(r) || Allowed(RoleFromContext(r.Context()), perm) {
				next.ServeHTTP(w, r)
				return
			}
			deny(w, perm)
		})
	}
}
