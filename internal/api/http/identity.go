package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/judged/internal/auth/middleware"
	"github.com/mind-engage/judged/internal/rbac"
)

// callerJudge is the judge the token acts as. Judge-scoped writes require one.
func callerJudge(r *http.Request) (string, error) {
	id := auth.JudgeIDFromContext(r.Context())
	if id == "" {
		return "", forbidden("token carries no judge identity")
	}
	return id, nil
}

// scopedJudge returns "" for callers holding allPerm (act on any judge's
// records) and the caller's own judge id otherwise.
func scopedJudge(r *http.Request, allPerm string) (string, error) {
	if rbac.Allowed(rbac.RoleFromContext(r.Context()), allPerm) {
		return "", nil
	}
	return callerJudge(r)
}

// ownJudge matches the {judgeID} route parameter against the token.
func ownJudge(r *http.Request) bool {
	id := auth.JudgeIDFromContext(r.Context())
	return id != "" && id == chi.URLParam(r, "judgeID")
}

func actor(r *http.Request) string {
	return auth.SubjectFromContext(r.Context())
}
