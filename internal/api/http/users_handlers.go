package http

import (
	"errors"
	"net/http"

	auth "github.com/mind-engage/judged/internal/auth/middleware"
	"github.com/mind-engage/judged/internal/judging"
)

type createUserReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=judge admin"`
	JudgeID  string `json:"judge_id" validate:"required_if=Role judge"`
}

type changePasswordReq struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// POST /users
func CreateUserHandler(users *auth.UserStore, judges *judging.JudgeDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.Role == auth.RoleJudge {
			if _, err := judges.Get(r.Context(), req.JudgeID); err != nil {
				writeError(w, r, err)
				return
			}
		}
		u, err := users.Create(r.Context(), req.Username, req.Password, req.Role, req.JudgeID)
		if errors.Is(err, auth.ErrUsernameTaken) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "username_taken", "message": err.Error()})
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

// GET /users?role=judge
func ListUsersHandler(users *auth.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := users.List(r.Context(), r.URL.Query().Get("role"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /users/change-password
func ChangePasswordHandler(users *auth.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := actor(r)
		if userID == "" {
			writeError(w, r, forbidden("unauthorized"))
			return
		}
		var req changePasswordReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		err := users.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword)
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "user not found"})
		case errors.Is(err, auth.ErrBadCredentials):
			writeError(w, r, forbidden("incorrect old password"))
		case err != nil:
			writeError(w, r, err)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}
