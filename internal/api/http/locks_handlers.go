package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/judged/internal/judging"
)

type acquireLockReq struct {
	LockType        string `json:"lock_type" validate:"omitempty,oneof=review scoring final_review"`
	SessionID       string `json:"session_id"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
}

type extendLockReq struct {
	AdditionalMinutes int `json:"additional_minutes" validate:"required,gt=0"`
}

func applicationID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "applicationID"))
}

// GET /applications/{applicationID}/lock
func LockStatusHandler(locks *judging.LockManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := locks.CheckStatus(r.Context(), applicationID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// POST /applications/{applicationID}/lock
func AcquireLockHandler(locks *judging.LockManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		judgeID, err := callerJudge(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req acquireLockReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		l, err := locks.Acquire(r.Context(), judging.AcquireLock{
			ApplicationID:   applicationID(r),
			JudgeID:         judgeID,
			UserID:          actor(r),
			LockType:        judging.LockType(req.LockType),
			SessionID:       req.SessionID,
			DurationMinutes: req.DurationMinutes,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// DELETE /applications/{applicationID}/lock
func ReleaseLockHandler(locks *judging.LockManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		judgeID, err := callerJudge(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		l, err := locks.Release(r.Context(), applicationID(r), judgeID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// POST /applications/{applicationID}/lock/extend
func ExtendLockHandler(locks *judging.LockManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		judgeID, err := callerJudge(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req extendLockReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		l, err := locks.Extend(r.Context(), applicationID(r), judgeID, req.AdditionalMinutes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// POST /applications/{applicationID}/lock/heartbeat
func HeartbeatHandler(locks *judging.LockManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		judgeID, err := callerJudge(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		l, err := locks.Heartbeat(r.Context(), applicationID(r), judgeID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// GET /applications/{applicationID}/lock/history
func LockHistoryHandler(locks *judging.LockManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := locks.History(r.Context(), applicationID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /admin/locks/cleanup
func CleanupLocksHandler(locks *judging.LockManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := locks.CleanupExpired(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"closed": n})
	}
}
