package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/judged/internal/judging"
)

// Holders of this permission act on any judge's assignments.
const permAssignmentsAll = "assignment:manage"

type assignReq struct {
	ApplicationID string `json:"application_id" validate:"required"`
	JudgeID       string `json:"judge_id" validate:"required"`
	ScoringRound  int    `json:"scoring_round" validate:"gte=0"`
}

type completeReviewReq struct {
	ReviewNotes      string `json:"review_notes"`
	TimeSpentMinutes int    `json:"time_spent_minutes" validate:"gte=0"`
}

type conflictReq struct {
	Reason string `json:"reason" validate:"required"`
}

type reassignReq struct {
	Reason string `json:"reason" validate:"required"`
}

func assignmentID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "assignmentID"))
}

// POST /assignments
func AssignHandler(m *judging.AssignmentManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		a, err := m.Assign(r.Context(), req.ApplicationID, req.JudgeID, req.ScoringRound, actor(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// GET /assignments?judge_id=&application_id=&state=pending|completed
//
// Judges only ever see their own assignments whatever judge_id says.
func ListAssignmentsHandler(m *judging.AssignmentManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		judgeID, err := scopedJudge(r, permAssignmentsAll)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if judgeID == "" {
			judgeID = q.Get("judge_id")
		}
		appID := q.Get("application_id")

		var out []judging.Assignment
		switch state := q.Get("state"); {
		case state == "pending" && judgeID != "":
			out, err = m.FindPending(r.Context(), judgeID)
		case state == "completed" && judgeID != "":
			out, err = m.FindCompleted(r.Context(), judgeID)
		case state != "" && state != "pending" && state != "completed":
			err = badRequest("state must be pending or completed")
		case judgeID != "":
			out, err = m.FindByJudge(r.Context(), judgeID)
		case appID != "":
			out, err = m.FindByApplication(r.Context(), appID)
		default:
			err = badRequest("judge_id or application_id required")
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		if judgeID != "" && appID != "" {
			out = filterByApplication(out, appID)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func filterByApplication(in []judging.Assignment, appID string) []judging.Assignment {
	out := make([]judging.Assignment, 0, len(in))
	for _, a := range in {
		if a.ApplicationID == appID {
			out = append(out, a)
		}
	}
	return out
}

// GET /assignments/{assignmentID}
func GetAssignmentHandler(m *judging.AssignmentManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		judgeID, err := scopedJudge(r, permAssignmentsAll)
		if err != nil {
			writeError(w, r, err)
			return
		}
		a, err := m.Get(r.Context(), assignmentID(r), judgeID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /assignments/{assignmentID}/start
func StartReviewHandler(m *judging.AssignmentManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		judgeID, err := scopedJudge(r, permAssignmentsAll)
		if err != nil {
			writeError(w, r, err)
			return
		}
		a, err := m.StartReview(r.Context(), assignmentID(r), judgeID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /assignments/{assignmentID}/complete
func CompleteReviewHandler(m *judging.AssignmentManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		judgeID, err := scopedJudge(r, permAssignmentsAll)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req completeReviewReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		a, err := m.CompleteReview(r.Context(), assignmentID(r), judgeID, req.ReviewNotes, req.TimeSpentMinutes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /assignments/{assignmentID}/conflict
func DeclareConflictHandler(m *judging.AssignmentManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		judgeID, err := scopedJudge(r, permAssignmentsAll)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req conflictReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		a, err := m.DeclareConflict(r.Context(), assignmentID(r), judgeID, req.Reason)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /assignments/{assignmentID}/reassign
func ReassignHandler(m *judging.AssignmentManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reassignReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		a, err := m.Reassign(r.Context(), assignmentID(r), actor(r), req.Reason)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
