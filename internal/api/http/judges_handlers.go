package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/judged/internal/judging"
)

type applicationReq struct {
	ID       string `json:"id"`
	Title    string `json:"title" validate:"required"`
	Sector   string `json:"sector"`
	Category string `json:"category"`
}

// POST /applications
func UpsertApplicationHandler(d *judging.ApplicationDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req applicationReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		a, err := d.Upsert(r.Context(), judging.Application{
			ID: req.ID, Title: req.Title, Sector: req.Sector, Category: req.Category,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /applications/{applicationID}
func GetApplicationHandler(d *judging.ApplicationDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := d.Get(r.Context(), applicationID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func judgeID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "judgeID"))
}

// POST /judges
func CreateJudgeHandler(d *judging.JudgeDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in judging.NewJudge
		if err := decode(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		j, err := d.Create(r.Context(), in, actor(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, j)
	}
}

// GET /judges?active=true
func ListJudgesHandler(d *judging.JudgeDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
		out, err := d.List(r.Context(), activeOnly)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /judges/{judgeID}
func GetJudgeHandler(d *judging.JudgeDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := d.Get(r.Context(), judgeID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, j)
	}
}

// POST /judges/{judgeID}/deactivate
func DeactivateJudgeHandler(d *judging.JudgeDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := d.Deactivate(r.Context(), judgeID(r), actor(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, j)
	}
}

// GET /judges/{judgeID}/history
func JudgeHistoryHandler(d *judging.JudgeDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := d.History(r.Context(), judgeID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
