package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/judged/internal/judging"
	"github.com/mind-engage/judged/internal/rubric"
)

// Holders of this permission see every judge's scores and statistics.
const permScoresAll = "score:view-all"

type submitScoreReq struct {
	Scheme           string             `json:"scheme"`
	Criteria         map[string]float64 `json:"criteria" validate:"required"`
	Comments         string             `json:"comments"`
	ReviewNotes      string             `json:"review_notes"`
	TimeSpentMinutes int                `json:"time_spent_minutes" validate:"gte=0"`
}

// POST /applications/{applicationID}/scores
func SubmitScoreHandler(m *judging.ScoreManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		judgeID, err := callerJudge(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req submitScoreReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		s, err := m.Submit(r.Context(), judging.SubmitScore{
			ApplicationID:    applicationID(r),
			JudgeID:          judgeID,
			Scheme:           req.Scheme,
			Criteria:         req.Criteria,
			Comments:         req.Comments,
			ReviewNotes:      req.ReviewNotes,
			TimeSpentMinutes: req.TimeSpentMinutes,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, s)
	}
}

// PATCH /scores/{scoreID}
func UpdateScoreHandler(m *judging.ScoreManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		judgeID, err := callerJudge(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var patch judging.ScorePatch
		if err := decode(r, &patch); err != nil {
			writeError(w, r, err)
			return
		}
		s, err := m.Update(r.Context(), strings.TrimSpace(chi.URLParam(r, "scoreID")), judgeID, patch)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// GET /applications/{applicationID}/scores
func ApplicationScoresHandler(m *judging.ScoreManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		judgeID, err := scopedJudge(r, permScoresAll)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out, err := m.ListForApplication(r.Context(), applicationID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if judgeID != "" {
			own := out[:0]
			for _, s := range out {
				if s.JudgeID == judgeID {
					own = append(own, s)
				}
			}
			out = own
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /judges/{judgeID}/scores
func JudgeScoresHandler(m *judging.ScoreManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := m.ListForJudge(r.Context(), chi.URLParam(r, "judgeID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /judges/{judgeID}/statistics
func JudgeStatisticsHandler(s *judging.StatsAggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.Statistics(r.Context(), chi.URLParam(r, "judgeID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /rubrics
func RubricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rubric.Schemes())
	}
}
