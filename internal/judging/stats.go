package judging

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/mind-engage/judged/internal/db"
	"github.com/mind-engage/judged/internal/rubric"
)

const (
	strengthThreshold    = 0.8
	improvementThreshold = 0.6
)

// StatsAggregator maintains the rollup columns on judges and computes the
// extended metrics on demand.
type StatsAggregator struct {
	*env
}

// Recompute rewrites the judge's rollups from assignments and scores. The
// capacity counter is left alone; claimSlot and releaseSlot keep it in step
// inside the transactions that change assignments.
func (s *StatsAggregator) Recompute(ctx context.Context, judgeID string) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var (
			reviewed, scored int
			avg              sql.NullFloat64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT
				(SELECT COUNT(*) FROM assignments WHERE judge_id=$1 AND status=$2),
				(SELECT COUNT(*) FROM scores WHERE judge_id=$1),
				(SELECT AVG(weighted_score) FROM scores WHERE judge_id=$1)`,
			judgeID, string(StatusCompleted)).
			Scan(&reviewed, &scored, &avg)
		if err != nil {
			return fmt.Errorf("aggregate judge %s: %w", judgeID, err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE judges SET total_applications_reviewed=$1,
				total_scores_submitted=$2, average_score_given=$3, updated_at=$4
			WHERE id=$5`,
			reviewed, scored, rubric.Round2(avg.Float64), unix(s.now()), judgeID)
		if err != nil {
			return fmt.Errorf("update judge %s rollups: %w", judgeID, err)
		}
		ok, err := db.RowsAffected(res)
		if err != nil {
			return err
		}
		if !ok {
			return newError(CodeNotFound, "judge %s not found", judgeID)
		}
		return nil
	})
}

type Band struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Count int     `json:"count"`
}

var bands = []Band{
	{Label: "90-100", Min: 90},
	{Label: "80-89", Min: 80},
	{Label: "70-79", Min: 70},
	{Label: "60-69", Min: 60},
	{Label: "50-59", Min: 50},
	{Label: "below_50", Min: 0},
}

type JudgeStatistics struct {
	JudgeID                   string  `json:"judge_id"`
	Name                      string  `json:"name"`
	IsActive                  bool    `json:"is_active"`
	TotalScoresSubmitted      int     `json:"total_scores_submitted"`
	TotalApplicationsReviewed int     `json:"total_applications_reviewed"`
	AssignedApplicationsCount int     `json:"assigned_applications_count"`
	MaxApplicationsPerJudge   int     `json:"max_applications_per_judge"`
	AverageScoreGiven         float64 `json:"average_score_given"`

	PendingAssignments   int `json:"pending_assignments"`
	CompletedAssignments int `json:"completed_assignments"`
	ConflictsDeclared    int `json:"conflicts_declared"`

	Distribution      []Band         `json:"distribution"`
	SectorUtilization map[string]int `json:"sector_utilization"`
	SectorMatchRate   float64        `json:"sector_match_rate"`
	Consistency       float64        `json:"consistency"`
	AverageMinutes    float64        `json:"average_minutes"`
	Efficiency        float64        `json:"efficiency"`

	CriterionMeans   map[string]float64 `json:"criterion_means"`
	Strengths        []string           `json:"strengths"`
	ImprovementAreas []string           `json:"improvement_areas"`
}

// Statistics returns the judge's rollups together with metrics derived from
// every score the judge has recorded.
func (s *StatsAggregator) Statistics(ctx context.Context, judgeID string) (JudgeStatistics, error) {
	j, err := getJudge(ctx, s.db, judgeID)
	if err != nil {
		return JudgeStatistics{}, err
	}
	st := JudgeStatistics{
		JudgeID:                   j.ID,
		Name:                      j.Name,
		IsActive:                  j.IsActive,
		TotalScoresSubmitted:      j.TotalScoresSubmitted,
		TotalApplicationsReviewed: j.TotalApplicationsReviewed,
		AssignedApplicationsCount: j.AssignedApplicationsCount,
		MaxApplicationsPerJudge:   j.MaxApplicationsPerJudge,
		AverageScoreGiven:         j.AverageScoreGiven,
		SectorUtilization:         map[string]int{},
		CriterionMeans:            map[string]float64{},
		Strengths:                 []string{},
		ImprovementAreas:          []string{},
	}

	if err := s.countAssignments(ctx, &st); err != nil {
		return JudgeStatistics{}, err
	}
	scores, err := queryScores(ctx, s.db, `s.judge_id=$1`, judgeID)
	if err != nil {
		return JudgeStatistics{}, err
	}
	sectors, err := s.scoredSectors(ctx, judgeID)
	if err != nil {
		return JudgeStatistics{}, err
	}

	st.Distribution = distribution(scores)
	st.SectorUtilization, st.SectorMatchRate = sectorUtilization(j.ExpertiseSectors, sectors)
	if len(scores) > 0 {
		totals := make([]float64, len(scores))
		var minutes float64
		for i, sc := range scores {
			totals[i] = sc.TotalScore
			minutes += float64(sc.TimeSpentMinutes)
		}
		st.Consistency = rubric.Round2(math.Max(0, 100-2*stddev(totals)))
		st.AverageMinutes = rubric.Round2(minutes / float64(len(scores)))
		st.Efficiency = rubric.Round2(math.Max(0, 100-st.AverageMinutes/2))
	}
	st.CriterionMeans = criterionMeans(scores)
	for _, k := range sortedKeys(st.CriterionMeans) {
		switch v := st.CriterionMeans[k]; {
		case v >= strengthThreshold:
			st.Strengths = append(st.Strengths, k)
		case v < improvementThreshold:
			st.ImprovementAreas = append(st.ImprovementAreas, k)
		}
	}
	return st, nil
}

func (s *StatsAggregator) countAssignments(ctx context.Context, st *JudgeStatistics) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM assignments WHERE judge_id=$1 GROUP BY status`, st.JudgeID)
	if err != nil {
		return fmt.Errorf("count assignments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return err
		}
		switch Status(status) {
		case StatusAssigned, StatusUnderReview:
			st.PendingAssignments += n
		case StatusCompleted:
			st.CompletedAssignments += n
		case StatusConflictDeclared:
			st.ConflictsDeclared += n
		}
	}
	return rows.Err()
}

func (s *StatsAggregator) scoredSectors(ctx context.Context, judgeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.sector FROM scores s JOIN applications a ON a.id = s.application_id WHERE s.judge_id=$1`, judgeID)
	if err != nil {
		return nil, fmt.Errorf("scored sectors: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sector string
		if err := rows.Scan(&sector); err != nil {
			return nil, err
		}
		out = append(out, sector)
	}
	return out, rows.Err()
}

func distribution(scores []Score) []Band {
	out := make([]Band, len(bands))
	copy(out, bands)
	for _, sc := range scores {
		i := 0
		for i < len(out)-1 && sc.WeightedScore < out[i].Min {
			i++
		}
		out[i].Count++
	}
	return out
}

// sectorUtilization counts scored applications per expertise sector and the
// share of all scored applications that fell inside the judge's expertise.
func sectorUtilization(expertise, scored []string) (map[string]int, float64) {
	per := make(map[string]int, len(expertise))
	for _, e := range expertise {
		per[e] = 0
	}
	if len(scored) == 0 {
		return per, 0
	}
	matched := 0
	for _, raw := range scored {
		norm := normalizeSectors([]string{raw})
		if len(norm) == 0 {
			continue
		}
		if _, ok := per[norm[0]]; ok {
			per[norm[0]]++
			matched++
		}
	}
	return per, rubric.Round2(100 * float64(matched) / float64(len(scored)))
}

// criterionMeans averages each criterion normalized to its scheme's range.
func criterionMeans(scores []Score) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, sc := range scores {
		scheme, ok := rubric.Lookup(sc.Scheme)
		if !ok {
			continue
		}
		for k, v := range scheme.Normalize(sc.Criteria) {
			sums[k] += v
			counts[k]++
		}
	}
	out := make(map[string]float64, len(sums))
	for k, sum := range sums {
		out[k] = rubric.Round2(sum / float64(counts[k]))
	}
	return out
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
