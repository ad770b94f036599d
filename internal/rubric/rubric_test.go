package rubric

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hundred(innovation, feasibility, impact, team, scalability, presentation float64) map[string]float64 {
	return map[string]float64{
		"innovation":   innovation,
		"feasibility":  feasibility,
		"impact":       impact,
		"team":         team,
		"scalability":  scalability,
		"presentation": presentation,
	}
}

func TestWeightedScheme(t *testing.T) {
	res, err := Weighted.Derive(hundred(80, 70, 90, 75, 60, 85))
	require.NoError(t, err)

	assert.InDelta(t, 78.25, res.WeightedScore, 1e-9)
	assert.InDelta(t, 76.67, res.TotalScore, 1e-9)
	assert.Equal(t, GradeBPlus, res.Grade)
}

func TestWeightedSchemeWeightsSumToOne(t *testing.T) {
	for _, s := range []Scheme{Equal, Weighted} {
		var sum float64
		for _, c := range s.Criteria {
			sum += c.Weight
		}
		assert.InDelta(t, 1.0, sum, 1e-9, s.Name)
	}
}

func TestEqualScheme(t *testing.T) {
	res, err := Equal.Derive(hundred(60, 60, 90, 90, 75, 75))
	require.NoError(t, err)

	assert.InDelta(t, 75.0, res.TotalScore, 1e-9)
	assert.Equal(t, res.TotalScore, res.WeightedScore)
	assert.Equal(t, GradeBPlus, res.Grade)
}

func TestBudgetScheme(t *testing.T) {
	res, err := Budget.Derive(map[string]float64{
		"problem_solution":      20,
		"market_opportunity":    16,
		"business_model":        18,
		"team_capability":       12,
		"financial_projections": 8,
		"pitch_quality":         9,
	})
	require.NoError(t, err)

	assert.InDelta(t, 83.0, res.TotalScore, 1e-9)
	assert.InDelta(t, 83.0, res.WeightedScore, 1e-9)
	assert.Equal(t, GradeA, res.Grade)
}

func TestBudgetSchemeMaximaSumToHundred(t *testing.T) {
	var sum float64
	for _, c := range Budget.Criteria {
		sum += c.Max
	}
	assert.Equal(t, 100.0, sum)
}

func TestDeriveRejectsOutOfRange(t *testing.T) {
	_, err := Budget.Derive(map[string]float64{
		"problem_solution":      26,
		"market_opportunity":    16,
		"business_model":        18,
		"team_capability":       12,
		"financial_projections": 8,
		"pitch_quality":         9,
	})
	var rangeErr *RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "problem_solution", rangeErr.Criterion)
	assert.Equal(t, 26.0, rangeErr.Value)
	assert.Equal(t, 25.0, rangeErr.Max)

	_, err = Weighted.Derive(hundred(80, -1, 90, 75, 60, 85))
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "feasibility", rangeErr.Criterion)
}

func TestDeriveRejectsMissingAndUnknownCriteria(t *testing.T) {
	values := hundred(80, 70, 90, 75, 60, 85)
	delete(values, "team")
	_, err := Equal.Derive(values)
	var missing *MissingCriterionError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "team", missing.Criterion)

	values = hundred(80, 70, 90, 75, 60, 85)
	values["charisma"] = 50
	_, err = Equal.Derive(values)
	var unknown *UnknownCriterionError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "charisma", unknown.Criterion)
}

func TestGradeFor(t *testing.T) {
	cases := []struct {
		score float64
		want  Grade
	}{
		{100, GradeAPlus},
		{90, GradeAPlus},
		{89.99, GradeA},
		{80, GradeA},
		{79.99, GradeBPlus},
		{70, GradeBPlus},
		{60, GradeB},
		{50, GradeCPlus},
		{40, GradeC},
		{30, GradeD},
		{29.99, GradeF},
		{0, GradeF},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, GradeFor(tc.score), "score %v", tc.score)
	}
}

func TestGradeIsMonotonic(t *testing.T) {
	rank := map[Grade]int{GradeF: 0, GradeD: 1, GradeC: 2, GradeCPlus: 3, GradeB: 4, GradeBPlus: 5, GradeA: 6, GradeAPlus: 7}
	prev := rank[GradeFor(0)]
	for s := 0.0; s <= 100; s += 0.25 {
		cur := rank[GradeFor(s)]
		require.GreaterOrEqual(t, cur, prev, "grade dropped at %v", s)
		prev = cur
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, s := range Schemes() {
		for i := 0; i < 200; i++ {
			values := make(map[string]float64, len(s.Criteria))
			for _, c := range s.Criteria {
				values[c.Key] = c.Min + float64(rng.Intn(int(c.Max-c.Min)*4+1))/4
			}
			first, err := s.Derive(values)
			require.NoError(t, err)
			again, err := s.Derive(values)
			require.NoError(t, err)
			require.Equal(t, first, again)
			require.Equal(t, GradeFor(first.WeightedScore), first.Grade)
		}
	}
}

func TestCommentsRequired(t *testing.T) {
	assert.True(t, CommentsRequired(65, CommentThreshold))
	assert.True(t, CommentsRequired(69.99, CommentThreshold))
	assert.False(t, CommentsRequired(70, CommentThreshold))
	assert.False(t, HasComments("   "))
	assert.True(t, HasComments("solid team"))
}

func TestNormalize(t *testing.T) {
	n := Budget.Normalize(map[string]float64{"problem_solution": 20, "pitch_quality": 5})
	assert.InDelta(t, 0.8, n["problem_solution"], 1e-9)
	assert.InDelta(t, 0.5, n["pitch_quality"], 1e-9)
	assert.NotContains(t, n, "team_capability")
}

func TestRegistry(t *testing.T) {
	s, ok := Lookup("weighted")
	require.True(t, ok)
	assert.True(t, s.Weighted)

	_, ok = Lookup("nope")
	assert.False(t, ok)

	assert.Equal(t, []string{"budget", "equal", "weighted"}, Names())
}

func TestRawTotalKeepsThresholdHonest(t *testing.T) {
	res, err := Equal.Derive(hundred(70, 70, 70, 70, 70, 69.98))
	require.NoError(t, err)
	assert.Equal(t, 70.0, res.TotalScore)
	assert.Less(t, res.RawTotal, 70.0)
	assert.True(t, CommentsRequired(res.RawTotal, CommentThreshold))
}
