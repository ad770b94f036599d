// Package rubric derives judge scores from six criterion values.
//
// A Scheme is pure configuration: it names its criteria, their bounds and
// weights, and how the total is aggregated. Derive never clamps: any value
// outside its criterion's bounds is rejected before anything is computed.
package rubric

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// CommentThreshold is the total score below which comments are mandatory.
const CommentThreshold = 70.0

type Aggregation int

const (
	// Mean averages the criterion values.
	Mean Aggregation = iota
	// Sum adds the criterion values; used when criteria carry point budgets.
	Sum
)

type Criterion struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Weight float64 `json:"weight,omitempty"`
}

type Scheme struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Criteria    []Criterion `json:"criteria"`
	Total       Aggregation `json:"-"`
	// Weighted derives the weighted score from criterion weights; otherwise
	// the weighted score is the total.
	Weighted bool `json:"weighted"`
}

// Result holds the derived fields stored alongside a score.
type Result struct {
	TotalScore    float64 `json:"total_score"`
	WeightedScore float64 `json:"weighted_score"`
	Grade         Grade   `json:"grade"`
	// RawTotal is the total before rounding; thresholds compare against it.
	RawTotal float64 `json:"-"`
}

// RangeError reports a criterion value outside its declared bounds.
type RangeError struct {
	Criterion string
	Value     float64
	Min, Max  float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s=%g outside [%g,%g]", e.Criterion, e.Value, e.Min, e.Max)
}

// MissingCriterionError reports a criterion the scheme requires but the input lacks.
type MissingCriterionError struct{ Criterion string }

func (e *MissingCriterionError) Error() string {
	return fmt.Sprintf("%s is required", e.Criterion)
}

// UnknownCriterionError reports an input key the scheme does not declare.
type UnknownCriterionError struct {
	Criterion string
	Scheme    string
}

func (e *UnknownCriterionError) Error() string {
	return fmt.Sprintf("%s is not a criterion of scheme %q", e.Criterion, e.Scheme)
}

// Criterion returns the declared criterion for key.
func (s Scheme) Criterion(key string) (Criterion, bool) {
	for _, c := range s.Criteria {
		if c.Key == key {
			return c, true
		}
	}
	return Criterion{}, false
}

// Validate checks that values carries exactly the scheme's criteria, each in range.
// Errors are reported in criterion order, unknown keys last.
func (s Scheme) Validate(values map[string]float64) error {
	for _, c := range s.Criteria {
		v, ok := values[c.Key]
		if !ok {
			return &MissingCriterionError{Criterion: c.Key}
		}
		if math.IsNaN(v) || v < c.Min || v > c.Max {
			return &RangeError{Criterion: c.Key, Value: v, Min: c.Min, Max: c.Max}
		}
	}
	if len(values) != len(s.Criteria) {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := s.Criterion(k); !ok {
				return &UnknownCriterionError{Criterion: k, Scheme: s.Name}
			}
		}
	}
	return nil
}

// Derive validates values and computes the total, weighted score and grade.
func (s Scheme) Derive(values map[string]float64) (Result, error) {
	if err := s.Validate(values); err != nil {
		return Result{}, err
	}

	var sum, weighted float64
	for _, c := range s.Criteria {
		v := values[c.Key]
		sum += v
		weighted += v * c.Weight
	}

	total := sum
	if s.Total == Mean {
		total = sum / float64(len(s.Criteria))
	}
	res := Result{TotalScore: Round2(total), RawTotal: total}
	res.WeightedScore = res.TotalScore
	if s.Weighted {
		res.WeightedScore = Round2(weighted)
	}
	res.Grade = GradeFor(res.WeightedScore)
	return res, nil
}

// Normalize maps each known criterion value onto 0..1 of its range.
func (s Scheme) Normalize(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(s.Criteria))
	for _, c := range s.Criteria {
		v, ok := values[c.Key]
		if !ok || c.Max <= c.Min {
			continue
		}
		out[c.Key] = (v - c.Min) / (c.Max - c.Min)
	}
	return out
}

// CommentsRequired reports whether a score with this total must carry comments.
func CommentsRequired(total, threshold float64) bool {
	return total < threshold
}

// HasComments reports whether comments carries any non-space text.
func HasComments(comments string) bool {
	return strings.TrimSpace(comments) != ""
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
