package rubric

import (
	"sort"
	"sync"
)

// Equal averages six criteria scored 0-100.
var Equal = Scheme{
	Name:        "equal",
	Description: "six criteria on 0-100, total is the arithmetic mean",
	Criteria:    hundredScale(1.0/6, 1.0/6, 1.0/6, 1.0/6, 1.0/6, 1.0/6),
	Total:       Mean,
}

// Weighted scores the same criteria as Equal but weights them unevenly.
var Weighted = Scheme{
	Name:        "weighted",
	Description: "six criteria on 0-100, weighted 20/20/25/15/10/10",
	Criteria:    hundredScale(0.20, 0.20, 0.25, 0.15, 0.10, 0.10),
	Total:       Mean,
	Weighted:    true,
}

// Budget gives each criterion a point budget summing to 100.
var Budget = Scheme{
	Name:        "budget",
	Description: "six criteria with point budgets 25/20/20/15/10/10, total is the sum",
	Criteria: []Criterion{
		{Key: "problem_solution", Label: "Problem & solution", Max: 25},
		{Key: "market_opportunity", Label: "Market opportunity", Max: 20},
		{Key: "business_model", Label: "Business model", Max: 20},
		{Key: "team_capability", Label: "Team capability", Max: 15},
		{Key: "financial_projections", Label: "Financial projections", Max: 10},
		{Key: "pitch_quality", Label: "Pitch quality", Max: 10},
	},
	Total: Sum,
}

func hundredScale(w ...float64) []Criterion {
	return []Criterion{
		{Key: "innovation", Label: "Innovation", Max: 100, Weight: w[0]},
		{Key: "feasibility", Label: "Feasibility", Max: 100, Weight: w[1]},
		{Key: "impact", Label: "Impact", Max: 100, Weight: w[2]},
		{Key: "team", Label: "Team", Max: 100, Weight: w[3]},
		{Key: "scalability", Label: "Scalability", Max: 100, Weight: w[4]},
		{Key: "presentation", Label: "Presentation", Max: 100, Weight: w[5]},
	}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Scheme{}
)

func init() {
	Register(Equal)
	Register(Weighted)
	Register(Budget)
}

// Register binds a scheme to its name, replacing any previous binding.
func Register(s Scheme) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Name] = s
}

// Lookup returns the scheme registered under name.
func Lookup(name string) (Scheme, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[name]
	return s, ok
}

// Schemes returns all registered schemes ordered by name.
func Schemes() []Scheme {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Scheme, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names lists the registered scheme names in order.
func Names() []string {
	schemes := Schemes()
	out := make([]string, len(schemes))
	for i, s := range schemes {
		out[i] = s.Name
	}
	return out
}
