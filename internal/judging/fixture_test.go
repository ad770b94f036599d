package judging

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/judged/internal/db/dbtest"
)

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	*Service
	ctx   context.Context
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{t: t0}
	svc := New(dbtest.Open(t), DefaultConfig(),
		WithClock(clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return &fixture{Service: svc, ctx: context.Background(), clock: clock}
}

func (f *fixture) app(t *testing.T, id, sector string) Application {
	t.Helper()
	a, err := f.Applications.Upsert(f.ctx, Application{ID: id, Title: "Application " + id, Sector: sector, Category: "seed"})
	require.NoError(t, err)
	return a
}

func (f *fixture) judge(t *testing.T, id string, capacity int, sectors ...string) Judge {
	t.Helper()
	j, err := f.Judges.Create(f.ctx, NewJudge{
		ID: id, Name: "Judge " + id, MaxApplicationsPerJudge: capacity, ExpertiseSectors: sectors,
	}, "admin")
	require.NoError(t, err)
	return j
}

func (f *fixture) assign(t *testing.T, applicationID, judgeID string) Assignment {
	t.Helper()
	a, err := f.Assignments.Assign(f.ctx, applicationID, judgeID, 1, "admin")
	require.NoError(t, err)
	return a
}

func uniform(v float64) map[string]float64 {
	return map[string]float64{
		"innovation": v, "feasibility": v, "impact": v,
		"team": v, "scalability": v, "presentation": v,
	}
}
