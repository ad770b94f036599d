// Package judging coordinates judges reviewing a shared pool of applications:
// review leases, assignment lifecycle, score records and judge statistics.
//
// Every mutation is a conditional write inside a transaction, and the
// one-per-pair invariants are backed by unique indexes, so concurrent
// callers race safely without any in-process coordination.
package judging

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/mind-engage/judged/internal/audit"
	"github.com/mind-engage/judged/internal/rubric"
)

type Config struct {
	LockDefaultMinutes int
	LockMaxMinutes     int
	CommentThreshold   float64
	DefaultScheme      string
}

func DefaultConfig() Config {
	return Config{
		LockDefaultMinutes: 60,
		LockMaxMinutes:     240,
		CommentThreshold:   rubric.CommentThreshold,
		DefaultScheme:      rubric.Weighted.Name,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LockDefaultMinutes <= 0 {
		c.LockDefaultMinutes = d.LockDefaultMinutes
	}
	if c.LockMaxMinutes <= 0 {
		c.LockMaxMinutes = d.LockMaxMinutes
	}
	if c.LockDefaultMinutes > c.LockMaxMinutes {
		c.LockDefaultMinutes = c.LockMaxMinutes
	}
	if c.CommentThreshold < 0 {
		c.CommentThreshold = d.CommentThreshold
	}
	if c.DefaultScheme == "" {
		c.DefaultScheme = d.DefaultScheme
	}
	return c
}

type Option func(*env)

// WithClock replaces time.Now; tests drive lease expiry through it.
func WithClock(now func() time.Time) Option { return func(e *env) { e.now = now } }
func WithLogger(l *slog.Logger) Option      { return func(e *env) { e.log = l } }
func WithObserver(o Observer) Option        { return func(e *env) { e.obs = o } }

// env is what every manager shares.
type env struct {
	db    *sql.DB
	now   func() time.Time
	log   *slog.Logger
	obs   Observer
	audit *audit.Log
}

func newEnv(h *sql.DB, opts []Option) *env {
	e := &env{db: h, now: time.Now, log: slog.Default(), obs: nopObserver{}}
	for _, o := range opts {
		o(e)
	}
	e.audit = audit.NewLog(h, e.now)
	return e
}

// Service wires every manager over one database.
type Service struct {
	Applications *ApplicationDirectory
	Judges       *JudgeDirectory
	Locks        *LockManager
	Assignments  *AssignmentManager
	Scores       *ScoreManager
	Stats        *StatsAggregator
	Recompute    *RecomputeQueue
	Audit        *audit.Log
}

func New(h *sql.DB, cfg Config, opts ...Option) *Service {
	e := newEnv(h, opts)
	cfg = cfg.withDefaults()

	stats := &StatsAggregator{env: e}
	queue := newRecomputeQueue(e, stats)
	locks := &LockManager{env: e, cfg: cfg}
	apps := &ApplicationDirectory{env: e}

	return &Service{
		Applications: apps,
		Judges:       &JudgeDirectory{env: e},
		Locks:        locks,
		Assignments:  &AssignmentManager{env: e, locks: locks, recompute: queue},
		Scores:       &ScoreManager{env: e, cfg: cfg, locks: locks, recompute: queue},
		Stats:        stats,
		Recompute:    queue,
		Audit:        e.audit,
	}
}

// Observer receives counters for metrics; every method must be cheap.
type Observer interface {
	LockAcquired(t LockType, renewed bool)
	LockRejected(code Code)
	LocksExpired(n int, swept bool)
	AssignmentTransition(to Status)
	ScoreSubmitted(scheme string)
	ScoreRejected(code Code)
	StatsRecomputed(d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) LockAcquired(LockType, bool)          {}
func (nopObserver) LockRejected(Code)                    {}
func (nopObserver) LocksExpired(int, bool)               {}
func (nopObserver) AssignmentTransition(Status)          {}
func (nopObserver) ScoreSubmitted(string)                {}
func (nopObserver) ScoreRejected(Code)                   {}
func (nopObserver) StatsRecomputed(time.Duration, error) {}
