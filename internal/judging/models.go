package judging

import "time"

type Status string

const (
	StatusAssigned         Status = "assigned"
	StatusUnderReview      Status = "under_review"
	StatusCompleted        Status = "completed"
	StatusConflictDeclared Status = "conflict_declared"
)

// Reviewable reports whether a score may still be recorded against the assignment.
func (s Status) Reviewable() bool {
	return s == StatusAssigned || s == StatusUnderReview
}

type LockType string

const (
	LockReview      LockType = "review"
	LockScoring     LockType = "scoring"
	LockFinalReview LockType = "final_review"
)

func (t LockType) Valid() bool {
	switch t {
	case LockReview, LockScoring, LockFinalReview:
		return true
	}
	return false
}

// Workflow stages written onto applications as a side effect of scoring.
const (
	StageSubmitted = "submitted"
	StageInJudging = "in_judging"
	StageJudged    = "judged"
)

type Application struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Sector        string    `json:"sector,omitempty"`
	Category      string    `json:"category,omitempty"`
	WorkflowStage string    `json:"workflow_stage"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Judge struct {
	ID                        string    `json:"id"`
	UserID                    string    `json:"user_id,omitempty"`
	Name                      string    `json:"name"`
	Email                     string    `json:"email,omitempty"`
	ExpertiseSectors          []string  `json:"expertise_sectors"`
	IsActive                  bool      `json:"is_active"`
	AssignedApplicationsCount int       `json:"assigned_applications_count"`
	MaxApplicationsPerJudge   int       `json:"max_applications_per_judge"`
	TotalScoresSubmitted      int       `json:"total_scores_submitted"`
	TotalApplicationsReviewed int       `json:"total_applications_reviewed"`
	AverageScoreGiven         float64   `json:"average_score_given"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// HistoryEntry is one row of a judge's append-only judging history.
type HistoryEntry struct {
	ApplicationID  string    `json:"application_id"`
	Category       string    `json:"category"`
	ScoreSubmitted float64   `json:"score_submitted"`
	ScoredAt       time.Time `json:"scored_at"`
}

type Assignment struct {
	ID                 string     `json:"id"`
	ApplicationID      string     `json:"application_id"`
	JudgeID            string     `json:"judge_id"`
	Status             Status     `json:"status"`
	AssignedAt         time.Time  `json:"assigned_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ReviewNotes        string     `json:"review_notes,omitempty"`
	TimeSpentMinutes   int        `json:"time_spent_minutes"`
	ConflictDeclared   bool       `json:"conflict_declared"`
	ConflictReason     string     `json:"conflict_reason,omitempty"`
	ScoringRound       int        `json:"scoring_round"`
	ReassignedBy       string     `json:"reassigned_by,omitempty"`
	ReassignmentReason string     `json:"reassignment_reason,omitempty"`
	ReassignedAt       *time.Time `json:"reassigned_at,omitempty"`
}

type Lock struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"application_id"`
	JudgeID       string     `json:"judge_id"`
	UserID        string     `json:"user_id,omitempty"`
	LockedAt      time.Time  `json:"locked_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	IsActive      bool       `json:"is_active"`
	LockType      LockType   `json:"lock_type"`
	SessionID     string     `json:"session_id,omitempty"`
	LastActivity  time.Time  `json:"last_activity"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	ReleaseReason string     `json:"release_reason,omitempty"`
}

// Expired reports whether the lease has run out at now.
func (l Lock) Expired(now time.Time) bool {
	return now.Unix() > l.ExpiresAt.Unix()
}

// Remaining is the time left on the lease, never negative.
func (l Lock) Remaining(now time.Time) time.Duration {
	if d := l.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// LockStatus answers checkLockStatus.
type LockStatus struct {
	ApplicationID    string  `json:"application_id"`
	Locked           bool    `json:"locked"`
	Lock             *Lock   `json:"lock,omitempty"`
	RemainingSeconds int64   `json:"remaining_seconds,omitempty"`
	RemainingMinutes float64 `json:"remaining_minutes,omitempty"`
}

type Score struct {
	ID               string             `json:"id"`
	ApplicationID    string             `json:"application_id"`
	AssignmentID     string             `json:"assignment_id"`
	JudgeID          string             `json:"judge_id"`
	Scheme           string             `json:"scheme"`
	Criteria         map[string]float64 `json:"criteria"`
	TotalScore       float64            `json:"total_score"`
	WeightedScore    float64            `json:"weighted_score"`
	Grade            string             `json:"grade"`
	Comments         string             `json:"comments,omitempty"`
	ReviewNotes      string             `json:"review_notes,omitempty"`
	TimeSpentMinutes int                `json:"time_spent_minutes"`
	ScoredAt         time.Time          `json:"scored_at"`
	UpdatedAt        time.Time          `json:"updated_at"`

	// JudgeName is resolved for listings only.
	JudgeName string `json:"judge_name,omitempty"`
}
