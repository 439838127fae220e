package domain

import "time"

type Stage string

const (
	StageSeen     Stage = "seen"
	StageRejected Stage = "rejected"
	StageScored   Stage = "scored"
	StageSending  Stage = "sending"
	StageSkipped  Stage = "skipped"
	StageSent     Stage = "sent"
)

// stageRank orders stages for the monotonicity check. Rejected and Scored
// share a rank (both follow Seen), as do Sending and Skipped.
var stageRank = map[Stage]int{
	StageSeen:     0,
	StageRejected: 1,
	StageScored:   1,
	StageSending:  2,
	StageSkipped:  2,
	StageSent:     3,
}

func (s Stage) Valid() bool {
	_, ok := stageRank[s]
	return ok
}

// CanAdvanceTo reports whether moving from s to next respects the state
// machine: Seen -> Rejected|Scored, Scored -> Sending|Skipped,
// Sending -> Sent|Skipped, plus Skipped reachable from any non-terminal
// stage for error outcomes.
func (s Stage) CanAdvanceTo(next Stage) bool {
	switch s {
	case StageSeen:
		return next == StageRejected || next == StageScored || next == StageSkipped
	case StageScored:
		return next == StageSending || next == StageSkipped
	case StageSending:
		return next == StageSent || next == StageSkipped
	default:
		// rejected, skipped, sent are terminal
		return false
	}
}

// Terminal reports whether no further transition is allowed within a run.
func (s Stage) Terminal() bool {
	return s == StageRejected || s == StageSkipped || s == StageSent
}

// Rank exposes the monotonic ordering for assertions and tests.
func (s Stage) Rank() int { return stageRank[s] }

// Skip reasons recorded on JobRecord when stage = skipped (or rejected).
const (
	SkipFilteredOut       = "filtered-out"
	SkipLowScore          = "low-score"
	SkipNoContactFound    = "no-contact-found"
	SkipScoringError      = "scoring-error"
	SkipAmbiguousDispatch = "ambiguous-dispatch"
)

// SkipError builds an error:<kind> reason for non-retryable client faults.
func SkipError(kind string) string { return "error:" + kind }

// JobRecord is the ledger's persistent unit, one per (tenant, listing).
type JobRecord struct {
	TenantID       string     `json:"tenantId"`
	ListingID      string     `json:"listingId"`
	Company        string     `json:"company"`
	Title          string     `json:"title"`
	DetailURL      string     `json:"detailUrl"`
	Stage          Stage      `json:"stage"`
	Score          *float64   `json:"score,omitempty"`
	SkipReason     string     `json:"skipReason,omitempty"`
	ContactAddress string     `json:"contactAddress,omitempty"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type RunStatus string

const (
	RunRunning            RunStatus = "running"
	RunCompleted          RunStatus = "completed"
	RunPartiallyCompleted RunStatus = "partially_completed"
	RunFailed             RunStatus = "failed"
)

// RunSummary is the aggregate result of one pipeline execution for one
// tenant. Owned by the orchestrator for the run's duration.
type RunSummary struct {
	RunID      string     `json:"runId"`
	TenantID   string     `json:"tenantId"`
	Status     RunStatus  `json:"status"`
	Seen       int        `json:"seen"`
	Filtered   int        `json:"filtered"`
	Scored     int        `json:"scored"`
	Skipped    int        `json:"skipped"`
	Sent       int        `json:"sent"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// ScoringResult is the transient value returned by the scoring oracle.
// GeneratedMessage is present only when the score met the send threshold.
type ScoringResult struct {
	Score            float64
	Reasoning        string
	KeyMatches       []string
	MissingSkills    []string
	GeneratedMessage string
}
