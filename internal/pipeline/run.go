package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"applypilot-engine/internal/domain"
)

var (
	ErrRunNotFound   = errors.New("run not found")
	ErrRunInProgress = errors.New("a run is already in progress for this tenant")
)

// runHandle pairs a live run's cancel function with its summary. The
// summary is shared with the pipeline's collector goroutine; mu guards
// every access.
type runHandle struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	summary *domain.RunSummary
}

// Manager owns run lifecycles: at most one live run per tenant, with
// status queryable after completion for the life of the process.
type Manager struct {
	pipe       *Pipeline
	runTimeout time.Duration
	log        *slog.Logger

	mu     sync.Mutex
	runs   map[string]*runHandle // by run id
	active map[string]string     // tenant id -> live run id
}

func NewManager(pipe *Pipeline, runTimeout time.Duration, log *slog.Logger) *Manager {
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		pipe:       pipe,
		runTimeout: runTimeout,
		log:        log,
		runs:       map[string]*runHandle{},
		active:     map[string]string{},
	}
}

// StartRun registers a new run and returns its id immediately; the
// pipeline proceeds in the background. A second start for a tenant whose
// run is still live returns ErrRunInProgress.
func (m *Manager) StartRun(policy domain.Policy) (string, error) {
	m.mu.Lock()
	if id, ok := m.active[policy.TenantID]; ok {
		m.mu.Unlock()
		return "", errors.Join(ErrRunInProgress, errors.New("run "+id))
	}

	runID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), m.runTimeout)
	h := &runHandle{
		cancel: cancel,
		summary: &domain.RunSummary{
			RunID:     runID,
			TenantID:  policy.TenantID,
			Status:    domain.RunRunning,
			StartedAt: time.Now().UTC(),
		},
	}
	m.runs[runID] = h
	m.active[policy.TenantID] = runID
	m.mu.Unlock()

	m.log.Info("run started", "run_id", runID, "tenant_id", policy.TenantID)

	go func() {
		defer cancel()
		m.pipe.Run(ctx, &h.mu, h.summary, policy)

		m.mu.Lock()
		if m.active[policy.TenantID] == runID {
			delete(m.active, policy.TenantID)
		}
		m.mu.Unlock()
	}()

	return runID, nil
}

// Status returns a snapshot of a run's summary.
func (m *Manager) Status(runID string) (domain.RunSummary, error) {
	m.mu.Lock()
	h, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return domain.RunSummary{}, ErrRunNotFound
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	snap := *h.summary
	if h.summary.FinishedAt != nil {
		t := *h.summary.FinishedAt
		snap.FinishedAt = &t
	}
	return snap, nil
}

// Cancel requests a graceful stop. In-flight sends still complete their
// ledger transition; the run lands in partially_completed.
func (m *Manager) Cancel(runID string) error {
	m.mu.Lock()
	h, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}

	h.mu.Lock()
	finished := h.summary.FinishedAt != nil
	h.mu.Unlock()
	if finished {
		return nil
	}

	m.log.Info("run cancel requested", "run_id", runID)
	h.cancel()
	return nil
}

// Shutdown cancels every live run and waits up to grace for them to
// finish their in-flight transitions.
func (m *Manager) Shutdown(grace time.Duration) {
	m.mu.Lock()
	handles := make([]*runHandle, 0, len(m.runs))
	for _, h := range m.runs {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}

	deadline := time.Now().Add(grace)
	for _, h := range handles {
		for time.Now().Before(deadline) {
			h.mu.Lock()
			done := h.summary.FinishedAt != nil
			h.mu.Unlock()
			if done {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
}
