package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"applypilot-engine/internal/domain"
	"applypilot-engine/internal/source"
)

// blockingIter parks until released so a run can be held live on purpose.
type blockingIter struct {
	release chan struct{}
}

func (it *blockingIter) Next(ctx context.Context) (domain.Listing, error) {
	select {
	case <-it.release:
		return domain.Listing{}, source.ErrDone
	case <-ctx.Done():
		return domain.Listing{}, ctx.Err()
	}
}

type blockingSource struct {
	release chan struct{}
}

func (s *blockingSource) Name() string { return "blocking" }

func (s *blockingSource) Open(ctx context.Context, opts source.FetchOptions) (source.Iterator, error) {
	return &blockingIter{release: s.release}, nil
}

func waitFinished(t *testing.T, mgr *Manager, runID string) domain.RunSummary {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sum, err := mgr.Status(runID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if sum.FinishedAt != nil {
			return sum
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never finished", runID)
	return domain.RunSummary{}
}

func TestManagerStartAndStatus(t *testing.T) {
	env := newEnv(t, &stubSource{listings: []domain.Listing{listing("j1", "Initech")}},
		goodScorer(85), goodResolver(), &fakeSender{})
	mgr := NewManager(env.pipe, time.Minute, slog.Default())

	runID, err := mgr.StartRun(testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if runID == "" {
		t.Fatal("empty run id")
	}

	sum := waitFinished(t, mgr, runID)
	if sum.Status != domain.RunCompleted || sum.Sent != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.RunID != runID || sum.TenantID != "t1" {
		t.Fatalf("identity = %s/%s", sum.RunID, sum.TenantID)
	}
}

func TestManagerStatusUnknownRun(t *testing.T) {
	env := newEnv(t, &stubSource{}, goodScorer(85), goodResolver(), &fakeSender{})
	mgr := NewManager(env.pipe, time.Minute, slog.Default())

	if _, err := mgr.Status("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
	if err := mgr.Cancel("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("cancel err = %v, want ErrRunNotFound", err)
	}
}

func TestManagerOneRunPerTenant(t *testing.T) {
	release := make(chan struct{})
	env := newEnv(t, &blockingSource{release: release},
		goodScorer(85), goodResolver(), &fakeSender{})
	mgr := NewManager(env.pipe, time.Minute, slog.Default())

	first, err := mgr.StartRun(testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.StartRun(testPolicy()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("second start err = %v, want ErrRunInProgress", err)
	}

	// A different tenant is not blocked.
	other := testPolicy()
	other.TenantID = "t2"
	if _, err := mgr.StartRun(other); err != nil {
		t.Fatalf("other tenant blocked: %v", err)
	}

	close(release)
	waitFinished(t, mgr, first)

	// Tenant slot frees up once the run finishes.
	if _, err := mgr.StartRun(testPolicy()); err != nil {
		t.Fatalf("restart after completion: %v", err)
	}
}

func TestManagerCancel(t *testing.T) {
	env := newEnv(t, &blockingSource{release: make(chan struct{})},
		goodScorer(85), goodResolver(), &fakeSender{})
	mgr := NewManager(env.pipe, time.Minute, slog.Default())

	runID, err := mgr.StartRun(testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Cancel(runID); err != nil {
		t.Fatal(err)
	}

	sum := waitFinished(t, mgr, runID)
	if sum.Status != domain.RunPartiallyCompleted {
		t.Fatalf("status = %s, want partially_completed", sum.Status)
	}

	// Cancelling a finished run is a no-op.
	if err := mgr.Cancel(runID); err != nil {
		t.Fatal(err)
	}
}

func TestManagerShutdownWaitsForRuns(t *testing.T) {
	env := newEnv(t, &blockingSource{release: make(chan struct{})},
		goodScorer(85), goodResolver(), &fakeSender{})
	mgr := NewManager(env.pipe, time.Minute, slog.Default())

	runID, err := mgr.StartRun(testPolicy())
	if err != nil {
		t.Fatal(err)
	}

	mgr.Shutdown(5 * time.Second)

	sum, err := mgr.Status(runID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.FinishedAt == nil {
		t.Fatal("run still live after shutdown")
	}
	if sum.Status != domain.RunPartiallyCompleted {
		t.Fatalf("status = %s, want partially_completed", sum.Status)
	}
}
