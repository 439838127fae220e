// Package pipeline drives listings through the processing state machine:
// Seen -> Filtered -> Scored -> {Sending -> Sent} | Skipped. It is the only
// component with cross-stage knowledge; all durable state lives in the
// ledger, all run-local aggregation in the RunSummary.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"applypilot-engine/internal/contact"
	"applypilot-engine/internal/dispatch"
	"applypilot-engine/internal/domain"
	"applypilot-engine/internal/events"
	"applypilot-engine/internal/filter"
	"applypilot-engine/internal/ledger"
	"applypilot-engine/internal/oracle"
	"applypilot-engine/internal/source"
)

type Config struct {
	Workers           int
	QueueSize         int
	RetryAttempts     int
	ResolverAttempts  int // contact-lookup budget; falls back to RetryAttempts
	StaleSendingAfter time.Duration

	// per-service pacing: each outbound dependency is rate-limited
	// independently of overall worker count
	OracleRPS   float64
	ResolverRPS float64
	DispatchRPS float64
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.ResolverAttempts <= 0 {
		c.ResolverAttempts = c.RetryAttempts
	}
	if c.StaleSendingAfter <= 0 {
		c.StaleSendingAfter = 15 * time.Minute
	}
	if c.OracleRPS <= 0 {
		c.OracleRPS = 1
	}
	if c.ResolverRPS <= 0 {
		c.ResolverRPS = 1
	}
	if c.DispatchRPS <= 0 {
		c.DispatchRPS = 0.5
	}
	return c
}

type Pipeline struct {
	cfg      Config
	ledger   *ledger.Ledger
	sources  []source.Source
	scorer   oracle.Scorer
	resolver contact.Resolver
	sender   dispatch.Sender
	hub      *events.Hub
	log      *slog.Logger

	attachment    *dispatch.Attachment
	sessionCookie string

	oracleLim   *rate.Limiter
	resolverLim *rate.Limiter
	dispatchLim *rate.Limiter

	backoff Backoff
}

type Deps struct {
	Ledger     *ledger.Ledger
	Sources    []source.Source
	Scorer     oracle.Scorer
	Resolver   contact.Resolver
	Sender     dispatch.Sender
	Hub        *events.Hub
	Log        *slog.Logger
	Attachment *dispatch.Attachment

	// SessionCookie is forwarded to sources that support authenticated
	// fetching; empty means anonymous.
	SessionCookie string
}

func New(cfg Config, d Deps) *Pipeline {
	cfg = cfg.withDefaults()
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &Pipeline{
		cfg:           cfg,
		ledger:        d.Ledger,
		sources:       d.Sources,
		scorer:        d.Scorer,
		resolver:      d.Resolver,
		sender:        d.Sender,
		hub:           d.Hub,
		log:           d.Log,
		attachment:    d.Attachment,
		sessionCookie: d.SessionCookie,
		oracleLim:     rate.NewLimiter(rate.Limit(cfg.OracleRPS), 1),
		resolverLim:   rate.NewLimiter(rate.Limit(cfg.ResolverRPS), 1),
		dispatchLim:   rate.NewLimiter(rate.Limit(cfg.DispatchRPS), 1),
		backoff:       Backoff{Base: 500 * time.Millisecond, Max: 20 * time.Second},
	}
}

// outcome is one worker's verdict on one listing, drained by the single
// collector goroutine that owns the RunSummary.
type outcome struct {
	listingID string
	stage     domain.Stage
	reason    string
	score     float64
	duplicate bool // already terminal from a previous run; only counted seen
}

// Run executes one pipeline run. The summary is mutated only by the
// collector goroutine while the run is live; mu guards reads from the API.
func (p *Pipeline) Run(ctx context.Context, mu *sync.Mutex, summary *domain.RunSummary, policy domain.Policy) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	publish := func(typ string, data any) {
		if p.hub != nil {
			p.hub.Publish(events.MakeEvent(summary.RunID, typ, 1, data))
		}
	}
	publish("run_started", map[string]any{"tenant_id": policy.TenantID})

	// Close out records stranded mid-send by a crash. Ambiguous: the mail
	// may or may not have gone out, so they surface for manual review
	// instead of being re-sent.
	if n, err := p.ledger.CloseStaleSending(runCtx, policy.TenantID, p.cfg.StaleSendingAfter); err != nil {
		p.finish(mu, summary, domain.RunFailed, "storage: "+err.Error())
		publish("run_finished", map[string]any{"status": summary.Status})
		return
	} else if n > 0 {
		p.log.Warn("pipeline: closed stale sending records",
			"run_id", summary.RunID, "count", n)
	}

	queue := make(chan domain.Listing, p.cfg.QueueSize)
	results := make(chan outcome, p.cfg.QueueSize)

	// Single producer: the one serialization point. Upstream rate limiting
	// is per-session and must not be defeated by parallel fetch.
	var produceErr error
	var produced int
	go func() {
		defer close(queue)
		produceErr, produced = p.produce(runCtx, policy, queue)
	}()

	// Bounded worker pool, each worker owning one listing end-to-end.
	var wg errgroup.Group
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Go(func() error {
			for l := range queue {
				if runCtx.Err() != nil {
					// drain without processing so the producer never blocks
					continue
				}
				results <- p.process(runCtx, policy, l)
			}
			return nil
		})
	}

	// Collector: single aggregation point for the summary.
	collectDone := make(chan struct{})
	go func() {
		defer close(collectDone)
		for res := range results {
			mu.Lock()
			summary.Seen++
			switch {
			case res.duplicate:
				// already terminal from an earlier run; seen only
			case res.stage == domain.StageRejected:
				summary.Filtered++
			case res.stage == domain.StageSent:
				summary.Scored++
				summary.Sent++
			case res.stage == domain.StageSkipped:
				if skippedAfterScoring(res.reason) {
					summary.Scored++
				}
				summary.Skipped++
			case res.stage == domain.StageScored:
				// interrupted by cancellation after scoring
				summary.Scored++
			}
			mu.Unlock()

			if res.stage == domain.StageSent {
				publish("record_sent", map[string]any{"listing_id": res.listingID, "score": res.score})
			}
		}
	}()

	_ = wg.Wait()
	close(results)
	<-collectDone

	status := domain.RunCompleted
	errMsg := ""
	switch {
	case produceErr != nil && produced == 0:
		status = domain.RunFailed
		errMsg = produceErr.Error()
	case produceErr != nil:
		status = domain.RunPartiallyCompleted
		errMsg = produceErr.Error()
	case ctx.Err() != nil:
		status = domain.RunPartiallyCompleted
	}
	p.finish(mu, summary, status, errMsg)
	publish("run_finished", map[string]any{"status": summary.Status})
}

func (p *Pipeline) finish(mu *sync.Mutex, summary *domain.RunSummary, status domain.RunStatus, errMsg string) {
	now := time.Now().UTC()
	mu.Lock()
	summary.Status = status
	summary.Error = errMsg
	summary.FinishedAt = &now
	mu.Unlock()

	p.log.Info("pipeline: run finished",
		"run_id", summary.RunID,
		"tenant_id", summary.TenantID,
		"status", status,
		"seen", summary.Seen,
		"sent", summary.Sent,
	)
}

// produce reads every configured source sequentially, de-duplicates by
// listing id, and feeds the bounded queue. RateLimited pauses the producer
// only; workers keep draining the queue meanwhile.
func (p *Pipeline) produce(ctx context.Context, policy domain.Policy, queue chan<- domain.Listing) (error, int) {
	seen := map[string]bool{}
	produced := 0

	opts := source.FetchOptions{
		Query:         policy.SearchQuery,
		MaxPages:      policy.MaxPages,
		SessionCookie: p.sessionCookie,
	}

	for _, src := range p.sources {
		it, err := src.Open(ctx, opts)
		if err != nil {
			p.log.Error("pipeline: source open failed", "source", src.Name(), "error", err)
			return err, produced
		}

		pauses := 0
		for {
			if ctx.Err() != nil {
				return nil, produced
			}

			l, err := it.Next(ctx)
			switch {
			case err == nil:
				pauses = 0
			case errors.Is(err, source.ErrDone):
				// next source
			case errors.Is(err, domain.ErrRateLimited):
				p.log.Warn("pipeline: source throttled, pausing producer",
					"source", src.Name(), "pause", pauses)
				if serr := p.backoff.Sleep(ctx, pauses); serr != nil {
					return nil, produced
				}
				pauses++
				continue
			default:
				if ctx.Err() != nil {
					return nil, produced
				}
				p.log.Error("pipeline: source failed mid-iteration",
					"source", src.Name(), "error", err)
				return err, produced
			}
			if errors.Is(err, source.ErrDone) {
				break
			}

			if l.ID == "" || seen[l.ID] {
				continue
			}
			seen[l.ID] = true

			select {
			case queue <- l:
				produced++
			case <-ctx.Done():
				return nil, produced
			}
		}
	}
	return nil, produced
}

// process walks one listing through the state machine. Per-record faults
// are resolved here into a Skipped terminal state; they never escape to
// abort the run.
func (p *Pipeline) process(ctx context.Context, policy domain.Policy, l domain.Listing) outcome {
	log := p.log.With("run_tenant", policy.TenantID, "listing_id", l.ID, "company", l.Company)

	rec, err := p.ledger.UpsertSeen(ctx, policy.TenantID, l)
	if err != nil {
		log.Error("pipeline: upsert seen failed", "error", err)
		return outcome{listingID: l.ID, stage: domain.StageSkipped, reason: domain.SkipError("storage")}
	}
	if rec.Stage != domain.StageSeen {
		// sent, in-flight, or otherwise sticky from an earlier run
		log.Debug("pipeline: already terminal, skipping", "stage", rec.Stage)
		return outcome{listingID: l.ID, stage: rec.Stage, duplicate: true}
	}

	// ---- Filter ----
	if keep, why := filter.Accepts(l, policy); !keep {
		log.Info("pipeline: rejected by filter", "reason", why)
		if _, err := p.ledger.Advance(ctx, policy.TenantID, l.ID, domain.StageRejected,
			ledger.AdvanceFields{SkipReason: domain.SkipFilteredOut}); err != nil {
			log.Error("pipeline: advance rejected failed", "error", err)
		}
		return outcome{listingID: l.ID, stage: domain.StageRejected, reason: domain.SkipFilteredOut}
	}

	// ---- Score ----
	scored, err := retry(ctx, p.cfg.RetryAttempts, p.backoff,
		func(err error) bool { return errors.Is(err, domain.ErrOracleTimeout) },
		func() (domain.ScoringResult, error) {
			if err := p.oracleLim.Wait(ctx); err != nil {
				return domain.ScoringResult{}, err
			}
			return p.scorer.Score(ctx, l, policy)
		})
	if err != nil {
		reason := domain.SkipScoringError
		if errors.Is(err, domain.ErrOracleTimeout) {
			reason = domain.SkipError("oracle-timeout")
		}
		if ctx.Err() != nil {
			return outcome{listingID: l.ID, stage: domain.StageSeen}
		}
		log.Warn("pipeline: scoring failed", "error", err, "reason", reason)
		return p.skip(ctx, policy, l.ID, reason)
	}

	if _, err := p.ledger.Advance(ctx, policy.TenantID, l.ID, domain.StageScored,
		ledger.AdvanceFields{Score: &scored.Score}); err != nil {
		log.Error("pipeline: advance scored failed", "error", err)
		return outcome{listingID: l.ID, stage: domain.StageSkipped, reason: domain.SkipError("storage")}
	}

	// Inclusive boundary: a score exactly at threshold qualifies.
	if scored.Score < policy.SendThreshold {
		log.Info("pipeline: below send threshold", "score", scored.Score, "threshold", policy.SendThreshold)
		return p.skip(ctx, policy, l.ID, domain.SkipLowScore)
	}

	// ---- Resolve contact ----
	address, err := retry(ctx, p.cfg.ResolverAttempts, p.backoff,
		func(err error) bool { return errors.Is(err, domain.ErrResolverUnavailable) },
		func() (string, error) {
			if err := p.resolverLim.Wait(ctx); err != nil {
				return "", err
			}
			return p.resolver.Resolve(ctx, l.Company)
		})
	if err != nil {
		if ctx.Err() != nil {
			return outcome{listingID: l.ID, stage: domain.StageScored}
		}
		if errors.Is(err, domain.ErrResolverUnavailable) || errors.Is(err, domain.ErrContactNotFound) {
			// Exhausted retries and a genuine miss land in the same place;
			// the reason is not sticky, so a later run gets a fresh attempt.
			log.Info("pipeline: no contact found", "error", err)
			return p.skip(ctx, policy, l.ID, domain.SkipNoContactFound)
		}
		log.Warn("pipeline: resolver failed", "error", err)
		return p.skip(ctx, policy, l.ID, domain.SkipError("resolver"))
	}

	// ---- Dispatch ----
	// From here on the record must not be left mid-transition: once it is
	// Sending, the send and the ledger write that follows run under a
	// detached context so cancellation waits for the transition to finish.
	sendCtx := context.WithoutCancel(ctx)

	if _, err := p.ledger.Advance(sendCtx, policy.TenantID, l.ID, domain.StageSending,
		ledger.AdvanceFields{ContactAddress: address}); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// lost the race to a concurrent worker; exactly one sender wins
			log.Warn("pipeline: lost sending race", "error", err)
			return outcome{listingID: l.ID, stage: domain.StageSending, duplicate: true}
		}
		log.Error("pipeline: advance sending failed", "error", err)
		return outcome{listingID: l.ID, stage: domain.StageSkipped, reason: domain.SkipError("storage")}
	}

	if err := p.dispatchLim.Wait(sendCtx); err != nil {
		return p.skip(sendCtx, policy, l.ID, domain.SkipAmbiguousDispatch)
	}

	receipt, err := p.sender.Send(sendCtx, dispatch.Message{
		To:         address,
		Subject:    subjectFor(policy, l),
		HTMLBody:   scored.GeneratedMessage,
		Attachment: p.attachment,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDispatchRejected) {
			log.Warn("pipeline: dispatch rejected", "error", err)
			return p.skip(sendCtx, policy, l.ID, domain.SkipError("dispatch-rejected"))
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			// delivery result unknown; recorded for manual review, never
			// guessed as sent or not-sent
			log.Warn("pipeline: dispatch ambiguous", "error", err)
			return p.skip(sendCtx, policy, l.ID, domain.SkipAmbiguousDispatch)
		}
		log.Warn("pipeline: dispatch failed", "error", err)
		return p.skip(sendCtx, policy, l.ID, domain.SkipAmbiguousDispatch)
	}

	if _, err := p.ledger.Advance(sendCtx, policy.TenantID, l.ID, domain.StageSent,
		ledger.AdvanceFields{}); err != nil {
		log.Error("pipeline: advance sent failed after successful send", "error", err)
		return outcome{listingID: l.ID, stage: domain.StageSkipped, reason: domain.SkipAmbiguousDispatch}
	}

	log.Info("pipeline: application sent",
		"address", address, "score", scored.Score, "message_id", receipt.MessageID)
	return outcome{listingID: l.ID, stage: domain.StageSent, score: scored.Score}
}

// skip resolves a record into the skipped terminal state.
func (p *Pipeline) skip(ctx context.Context, policy domain.Policy, listingID, reason string) outcome {
	if _, err := p.ledger.Advance(ctx, policy.TenantID, listingID, domain.StageSkipped,
		ledger.AdvanceFields{SkipReason: reason}); err != nil {
		p.log.Error("pipeline: advance skipped failed",
			"listing_id", listingID, "reason", reason, "error", err)
	}
	return outcome{listingID: listingID, stage: domain.StageSkipped, reason: reason}
}

// skippedAfterScoring reports whether a skip reason implies the record
// made it past the scoring stage first.
func skippedAfterScoring(reason string) bool {
	switch reason {
	case domain.SkipLowScore, domain.SkipNoContactFound, domain.SkipAmbiguousDispatch,
		domain.SkipError("dispatch-rejected"), domain.SkipError("resolver"):
		return true
	}
	return false
}

func subjectFor(policy domain.Policy, l domain.Listing) string {
	if policy.EmailSubject != "" {
		return policy.EmailSubject
	}
	return "Application for " + l.Title + " at " + l.Company
}
