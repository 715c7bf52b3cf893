// Package scan implements C11: the batch-driven history-scan controller.
package scan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailtriage/core/domain"
	"mailtriage/core/eventlog"
	"mailtriage/core/orchestrator"
	"mailtriage/core/port/out"
	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/resilience"
)

const defaultBatchSize = 50

// Controller is C11: drives the orchestrator in batches over a
// caller-provided query, with pause/resume/cancel and ETA reporting.
type Controller struct {
	states    out.ScanStateRepository
	processed out.ProcessedEmailRepository
	provider  out.MailProvider
	pipeline  *orchestrator.Orchestrator
	events    *eventlog.Log

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

func NewController(states out.ScanStateRepository, processed out.ProcessedEmailRepository, provider out.MailProvider, pipeline *orchestrator.Orchestrator, events *eventlog.Log) *Controller {
	return &Controller{
		states:    states,
		processed: processed,
		provider:  provider,
		pipeline:  pipeline,
		events:    events,
		breakers:  make(map[string]*resilience.CircuitBreaker),
	}
}

// Start creates a new scan and begins driving it in the background,
// returning immediately with the scan's ID (spec.md §4.11).
func (c *Controller) Start(ctx context.Context, cfg domain.ScanConfig) (string, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	scanID := uuid.NewString()
	now := time.Now().UTC()
	state := &domain.ScanState{
		ScanID:        scanID,
		AccountID:     cfg.AccountID,
		Config:        cfg,
		Status:        domain.ScanInProgress,
		StartedAt:     now,
		LastUpdatedAt: now,
	}
	if err := c.states.Create(ctx, state); err != nil {
		return "", err
	}
	c.appendScanEvent(ctx, domain.EventHistoryScanStarted, cfg.AccountID, scanID, nil)

	go c.run(scanID)
	return scanID, nil
}

func (c *Controller) Get(ctx context.Context, scanID string) (*domain.ScanState, error) {
	return c.states.Get(ctx, scanID)
}

// Pause flips a running scan to paused; the driving loop observes this at
// the next batch boundary (latency <= one batch, per spec.md §4.11).
func (c *Controller) Pause(ctx context.Context, scanID string) error {
	return c.flip(ctx, scanID, domain.ScanInProgress, domain.ScanPaused, domain.EventHistoryScanPaused)
}

// Resume restarts a paused scan's background loop from its checkpoint.
// Resuming a cancelled scan is rejected (cancel is terminal).
func (c *Controller) Resume(ctx context.Context, scanID string) error {
	state, err := c.states.Get(ctx, scanID)
	if err != nil {
		return err
	}
	if !state.Resumable() {
		return apperr.InvariantViolation("scan is not in a resumable state")
	}
	state.Status = domain.ScanInProgress
	state.LastUpdatedAt = time.Now().UTC()
	if err := c.states.Save(ctx, state); err != nil {
		return err
	}
	c.appendScanEvent(ctx, domain.EventHistoryScanResumed, state.AccountID, scanID, nil)
	go c.run(scanID)
	return nil
}

// Cancel is terminal; resume after cancel is always rejected.
func (c *Controller) Cancel(ctx context.Context, scanID string) error {
	state, err := c.states.Get(ctx, scanID)
	if err != nil {
		return err
	}
	if state.Status == domain.ScanCompleted || state.Status == domain.ScanCancelled {
		return apperr.InvariantViolation("scan has already reached a terminal state")
	}
	state.Status = domain.ScanCancelled
	state.LastUpdatedAt = time.Now().UTC()
	if err := c.states.Save(ctx, state); err != nil {
		return err
	}
	c.appendScanEvent(ctx, domain.EventHistoryScanCancelled, state.AccountID, scanID, nil)
	return nil
}

// ETA returns the estimated remaining duration for a running scan, based on
// a moving rate over the last domain.ETAWindow batches.
func ETA(state *domain.ScanState) time.Duration {
	if len(state.RecentBatchDurations) == 0 || state.Counters.Total <= state.Counters.Processed {
		return 0
	}
	var sum time.Duration
	n := state.RecentBatchDurations
	if len(n) > domain.ETAWindow {
		n = n[len(n)-domain.ETAWindow:]
	}
	for _, d := range n {
		sum += d
	}
	avgPerBatch := sum / time.Duration(len(n))
	remainingBatches := (state.Counters.Total - state.Counters.Processed + state.Config.BatchSize - 1) / max(1, state.Config.BatchSize)
	return avgPerBatch * time.Duration(remainingBatches)
}

func (c *Controller) breakerFor(scanID string) *resilience.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[scanID]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
		Name:             "scan-" + scanID,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})
	c.breakers[scanID] = cb
	return cb
}

// run drives one scan's batches until it pauses, finishes, is cancelled, or
// aborts on repeated transport errors. It is always invoked on its own
// goroutine by Start/Resume.
func (c *Controller) run(scanID string) {
	ctx := context.Background()
	breaker := c.breakerFor(scanID)

	for {
		state, err := c.states.Get(ctx, scanID)
		if err != nil {
			logger.WithField("scan_id", scanID).WithError(err).Error("failed to load scan state, aborting run loop")
			return
		}
		if state.Status != domain.ScanInProgress {
			return
		}

		batchStart := time.Now()
		fetchErr := breaker.Execute(func() error {
			return c.runBatch(ctx, state)
		})
		batchDuration := time.Since(batchStart)

		state.RecentBatchDurations = append(state.RecentBatchDurations, batchDuration)
		if len(state.RecentBatchDurations) > domain.ETAWindow {
			state.RecentBatchDurations = state.RecentBatchDurations[len(state.RecentBatchDurations)-domain.ETAWindow:]
		}
		state.LastUpdatedAt = time.Now().UTC()

		if fetchErr != nil {
			state.Counters.Failed++
			if breaker.State() == resilience.StateOpen {
				msg := fetchErr.Error()
				state.Status = domain.ScanFailed
				state.Error = &msg
				_ = c.states.Save(ctx, state)
				c.appendScanEvent(ctx, domain.EventHistoryScanError, state.AccountID, scanID, map[string]interface{}{"error": msg})
				return
			}
			_ = c.states.Save(ctx, state)
			continue
		}

		if err := c.states.Save(ctx, state); err != nil {
			logger.WithField("scan_id", scanID).WithError(err).Error("failed to checkpoint scan state")
			return
		}

		if state.NextPageToken == "" {
			state.Status = domain.ScanCompleted
			_ = c.states.Save(ctx, state)
			c.appendScanEvent(ctx, domain.EventHistoryScanCompleted, state.AccountID, scanID, map[string]interface{}{"processed": state.Counters.Processed})
			return
		}
	}
}

// runBatch fetches and processes one page of messages, mutating state in
// place. Per-message failures are counted but never abort the batch;
// a batch-level transport failure is returned so the caller's circuit
// breaker can count it toward the 5-consecutive-failure abort rule.
func (c *Controller) runBatch(ctx context.Context, state *domain.ScanState) error {
	page, err := c.provider.FetchNew(ctx, state.AccountID, state.Config.Query, state.NextPageToken)
	if err != nil {
		return apperr.TransientTransport("scan batch fetch failed", err)
	}

	if state.Counters.Total == 0 {
		state.Counters.Total = page.Total
	}
	state.NextPageToken = page.NextPageToken

	for _, ref := range page.Messages {
		if state.Config.SkipAlreadyProcessed {
			exists, err := c.processed.Exists(ctx, state.AccountID, ref.EmailID)
			if err == nil && exists {
				state.Counters.Skipped++
				continue
			}
		}

		body, err := c.provider.FetchBody(ctx, state.AccountID, ref.EmailID)
		if err != nil {
			state.Counters.Failed++
			continue
		}
		if _, err := c.pipeline.ProcessMessage(ctx, state.AccountID, ref, body); err != nil {
			state.Counters.Failed++
			continue
		}
		state.Counters.Processed++
		state.LastProcessedEmailID = ref.EmailID
	}
	return nil
}

func (c *Controller) flip(ctx context.Context, scanID string, from, to domain.ScanStatus, eventType domain.EventType) error {
	state, err := c.states.Get(ctx, scanID)
	if err != nil {
		return err
	}
	if state.Status != from {
		return apperr.InvariantViolation("scan is not in the expected state for this transition")
	}
	state.Status = to
	state.LastUpdatedAt = time.Now().UTC()
	if err := c.states.Save(ctx, state); err != nil {
		return err
	}
	c.appendScanEvent(ctx, eventType, state.AccountID, scanID, nil)
	return nil
}

func (c *Controller) appendScanEvent(ctx context.Context, eventType domain.EventType, accountID, scanID string, extra map[string]interface{}) {
	payload := map[string]interface{}{"scan_id": scanID}
	for k, v := range extra {
		payload[k] = v
	}
	if _, err := c.events.Append(ctx, eventType, accountID, nil, payload, nil); err != nil {
		logger.WithField("scan_id", scanID).WithError(err).Warn("failed to append scan event")
	}
}
