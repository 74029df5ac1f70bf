// Package generation waits for the paid report's document to be produced.
// It is a small state machine: VERIFYING, then either straight to COMPLETE,
// or GENERATING with a bounded polling loop that ends in COMPLETE or ERROR.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"

	"snaglog/metrics"
	"snaglog/models"
)

// State of the generation wait.
type State string

const (
	StateVerifying  State = "VERIFYING"
	StateGenerating State = "GENERATING"
	StateComplete   State = "COMPLETE"
	StateError      State = "ERROR"
)

// ErrGenerationTimeout means the polling budget ran out before the document
// appeared. Recoverable condition, not data loss: the report stays paid and
// support can re-trigger generation.
var ErrGenerationTimeout = errors.New("document generation timed out")

// ErrPaymentNotCompleted means the status path was entered without a
// confirmed payment.
var ErrPaymentNotCompleted = errors.New("payment not completed")

// API is the slice of the remote client the poller needs.
type API interface {
	VerifyPayment(ctx context.Context, reportID, sessionID string) (string, error)
	PaymentStatus(ctx context.Context, reportID string) (*models.Report, error)
}

// Poller waits for one report's document. It remembers its terminal state:
// re-entering after COMPLETE short-circuits without re-verifying payment or
// re-polling.
type Poller struct {
	api      API
	reportID string
	interval time.Duration
	attempts int

	// sleep is swapped out by tests; production waits on a timer honoring
	// context cancellation.
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	state  State
	pdfURL string
	err    error
}

// NewPoller creates a poller with the given fixed interval and bounded
// attempt count.
func NewPoller(api API, reportID string, interval time.Duration, attempts int) *Poller {
	return &Poller{
		api:      api,
		reportID: reportID,
		interval: interval,
		attempts: attempts,
		sleep:    sleepCtx,
	}
}

// State returns the current state of the wait.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PDFURL returns the document reference once COMPLETE, else "".
func (p *Poller) PDFURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pdfURL
}

// Err returns the reason for the ERROR state, else nil.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Verify is the entry path for a fresh return from payment carrying a session
// reference. It exchanges the session for a confirmed outcome, then either
// completes immediately or starts polling.
func (p *Poller) Verify(ctx context.Context, sessionID string) (State, error) {
	if s, done := p.terminal(); done {
		return s, p.Err()
	}

	p.setState(StateVerifying)
	pdfURL, err := p.api.VerifyPayment(ctx, p.reportID, sessionID)
	if err != nil {
		return p.fail(fmt.Errorf("payment verification failed: %w", err))
	}
	if pdfURL != "" {
		return p.complete(pdfURL), nil
	}

	p.setState(StateGenerating)
	return p.poll(ctx)
}

// CheckStatus is the idempotent re-entry path for navigation without a
// session reference. One status fetch decides: document present means
// COMPLETE, confirmed payment means GENERATING and a polling loop, anything
// else is an error.
func (p *Poller) CheckStatus(ctx context.Context) (State, error) {
	if s, done := p.terminal(); done {
		return s, p.Err()
	}

	report, err := p.api.PaymentStatus(ctx, p.reportID)
	if err != nil {
		return p.fail(fmt.Errorf("failed to check report status: %w", err))
	}
	if report.PDFURL != "" {
		return p.complete(report.PDFURL), nil
	}
	if report.PaymentStatus == models.PaymentPaid {
		p.setState(StateGenerating)
		return p.poll(ctx)
	}
	return p.fail(ErrPaymentNotCompleted)
}

// poll re-fetches status on a fixed interval until the document appears or
// the attempt budget is exhausted. The first attempt seeing a document wins
// and stops the loop.
func (p *Poller) poll(ctx context.Context) (State, error) {
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := p.sleep(ctx, p.interval); err != nil {
			return p.fail(fmt.Errorf("generation wait cancelled: %w", err))
		}

		report, err := p.api.PaymentStatus(ctx, p.reportID)
		if err != nil {
			// Transient poll errors spend an attempt but do not end
			// the loop.
			metrics.PollAttemptsTotal.WithLabelValues("error").Inc()
			log.Warnf("Poll attempt %d/%d failed: %v", attempt, p.attempts, err)
			continue
		}
		if report.PDFURL != "" {
			metrics.PollAttemptsTotal.WithLabelValues("ready").Inc()
			return p.complete(report.PDFURL), nil
		}
		metrics.PollAttemptsTotal.WithLabelValues("pending").Inc()
	}
	return p.fail(ErrGenerationTimeout)
}

// terminal reports whether the wait already completed. Only COMPLETE is
// sticky: an ERROR state stays re-enterable so the user can retry.
func (p *Poller) terminal() (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.state == StateComplete
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Poller) complete(pdfURL string) State {
	p.mu.Lock()
	p.state = StateComplete
	p.pdfURL = pdfURL
	p.err = nil
	p.mu.Unlock()
	log.Infof("Report %s document ready: %s", p.reportID, pdfURL)
	return StateComplete
}

func (p *Poller) fail(err error) (State, error) {
	p.mu.Lock()
	p.state = StateError
	p.err = err
	p.mu.Unlock()
	log.Errorf("Generation wait for report %s ended in error: %v", p.reportID, err)
	return StateError, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
