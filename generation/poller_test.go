package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"snaglog/models"
)

type fakeAPI struct {
	verifyPDF   string
	verifyErr   error
	verifyCalls int
	statusCalls int
	statusFn    func(call int) (*models.Report, error)
}

func (f *fakeAPI) VerifyPayment(ctx context.Context, reportID, sessionID string) (string, error) {
	f.verifyCalls++
	return f.verifyPDF, f.verifyErr
}

func (f *fakeAPI) PaymentStatus(ctx context.Context, reportID string) (*models.Report, error) {
	f.statusCalls++
	return f.statusFn(f.statusCalls)
}

func neverReady(call int) (*models.Report, error) {
	return &models.Report{ID: "r1", PaymentStatus: models.PaymentPaid}, nil
}

// newTestPoller uses a recording no-op sleep so the polling loop runs
// instantly while the requested spacing stays observable.
func newTestPoller(api API, interval time.Duration, attempts int) (*Poller, *[]time.Duration) {
	p := NewPoller(api, "r1", interval, attempts)
	var waits []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return p, &waits
}

func TestVerifyImmediateComplete(t *testing.T) {
	api := &fakeAPI{verifyPDF: "https://cdn/report.pdf"}
	p, _ := newTestPoller(api, 2*time.Second, 30)

	state, err := p.Verify(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateComplete {
		t.Errorf("expected COMPLETE, got %s", state)
	}
	if p.PDFURL() != "https://cdn/report.pdf" {
		t.Errorf("pdf url not captured: %s", p.PDFURL())
	}
	if api.statusCalls != 0 {
		t.Error("immediate completion must not poll")
	}
}

func TestVerifyFailureIsError(t *testing.T) {
	api := &fakeAPI{verifyErr: errors.New("processor unreachable")}
	p, _ := newTestPoller(api, 2*time.Second, 30)

	state, err := p.Verify(context.Background(), "cs_1")
	if state != StateError || err == nil {
		t.Errorf("expected ERROR with reason, got %s %v", state, err)
	}
}

func TestVerifyThenPollUntilReady(t *testing.T) {
	api := &fakeAPI{
		statusFn: func(call int) (*models.Report, error) {
			if call < 3 {
				return &models.Report{ID: "r1", PaymentStatus: models.PaymentPaid}, nil
			}
			return &models.Report{ID: "r1", PaymentStatus: models.PaymentPaid, PDFURL: "https://cdn/r1.pdf"}, nil
		},
	}
	p, waits := newTestPoller(api, 2*time.Second, 30)

	state, err := p.Verify(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateComplete {
		t.Errorf("expected COMPLETE, got %s", state)
	}
	if api.statusCalls != 3 {
		t.Errorf("first attempt seeing the document wins: expected 3 fetches, got %d", api.statusCalls)
	}
	for i, d := range *waits {
		if d != 2*time.Second {
			t.Errorf("wait %d: expected fixed 2s interval, got %v", i, d)
		}
	}
}

func TestPollingTerminatesAfterExactly30Attempts(t *testing.T) {
	api := &fakeAPI{statusFn: neverReady}
	p, waits := newTestPoller(api, 2*time.Second, 30)

	state, err := p.Verify(context.Background(), "cs_1")
	if state != StateError {
		t.Fatalf("expected ERROR, got %s", state)
	}
	if !errors.Is(err, ErrGenerationTimeout) {
		t.Fatalf("expected ErrGenerationTimeout, got %v", err)
	}
	if api.statusCalls != 30 {
		t.Errorf("expected exactly 30 attempts, got %d", api.statusCalls)
	}
	if len(*waits) != 30 {
		t.Errorf("expected a wait before each attempt, got %d", len(*waits))
	}
}

func TestPollErrorsSpendAttemptsWithoutEndingLoop(t *testing.T) {
	api := &fakeAPI{
		statusFn: func(call int) (*models.Report, error) {
			if call == 1 {
				return nil, errors.New("blip")
			}
			return &models.Report{ID: "r1", PDFURL: "https://cdn/r1.pdf"}, nil
		},
	}
	p, _ := newTestPoller(api, 2*time.Second, 30)

	state, err := p.Verify(context.Background(), "cs_1")
	if err != nil || state != StateComplete {
		t.Errorf("transient poll error must not end the loop, got %s %v", state, err)
	}
}

func TestCheckStatusComplete(t *testing.T) {
	api := &fakeAPI{
		statusFn: func(call int) (*models.Report, error) {
			return &models.Report{ID: "r1", PaymentStatus: models.PaymentPaid, PDFURL: "https://cdn/r1.pdf"}, nil
		},
	}
	p, _ := newTestPoller(api, 2*time.Second, 30)

	// Idempotent re-entry: the first call fetches once and completes, later
	// calls short-circuit without touching the API.
	for i := 1; i <= 3; i++ {
		state, err := p.CheckStatus(context.Background())
		if err != nil || state != StateComplete {
			t.Fatalf("call %d: expected COMPLETE, got %s %v", i, state, err)
		}
	}
	if api.statusCalls != 1 {
		t.Errorf("expected a single status fetch, got %d", api.statusCalls)
	}
	if api.verifyCalls != 0 {
		t.Error("checkStatus must never verify payment")
	}
}

func TestCheckStatusUnpaidIsError(t *testing.T) {
	api := &fakeAPI{
		statusFn: func(call int) (*models.Report, error) {
			return &models.Report{ID: "r1", PaymentStatus: models.PaymentUnpaid}, nil
		},
	}
	p, _ := newTestPoller(api, 2*time.Second, 30)

	state, err := p.CheckStatus(context.Background())
	if state != StateError {
		t.Fatalf("expected ERROR, got %s", state)
	}
	if !errors.Is(err, ErrPaymentNotCompleted) {
		t.Errorf("expected ErrPaymentNotCompleted, got %v", err)
	}
}

func TestCheckStatusPaidStartsPolling(t *testing.T) {
	api := &fakeAPI{
		statusFn: func(call int) (*models.Report, error) {
			if call == 1 {
				return &models.Report{ID: "r1", PaymentStatus: models.PaymentPaid}, nil
			}
			return &models.Report{ID: "r1", PaymentStatus: models.PaymentPaid, PDFURL: "https://cdn/r1.pdf"}, nil
		},
	}
	p, _ := newTestPoller(api, 2*time.Second, 30)

	state, err := p.CheckStatus(context.Background())
	if err != nil || state != StateComplete {
		t.Fatalf("expected COMPLETE after polling, got %s %v", state, err)
	}
	if api.statusCalls < 2 {
		t.Error("paid without document must enter the polling loop")
	}
}

func TestReentryAfterCompleteShortCircuits(t *testing.T) {
	api := &fakeAPI{verifyPDF: "https://cdn/r1.pdf"}
	p, _ := newTestPoller(api, 2*time.Second, 30)

	if _, err := p.Verify(context.Background(), "cs_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Page-reload equivalent: no re-verification, no polling.
	state, err := p.Verify(context.Background(), "cs_1")
	if err != nil || state != StateComplete {
		t.Fatalf("expected cached COMPLETE, got %s %v", state, err)
	}
	if api.verifyCalls != 1 {
		t.Errorf("expected single verification, got %d", api.verifyCalls)
	}
	if api.statusCalls != 0 {
		t.Errorf("expected no polling after completion, got %d", api.statusCalls)
	}
}

func TestErrorStateStaysRetryable(t *testing.T) {
	api := &fakeAPI{verifyErr: errors.New("blip")}
	p, _ := newTestPoller(api, 2*time.Second, 30)

	if state, _ := p.Verify(context.Background(), "cs_1"); state != StateError {
		t.Fatalf("expected ERROR")
	}

	api.verifyErr = nil
	api.verifyPDF = "https://cdn/r1.pdf"
	state, err := p.Verify(context.Background(), "cs_1")
	if err != nil || state != StateComplete {
		t.Errorf("retry after error must be allowed, got %s %v", state, err)
	}
}

func TestPollCancellation(t *testing.T) {
	api := &fakeAPI{statusFn: neverReady}
	p := NewPoller(api, "r1", 2*time.Second, 30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	state, err := p.Verify(ctx, "cs_1")
	if state != StateError || err == nil {
		t.Errorf("cancelled wait must end in ERROR, got %s %v", state, err)
	}
}
