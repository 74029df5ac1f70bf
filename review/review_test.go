package review

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/jknair0/beforeeach"

	"snaglog/models"
)

// fakeServer holds the remote side of the state machine: a report whose snags
// only change when a write is accepted.
type fakeServer struct {
	mu     sync.Mutex
	report models.Report

	failUpdate bool
	failDelete bool
	failNotes  bool

	loads      int
	updates    int
	deletes    int
	notesCalls int
}

func (f *fakeServer) GetReport(ctx context.Context, reportID string) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	snapshot := f.report
	snapshot.Snags = make([]models.Snag, len(f.report.Snags))
	copy(snapshot.Snags, f.report.Snags)
	return &snapshot, nil
}

func (f *fakeServer) UpdateSnag(ctx context.Context, reportID, snagID string, upd models.SnagUpdate) (*models.Snag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.failUpdate {
		return nil, errors.New("write rejected")
	}
	for i := range f.report.Snags {
		if f.report.Snags[i].ID == snagID {
			upd.Apply(&f.report.Snags[i])
			f.report.Snags[i].UserEdited = true
			snag := f.report.Snags[i]
			return &snag, nil
		}
	}
	return nil, errors.New("snag not found")
}

func (f *fakeServer) DeleteSnag(ctx context.Context, reportID, snagID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.failDelete {
		return errors.New("delete rejected")
	}
	for i := range f.report.Snags {
		if f.report.Snags[i].ID == snagID {
			f.report.Snags = append(f.report.Snags[:i], f.report.Snags[i+1:]...)
			return nil
		}
	}
	return errors.New("snag not found")
}

func (f *fakeServer) UpdateReportNotes(ctx context.Context, reportID, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notesCalls++
	if f.failNotes {
		return errors.New("notes rejected")
	}
	f.report.Notes = notes
	return nil
}

func sev(s models.Severity) *models.Severity { return &s }

var (
	server *fakeServer
	mgr    *Manager
)

func setUp() {
	server = &fakeServer{
		report: models.Report{
			ID:              "r1",
			PropertyAddress: "47 Meadow View, Bristol",
			Status:          models.StatusReview,
			PaymentStatus:   models.PaymentUnpaid,
			Snags: []models.Snag{
				{ID: "s1", DisplayOrder: 0, Severity: sev(models.SeverityMinor)},
				{ID: "s2", DisplayOrder: 1, Severity: sev(models.SeverityMajor)},
				{ID: "s3", DisplayOrder: 2},
			},
		},
	}
	mgr = NewManager(server, "r1")
}

func tearDown() {}

var it = beforeeach.Create(setUp, tearDown)

func TestUpdateSnagOptimisticThenConfirmed(t *testing.T) {
	it(func() {
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}

		severity := models.SeverityModerate
		if err := mgr.UpdateSnag(context.Background(), "s1", models.SnagUpdate{Severity: &severity}); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		// Visible immediately after the call: new value plus userEdited.
		snag := mgr.Report().Snags[0]
		if *snag.Severity != models.SeverityModerate || !snag.UserEdited {
			t.Errorf("optimistic state wrong: severity=%v userEdited=%v", *snag.Severity, snag.UserEdited)
		}

		// A subsequent load shows the same thing.
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		loaded := mgr.Report().Snags[0]
		if *loaded.Severity != models.SeverityModerate || !loaded.UserEdited {
			t.Errorf("confirmed state diverged: severity=%v userEdited=%v", *loaded.Severity, loaded.UserEdited)
		}
	})
}

func TestUpdateSnagFailureReconcilesToServerState(t *testing.T) {
	it(func() {
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		want := mgr.Report().Snags

		server.failUpdate = true
		severity := models.SeverityMajor
		err := mgr.UpdateSnag(context.Background(), "s1", models.SnagUpdate{Severity: &severity})
		if err == nil {
			t.Fatal("expected update failure")
		}

		// After reconciliation the collection exactly equals the last
		// known-good server state: no residual optimistic artifact.
		got := mgr.Report().Snags
		if !reflect.DeepEqual(got, want) {
			t.Errorf("reconciled state diverged:\n got %+v\nwant %+v", got, want)
		}
	})
}

func TestEndToEndOptimisticRevert(t *testing.T) {
	it(func() {
		// Submission produced one snag with null derived fields.
		server.report.Snags = []models.Snag{{ID: "s1", DisplayOrder: 0}}
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if mgr.Report().Snags[0].Severity != nil {
			t.Fatal("pre-analysis snag must have null severity")
		}

		// Analysis fills severity MINOR out of band.
		server.mu.Lock()
		server.report.Snags[0].Severity = sev(models.SeverityMinor)
		server.mu.Unlock()
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		if *mgr.Report().Snags[0].Severity != models.SeverityMinor {
			t.Fatal("analysis result not visible")
		}

		// User edit to MAJOR is applied optimistically but the write fails:
		// the server still holds MINOR, so reconciliation must revert.
		server.failUpdate = true
		severity := models.SeverityMajor
		if err := mgr.UpdateSnag(context.Background(), "s1", models.SnagUpdate{Severity: &severity}); err == nil {
			t.Fatal("expected write failure")
		}
		got := mgr.Report().Snags[0]
		if *got.Severity != models.SeverityMinor {
			t.Errorf("severity must revert to MINOR after failed write, got %v", *got.Severity)
		}
		if got.UserEdited {
			t.Error("userEdited must revert with the reconciliation")
		}
	})
}

func TestDeleteSnagRequiresConfirmation(t *testing.T) {
	it(func() {
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}

		if err := mgr.DeleteSnag(context.Background(), "s1", func() bool { return false }); err != nil {
			t.Fatalf("declined confirmation is not an error: %v", err)
		}
		if server.deletes != 0 {
			t.Error("declined delete must not reach the server")
		}
		if mgr.SnagCount() != 3 {
			t.Errorf("declined delete must not touch local state, count=%d", mgr.SnagCount())
		}
	})
}

func TestDeleteSnagOptimisticRemoval(t *testing.T) {
	it(func() {
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}

		if err := mgr.DeleteSnag(context.Background(), "s2", func() bool { return true }); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if mgr.SnagCount() != 2 {
			t.Errorf("expected 2 snags after delete, got %d", mgr.SnagCount())
		}
		// Display order of the survivors is stable.
		snags := mgr.Report().Snags
		if snags[0].ID != "s1" || snags[1].ID != "s3" {
			t.Errorf("snag order disturbed: %+v", snags)
		}
	})
}

func TestDeleteSnagFailureReconciles(t *testing.T) {
	it(func() {
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}

		server.failDelete = true
		if err := mgr.DeleteSnag(context.Background(), "s2", func() bool { return true }); err == nil {
			t.Fatal("expected delete failure")
		}
		if mgr.SnagCount() != 3 {
			t.Errorf("failed delete must restore the snag, count=%d", mgr.SnagCount())
		}
	})
}

func TestSeverityCountsDerivedView(t *testing.T) {
	it(func() {
		server.report.Snags = []models.Snag{
			{ID: "1", Severity: sev(models.SeverityMajor)},
			{ID: "2", Severity: sev(models.SeverityMajor)},
			{ID: "3", Severity: sev(models.SeverityMinor)},
			{ID: "4", Severity: sev(models.SeverityModerate)},
		}
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}

		counts := mgr.SeverityCounts()
		if counts.Major != 2 || counts.Moderate != 1 || counts.Minor != 1 {
			t.Errorf("expected {major:2, moderate:1, minor:1}, got %+v", counts)
		}
		if !mgr.ReadyToPay() {
			t.Error("checkout gate must be enabled with snags present")
		}
	})
}

func TestReadyToPayGateBlocksEmptyReport(t *testing.T) {
	it(func() {
		server.report.Snags = nil
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if mgr.ReadyToPay() {
			t.Error("report with zero snags cannot proceed to payment")
		}
	})
}

func TestNotesDirtyAndFlush(t *testing.T) {
	it(func() {
		if err := mgr.Load(context.Background()); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if mgr.NotesDirty() {
			t.Error("freshly loaded notes are clean")
		}

		mgr.SetNotes("Front door frame scratched")
		if !mgr.NotesDirty() {
			t.Error("changed notes must be dirty")
		}

		if err := mgr.FlushNotes(context.Background()); err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if mgr.NotesDirty() {
			t.Error("flushed notes are clean")
		}
		if server.report.Notes != "Front door frame scratched" {
			t.Errorf("notes not persisted, got %q", server.report.Notes)
		}

		// Flushing clean notes is a no-op.
		callsBefore := server.notesCalls
		if err := mgr.FlushNotes(context.Background()); err != nil {
			t.Fatalf("no-op flush failed: %v", err)
		}
		if server.notesCalls != callsBefore {
			t.Error("no-op flush must not call the server")
		}
	})
}

func TestMutationBeforeLoad(t *testing.T) {
	it(func() {
		severity := models.SeverityMinor
		if err := mgr.UpdateSnag(context.Background(), "s1", models.SnagUpdate{Severity: &severity}); !errors.Is(err, ErrNotLoaded) {
			t.Errorf("expected ErrNotLoaded, got %v", err)
		}
	})
}
