// Package review holds the authoritative in-memory copy of a report and its
// snags during the edit loop. Mutations are applied optimistically and rolled
// back by a full reload whenever the remote write fails: the visible state is
// always either the last reconciled server state or that state plus the
// optimistic mutations still in flight.
package review

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apex/log"

	"snaglog/models"
)

// ErrNotLoaded is returned when a mutation is attempted before Load.
var ErrNotLoaded = errors.New("no report loaded")

// ErrSnagNotFound is returned when the target snag is not in the current
// collection.
var ErrSnagNotFound = errors.New("snag not found")

// API is the slice of the remote client the manager mutates through.
type API interface {
	GetReport(ctx context.Context, reportID string) (*models.Report, error)
	UpdateSnag(ctx context.Context, reportID, snagID string, upd models.SnagUpdate) (*models.Snag, error)
	DeleteSnag(ctx context.Context, reportID, snagID string) error
	UpdateReportNotes(ctx context.Context, reportID, notes string) error
}

// Manager owns the only mutable copy of the report under review. All other
// components read snapshots or request mutation through it.
type Manager struct {
	api      API
	reportID string

	mu         sync.Mutex
	report     *models.Report
	savedNotes string
}

// NewManager creates a review manager for one report.
func NewManager(api API, reportID string) *Manager {
	return &Manager{api: api, reportID: reportID}
}

// Load fetches the full report with ordered snags. It is the single source of
// truth refresh: both the initial load and every post-failure reconciliation
// go through here.
func (m *Manager) Load(ctx context.Context) error {
	report, err := m.api.GetReport(ctx, m.reportID)
	if err != nil {
		return fmt.Errorf("failed to load report %s: %w", m.reportID, err)
	}

	m.mu.Lock()
	m.report = report
	m.savedNotes = report.Notes
	m.mu.Unlock()

	log.Infof("Loaded report %s: status=%s snags=%d", report.ID, report.Status, len(report.Snags))
	return nil
}

// Report returns a snapshot copy of the current report, or nil before Load.
// Callers can render from it freely without racing the edit loop.
func (m *Manager) Report() *models.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.report == nil {
		return nil
	}
	snapshot := *m.report
	snapshot.Snags = make([]models.Snag, len(m.report.Snags))
	copy(snapshot.Snags, m.report.Snags)
	return &snapshot
}

// UpdateSnag applies the partial update to the in-memory snag immediately,
// marks it user-edited, then issues the remote write. On remote failure the
// optimistic copy is discarded and the whole report is reloaded, so local
// state never stays diverged from a known-bad write.
func (m *Manager) UpdateSnag(ctx context.Context, snagID string, upd models.SnagUpdate) error {
	m.mu.Lock()
	if m.report == nil {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	idx := m.snagIndexLocked(snagID)
	if idx < 0 {
		m.mu.Unlock()
		return ErrSnagNotFound
	}
	upd.Apply(&m.report.Snags[idx])
	m.report.Snags[idx].UserEdited = true
	m.mu.Unlock()

	if _, err := m.api.UpdateSnag(ctx, m.reportID, snagID, upd); err != nil {
		log.Warnf("Snag %s update rejected, reconciling: %v", snagID, err)
		m.reconcile(ctx)
		return fmt.Errorf("failed to update snag %s: %w", snagID, err)
	}
	return nil
}

// DeleteSnag removes a snag. Deletion is destructive, so it only proceeds
// when confirm returns true; otherwise nothing happens and nil is returned.
// On remote failure the collection is reconciled by reload.
func (m *Manager) DeleteSnag(ctx context.Context, snagID string, confirm func() bool) error {
	if confirm != nil && !confirm() {
		return nil
	}

	m.mu.Lock()
	if m.report == nil {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	idx := m.snagIndexLocked(snagID)
	if idx < 0 {
		m.mu.Unlock()
		return ErrSnagNotFound
	}
	m.report.Snags = append(m.report.Snags[:idx], m.report.Snags[idx+1:]...)
	m.mu.Unlock()

	if err := m.api.DeleteSnag(ctx, m.reportID, snagID); err != nil {
		log.Warnf("Snag %s delete rejected, reconciling: %v", snagID, err)
		m.reconcile(ctx)
		return fmt.Errorf("failed to delete snag %s: %w", snagID, err)
	}
	return nil
}

// SetNotes updates the local free-text notes without a network call. The
// change is pushed by FlushNotes, typically right before checkout.
func (m *Manager) SetNotes(notes string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.report != nil {
		m.report.Notes = notes
	}
}

// NotesDirty reports whether local notes differ from the last saved value.
func (m *Manager) NotesDirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report != nil && m.report.Notes != m.savedNotes
}

// FlushNotes persists the local notes if they changed since the last save.
func (m *Manager) FlushNotes(ctx context.Context) error {
	m.mu.Lock()
	if m.report == nil {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	notes := m.report.Notes
	dirty := notes != m.savedNotes
	m.mu.Unlock()

	if !dirty {
		return nil
	}
	if err := m.api.UpdateReportNotes(ctx, m.reportID, notes); err != nil {
		return fmt.Errorf("failed to save notes: %w", err)
	}

	m.mu.Lock()
	m.savedNotes = notes
	m.mu.Unlock()
	return nil
}

// SeverityCounts recomputes the severity tally from the current snag
// collection. Derived view, never persisted.
func (m *Manager) SeverityCounts() models.SeverityCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.report == nil {
		return models.SeverityCounts{}
	}
	return models.CountSeverities(m.report.Snags)
}

// SnagCount returns the current number of snags.
func (m *Manager) SnagCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.report == nil {
		return 0
	}
	return len(m.report.Snags)
}

// ReadyToPay is the checkout gate: a report with zero snags cannot proceed to
// payment.
func (m *Manager) ReadyToPay() bool {
	return m.SnagCount() > 0
}

// Status returns the server-confirmed lifecycle status from the last load.
func (m *Manager) Status() models.ReportStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.report == nil {
		return ""
	}
	return m.report.Status
}

// reconcile discards local state and reloads. Reconciliation is total by
// design: always discard-and-reload, never a partial merge.
func (m *Manager) reconcile(ctx context.Context) {
	if err := m.Load(ctx); err != nil {
		log.Errorf("Reconciliation reload failed for report %s: %v", m.reportID, err)
	}
}

func (m *Manager) snagIndexLocked(snagID string) int {
	for i, s := range m.report.Snags {
		if s.ID == snagID {
			return i
		}
	}
	return -1
}
