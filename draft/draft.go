// Package draft holds the in-progress, unsubmitted report form state and
// turns it into a single atomic submission.
package draft

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex/log"

	"snaglog/intake"
	"snaglog/models"
)

// ValidationError is a local, field-scoped rejection. No network call is made
// when validation fails.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ReportCreator is the slice of the API client the builder submits through.
type ReportCreator interface {
	CreateReport(ctx context.Context, meta models.ReportMeta, photos []models.PhotoFile) (*models.Report, error)
}

// BulkAnalyzer triggers whole-report analysis right after submission.
type BulkAnalyzer interface {
	AnalyzeAll(ctx context.Context, reportID string) error
}

// Builder collects property metadata and intake photos. After a successful
// Submit the builder's job is done; it is never re-entered.
type Builder struct {
	PropertyAddress string
	PropertyType    string
	DeveloperName   string

	photos   *intake.Intake
	api      ReportCreator
	analyzer BulkAnalyzer
}

// New creates a builder around the given intake.
func New(photos *intake.Intake, api ReportCreator, analyzer BulkAnalyzer) *Builder {
	return &Builder{photos: photos, api: api, analyzer: analyzer}
}

// Photos exposes the intake for accepting and removing files.
func (b *Builder) Photos() *intake.Intake {
	return b.photos
}

// Validate checks the draft locally. It returns a ValidationError naming the
// offending field, or nil.
func (b *Builder) Validate() error {
	if strings.TrimSpace(b.PropertyAddress) == "" {
		return &ValidationError{Field: "propertyAddress", Message: "property address is required"}
	}
	if b.photos.Count() == 0 {
		return &ValidationError{Field: "photos", Message: "at least one photo is required"}
	}
	return nil
}

// Submit validates the draft and submits it as one atomic request, then
// triggers bulk analysis for the created report. A failed analysis trigger is
// non-fatal: the report exists and its snags simply stay pending, so the
// created report is returned either way. Any submission failure leaves the
// draft fully intact for retry.
func (b *Builder) Submit(ctx context.Context) (*models.Report, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	meta := models.ReportMeta{
		PropertyAddress: strings.TrimSpace(b.PropertyAddress),
		PropertyType:    b.PropertyType,
		DeveloperName:   b.DeveloperName,
	}

	report, err := b.api.CreateReport(ctx, meta, b.photos.Files())
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	if err := b.analyzer.AnalyzeAll(ctx, report.ID); err != nil {
		log.Warnf("Bulk analysis trigger failed for report %s, snags stay pending: %v", report.ID, err)
	}

	return report, nil
}
