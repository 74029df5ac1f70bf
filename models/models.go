package models

import (
	"fmt"
	"time"
)

// Severity of a single snag. The server only ever stores one of the three
// values below; anything else is rejected at the edge.
type Severity string

const (
	SeverityMinor    Severity = "MINOR"
	SeverityModerate Severity = "MODERATE"
	SeverityMajor    Severity = "MAJOR"
)

// ParseSeverity validates a raw severity string.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityMinor, SeverityModerate, SeverityMajor:
		return Severity(s), nil
	}
	return "", fmt.Errorf("invalid severity %q", s)
}

// ReportStatus is the server-confirmed lifecycle state of a report.
type ReportStatus string

const (
	StatusAnalyzing ReportStatus = "ANALYZING"
	StatusReview    ReportStatus = "REVIEW"
	StatusPaid      ReportStatus = "PAID"
	StatusComplete  ReportStatus = "COMPLETE"
)

// PaymentStatus of a report.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "UNPAID"
	PaymentPaid   PaymentStatus = "PAID"
)

// Snag is a single defect finding, one per analyzed photo. Derived fields are
// pointers: they stay nil until analysis fills them or the user edits them.
type Snag struct {
	ID             string    `json:"id"`
	PhotoURL       string    `json:"photoUrl"`
	Room           *string   `json:"room"`
	DefectType     *string   `json:"defectType"`
	Description    *string   `json:"description"`
	Severity       *Severity `json:"severity"`
	SuggestedTrade *string   `json:"suggestedTrade"`
	RemedialAction *string   `json:"remedialAction"`
	AIConfidence   *float64  `json:"aiConfidence"`
	UserEdited     bool      `json:"userEdited"`
	DisplayOrder   int       `json:"displayOrder"`
}

// SnagUpdate is a partial snag mutation. Nil fields are left untouched.
type SnagUpdate struct {
	Room           *string   `json:"room,omitempty"`
	DefectType     *string   `json:"defectType,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Severity       *Severity `json:"severity,omitempty"`
	SuggestedTrade *string   `json:"suggestedTrade,omitempty"`
	RemedialAction *string   `json:"remedialAction,omitempty"`
}

// IsZero reports whether the update carries no changes.
func (u SnagUpdate) IsZero() bool {
	return u.Room == nil && u.DefectType == nil && u.Description == nil &&
		u.Severity == nil && u.SuggestedTrade == nil && u.RemedialAction == nil
}

// Apply copies the non-nil fields of the update onto the snag.
func (u SnagUpdate) Apply(s *Snag) {
	if u.Room != nil {
		s.Room = u.Room
	}
	if u.DefectType != nil {
		s.DefectType = u.DefectType
	}
	if u.Description != nil {
		s.Description = u.Description
	}
	if u.Severity != nil {
		s.Severity = u.Severity
	}
	if u.SuggestedTrade != nil {
		s.SuggestedTrade = u.SuggestedTrade
	}
	if u.RemedialAction != nil {
		s.RemedialAction = u.RemedialAction
	}
}

// Report is one inspection submission with its ordered snags. PDFURL stays
// empty until generation completes; its presence is the terminal condition.
type Report struct {
	ID              string        `json:"id"`
	PropertyAddress string        `json:"propertyAddress"`
	PropertyType    string        `json:"propertyType,omitempty"`
	DeveloperName   string        `json:"developerName,omitempty"`
	InspectionDate  time.Time     `json:"inspectionDate"`
	Notes           string        `json:"notes,omitempty"`
	Status          ReportStatus  `json:"status"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	PDFURL          string        `json:"pdfUrl,omitempty"`
	Snags           []Snag        `json:"snags"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// SeverityCounts is a derived view over a snag collection. It is recomputed
// from the snags every time it is needed, never stored.
type SeverityCounts struct {
	Minor    int `json:"minor"`
	Moderate int `json:"moderate"`
	Major    int `json:"major"`
}

// CountSeverities tallies the snags that have a severity assigned.
func CountSeverities(snags []Snag) SeverityCounts {
	var c SeverityCounts
	for _, s := range snags {
		if s.Severity == nil {
			continue
		}
		switch *s.Severity {
		case SeverityMinor:
			c.Minor++
		case SeverityModerate:
			c.Moderate++
		case SeverityMajor:
			c.Major++
		}
	}
	return c
}

// ReportSummary is the dashboard listing shape returned by GET /api/report.
type ReportSummary struct {
	ID              string         `json:"id"`
	PropertyAddress string         `json:"propertyAddress"`
	PropertyType    string         `json:"propertyType,omitempty"`
	InspectionDate  time.Time      `json:"inspectionDate"`
	Status          ReportStatus   `json:"status"`
	PaymentStatus   PaymentStatus  `json:"paymentStatus"`
	PDFURL          string         `json:"pdfUrl,omitempty"`
	SnagCount       int            `json:"snagCount"`
	SeverityCounts  SeverityCounts `json:"severityCounts"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// PhotoFile is one photo ready for upload: the bytes that get submitted plus
// the metadata multipart needs.
type PhotoFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ReportMeta is the property metadata part of a submission.
type ReportMeta struct {
	PropertyAddress string
	PropertyType    string
	DeveloperName   string
}

// SnagNumber formats the display number for the snag at index i, e.g. "#003".
func SnagNumber(i int) string {
	return fmt.Sprintf("#%03d", i+1)
}
