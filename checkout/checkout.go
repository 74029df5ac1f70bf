// Package checkout initiates payment for a reviewed report. Creating a
// session and navigating to it is a one-way handoff: control returns only via
// the success URL, which the return listener captures.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/shopspring/decimal"
)

// ErrNoSnags blocks checkout for a report with an empty snag collection.
var ErrNoSnags = errors.New("report has no snags to pay for")

// API is the slice of the remote client used for checkout.
type API interface {
	CreateCheckout(ctx context.Context, reportID string) (string, error)
}

// Review is what the orchestrator needs from the review state manager: the
// gate and the unsaved-notes flush.
type Review interface {
	ReadyToPay() bool
	NotesDirty() bool
	FlushNotes(ctx context.Context) error
}

// Navigator hands the client off to the payment processor's checkout page.
type Navigator interface {
	Navigate(url string) error
}

// Orchestrator drives the checkout flow for one report.
type Orchestrator struct {
	api    API
	review Review
	nav    Navigator
	price  decimal.Decimal
}

// New creates a checkout orchestrator. price is the one-time report price in
// GBP.
func New(api API, review Review, nav Navigator, price decimal.Decimal) *Orchestrator {
	return &Orchestrator{api: api, review: review, nav: nav, price: price}
}

// Price returns the one-time report price.
func (o *Orchestrator) Price() decimal.Decimal {
	return o.price
}

// FormatPrice renders the price for display, e.g. "£19.99".
func (o *Orchestrator) FormatPrice() string {
	return "£" + o.price.StringFixed(2)
}

// Checkout persists unsaved notes, requests a payment session and navigates
// to its URL. Any failure surfaces an error and does not navigate away.
func (o *Orchestrator) Checkout(ctx context.Context, reportID string) error {
	if !o.review.ReadyToPay() {
		return ErrNoSnags
	}

	if o.review.NotesDirty() {
		if err := o.review.FlushNotes(ctx); err != nil {
			return fmt.Errorf("failed to save notes before checkout: %w", err)
		}
	}

	url, err := o.api.CreateCheckout(ctx, reportID)
	if err != nil {
		return fmt.Errorf("failed to create checkout session: %w", err)
	}

	log.Infof("Checkout session created for report %s (%s), handing off", reportID, o.FormatPrice())
	if err := o.nav.Navigate(url); err != nil {
		return fmt.Errorf("failed to open checkout page: %w", err)
	}
	return nil
}
