// Package client implements the REST client for the snaglog remote API. It is
// a thin transport: every state decision based on the data it returns lives in
// the orchestrating packages.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/apex/log"

	"snaglog/auth"
	"snaglog/metrics"
	"snaglog/models"
)

// Endpoint paths on the remote API.
const (
	EndpointReports = "/api/report"
	EndpointUpload  = "/api/upload"
	EndpointAnalyze = "/api/analyze"
	EndpointPayment = "/api/payment"
	contentTypeJSON = "application/json"
	defaultTimeout  = 30 * time.Second
)

// APIError is a non-2xx response from the remote API. Message carries the
// server-provided error verbatim so business-rule rejections surface as-is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (status %d)", e.StatusCode)
}

// Client calls the snaglog remote API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenProvider
}

// New creates an API client rooted at baseURL.
func New(baseURL string, tokens auth.TokenProvider) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		tokens: tokens,
	}
}

type reportEnvelope struct {
	Report models.Report `json:"report"`
}

type reportListEnvelope struct {
	Reports []models.ReportSummary `json:"reports"`
}

type snagEnvelope struct {
	Snag models.Snag `json:"snag"`
}

type checkoutEnvelope struct {
	URL string `json:"url"`
}

type verifyRequest struct {
	SessionID string `json:"sessionId"`
}

type verifyEnvelope struct {
	PDFURL string `json:"pdfUrl"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// ListReports fetches the dashboard summaries.
func (c *Client) ListReports(ctx context.Context) ([]models.ReportSummary, error) {
	var out reportListEnvelope
	if err := c.doJSON(ctx, http.MethodGet, EndpointReports, "list_reports", nil, &out); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

// CreateReport submits property metadata and photos as a single multipart
// request. The submission is atomic: either the server accepts the whole
// report or nothing is created.
func (c *Client) CreateReport(ctx context.Context, meta models.ReportMeta, photos []models.PhotoFile) (*models.Report, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("propertyAddress", meta.PropertyAddress); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if meta.PropertyType != "" {
		if err := w.WriteField("propertyType", meta.PropertyType); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}
	if meta.DeveloperName != "" {
		if err := w.WriteField("developerName", meta.DeveloperName); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}
	for _, p := range photos {
		part, err := w.CreateFormFile("photos", p.FileName)
		if err != nil {
			return nil, fmt.Errorf("failed to create photo part: %w", err)
		}
		if _, err := part.Write(p.Data); err != nil {
			return nil, fmt.Errorf("failed to write photo part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, EndpointUpload, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out reportEnvelope
	if err := c.send(req, "create_report", &out); err != nil {
		return nil, err
	}
	log.Infof("Created report %s with %d photos", out.Report.ID, len(photos))
	return &out.Report, nil
}

// AnalyzeReport triggers bulk analysis for every snag on the report. The call
// only confirms acceptance; completion is observed by re-fetching the report.
func (c *Client) AnalyzeReport(ctx context.Context, reportID string) error {
	path := fmt.Sprintf("%s/%s", EndpointAnalyze, reportID)
	return c.doJSON(ctx, http.MethodPost, path, "analyze_report", nil, nil)
}

// GetReport fetches the full report with its ordered snags.
func (c *Client) GetReport(ctx context.Context, reportID string) (*models.Report, error) {
	path := fmt.Sprintf("%s/%s", EndpointReports, reportID)
	var out reportEnvelope
	if err := c.doJSON(ctx, http.MethodGet, path, "get_report", nil, &out); err != nil {
		return nil, err
	}
	return &out.Report, nil
}

// UpdateReportNotes patches the free-text notes on a report.
func (c *Client) UpdateReportNotes(ctx context.Context, reportID, notes string) error {
	path := fmt.Sprintf("%s/%s", EndpointReports, reportID)
	return c.doJSON(ctx, http.MethodPatch, path, "update_report", notesRequest{Notes: notes}, nil)
}

// UpdateSnag patches the given snag fields. The server marks the snag
// user-edited as a side effect.
func (c *Client) UpdateSnag(ctx context.Context, reportID, snagID string, upd models.SnagUpdate) (*models.Snag, error) {
	path := fmt.Sprintf("%s/%s/snag/%s", EndpointReports, reportID, snagID)
	var out snagEnvelope
	if err := c.doJSON(ctx, http.MethodPatch, path, "update_snag", upd, &out); err != nil {
		return nil, err
	}
	return &out.Snag, nil
}

// DeleteSnag removes a snag from the report.
func (c *Client) DeleteSnag(ctx context.Context, reportID, snagID string) error {
	path := fmt.Sprintf("%s/%s/snag/%s", EndpointReports, reportID, snagID)
	return c.doJSON(ctx, http.MethodDelete, path, "delete_snag", nil, nil)
}

// ReanalyzeSnag re-triggers analysis for one snag.
func (c *Client) ReanalyzeSnag(ctx context.Context, reportID, snagID string) error {
	path := fmt.Sprintf("%s/%s/snag/%s", EndpointAnalyze, reportID, snagID)
	return c.doJSON(ctx, http.MethodPost, path, "reanalyze_snag", nil, nil)
}

// CreateCheckout requests a payment session and returns the redirect URL.
func (c *Client) CreateCheckout(ctx context.Context, reportID string) (string, error) {
	path := fmt.Sprintf("%s/checkout/%s", EndpointPayment, reportID)
	var out checkoutEnvelope
	if err := c.doJSON(ctx, http.MethodPost, path, "create_checkout", nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// VerifyPayment exchanges a checkout session reference for a confirmed
// outcome. The returned URL is empty when the document is not ready yet.
func (c *Client) VerifyPayment(ctx context.Context, reportID, sessionID string) (string, error) {
	path := fmt.Sprintf("%s/verify/%s", EndpointPayment, reportID)
	var out verifyEnvelope
	if err := c.doJSON(ctx, http.MethodPost, path, "verify_payment", verifyRequest{SessionID: sessionID}, &out); err != nil {
		return "", err
	}
	return out.PDFURL, nil
}

// PaymentStatus fetches the report with its current payment status and
// document reference.
func (c *Client) PaymentStatus(ctx context.Context, reportID string) (*models.Report, error) {
	path := fmt.Sprintf("%s/status/%s", EndpointPayment, reportID)
	var out reportEnvelope
	if err := c.doJSON(ctx, http.MethodGet, path, "payment_status", nil, &out); err != nil {
		return nil, err
	}
	return &out.Report, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain bearer token: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	return c.send(req, endpoint, out)
}

func (c *Client) send(req *http.Request, endpoint string, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(endpoint, "read_error").Inc()
		return fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.APIRequestsTotal.WithLabelValues(endpoint, "api_error").Inc()
		var envelope errorEnvelope
		_ = json.Unmarshal(respBody, &envelope)
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}

	metrics.APIRequestsTotal.WithLabelValues(endpoint, "ok").Inc()

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
		}
	}
	return nil
}
