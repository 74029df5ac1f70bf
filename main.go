// snaglog is the inspection-report client: photo intake, AI snag analysis,
// review, payment and report download against the snaglog remote API.
package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"

	"snaglog/analysis"
	"snaglog/auth"
	"snaglog/checkout"
	"snaglog/client"
	"snaglog/config"
	"snaglog/draft"
	"snaglog/generation"
	"snaglog/intake"
	"snaglog/metrics"
	"snaglog/models"
	"snaglog/review"
)

var (
	flow      = flag.String("flow", "list", "Flow to run: list, submit, review, checkout, status.")
	reportID  = flag.String("report", "", "Report ID for review, checkout and status flows.")
	sessionID = flag.String("session", "", "Checkout session ID for the status flow.")
	address   = flag.String("address", "", "Property address for the submit flow.")
	propType  = flag.String("type", "", "Property type for the submit flow.")
	developer = flag.String("developer", "", "Developer name for the submit flow.")
	photos    = flag.String("photos", "", "Comma-separated photo file paths for the submit flow.")
	notes     = flag.String("notes", "", "Notes to attach before checkout.")
)

func main() {
	flag.Parse()

	cfg := config.Load()
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	metrics.Register(prometheus.DefaultRegisterer)

	api := client.New(cfg.APIBaseURL, auth.Static(cfg.APIToken))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch *flow {
	case "list":
		err = doList(ctx, api)
	case "submit":
		err = doSubmit(ctx, cfg, api)
	case "review":
		err = doReview(ctx, api)
	case "checkout":
		err = doCheckout(ctx, cfg, api)
	case "status":
		err = doStatus(ctx, cfg, api)
	default:
		err = fmt.Errorf("unknown flow %q", *flow)
	}
	if err != nil {
		log.Fatalf("%s flow failed: %v", *flow, err)
	}
}

func doList(ctx context.Context, api *client.Client) error {
	reports, err := api.ListReports(ctx)
	if err != nil {
		return err
	}
	for _, r := range reports {
		fmt.Printf("%s  %-40s  %-9s  %-6s  snags=%d (minor=%d moderate=%d major=%d)\n",
			r.ID, r.PropertyAddress, r.Status, r.PaymentStatus, r.SnagCount,
			r.SeverityCounts.Minor, r.SeverityCounts.Moderate, r.SeverityCounts.Major)
	}
	log.Infof("%d reports", len(reports))
	return nil
}

func doSubmit(ctx context.Context, cfg *config.Config, api *client.Client) error {
	in := intake.New(cfg.MaxPhotoBytes)
	defer in.ReleaseAll()

	for _, path := range strings.Split(*photos, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read photo %s: %w", path, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if _, err := in.Accept(filepath.Base(path), contentType, data); err != nil {
			return err
		}
	}

	builder := draft.New(in, api, analysis.New(api))
	builder.PropertyAddress = *address
	builder.PropertyType = *propType
	builder.DeveloperName = *developer

	report, err := builder.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Created report %s with %d photos, analysis in progress\n", report.ID, in.Count())
	return nil
}

func doReview(ctx context.Context, api *client.Client) error {
	if *reportID == "" {
		return fmt.Errorf("-report is required")
	}
	mgr := review.NewManager(api, *reportID)
	if err := mgr.Load(ctx); err != nil {
		return err
	}

	report := mgr.Report()
	fmt.Printf("%s (%s)\n", report.PropertyAddress, report.Status)
	for i, s := range report.Snags {
		severity := "pending"
		if s.Severity != nil {
			severity = string(*s.Severity)
		}
		defect := "Unidentified defect"
		if s.DefectType != nil && *s.DefectType != "" {
			defect = *s.DefectType
		}
		room := "No room assigned"
		if s.Room != nil && *s.Room != "" {
			room = *s.Room
		}
		edited := ""
		if s.UserEdited {
			edited = " [edited]"
		}
		fmt.Printf("%s  %-30s  %-9s  %s%s\n", models.SnagNumber(i), defect, severity, room, edited)
	}
	counts := mgr.SeverityCounts()
	fmt.Printf("%d snags: %d minor, %d moderate, %d major. Ready to pay: %v\n",
		mgr.SnagCount(), counts.Minor, counts.Moderate, counts.Major, mgr.ReadyToPay())
	return nil
}

func doCheckout(ctx context.Context, cfg *config.Config, api *client.Client) error {
	if *reportID == "" {
		return fmt.Errorf("-report is required")
	}
	mgr := review.NewManager(api, *reportID)
	if err := mgr.Load(ctx); err != nil {
		return err
	}
	if *notes != "" {
		mgr.SetNotes(*notes)
	}

	listener := checkout.NewReturnListener(cfg.ReturnListenAddr)
	if err := listener.Start(); err != nil {
		return fmt.Errorf("failed to start payment return listener: %w", err)
	}
	defer listener.Shutdown(ctx)

	orch := checkout.New(api, mgr, browserNavigator{}, cfg.ReportPrice)
	fmt.Printf("Pay %s to generate your report\n", orch.FormatPrice())
	if err := orch.Checkout(ctx, *reportID); err != nil {
		return err
	}

	fmt.Println("Waiting for payment to complete in the browser...")
	session, err := listener.Wait(ctx)
	if err != nil {
		return err
	}

	poller := generation.NewPoller(api, *reportID, cfg.PollInterval, cfg.PollMaxAttempts)
	state, err := poller.Verify(ctx, session)
	if err != nil {
		return err
	}
	fmt.Printf("Generation state: %s\n", state)
	if state == generation.StateComplete {
		fmt.Printf("Report ready: %s\n", poller.PDFURL())
	}
	return nil
}

func doStatus(ctx context.Context, cfg *config.Config, api *client.Client) error {
	if *reportID == "" {
		return fmt.Errorf("-report is required")
	}
	poller := generation.NewPoller(api, *reportID, cfg.PollInterval, cfg.PollMaxAttempts)

	var state generation.State
	var err error
	if *sessionID != "" {
		state, err = poller.Verify(ctx, *sessionID)
	} else {
		state, err = poller.CheckStatus(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Generation state: %s\n", state)
	if state == generation.StateComplete {
		fmt.Printf("Report ready: %s\n", poller.PDFURL())
	}
	return nil
}

// browserNavigator opens the checkout URL in the default browser, falling
// back to printing it.
type browserNavigator struct{}

func (browserNavigator) Navigate(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warnf("Could not open browser: %v", err)
		fmt.Printf("Open this URL to pay: %s\n", url)
	}
	return nil
}
