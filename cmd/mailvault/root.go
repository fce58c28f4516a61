// Command mailvault pulls password-protected PDF statements out of a mailbox,
// files decrypted copies into durable storage and extracts their transactions
// into a report.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"cloud.google.com/go/bigquery"
	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/okozlov/mailvault/internal/config"
	"github.com/okozlov/mailvault/internal/domain"
	"github.com/okozlov/mailvault/internal/drivestore"
	"github.com/okozlov/mailvault/internal/gmailbox"
	"github.com/okozlov/mailvault/internal/ledger"
	"github.com/okozlov/mailvault/internal/logger"
	"github.com/okozlov/mailvault/internal/organizer"
	"github.com/okozlov/mailvault/internal/pdfdoc"
	"github.com/okozlov/mailvault/internal/sheetsync"
	"github.com/okozlov/mailvault/internal/workflow"
)

var (
	configPath string
	verbose    bool

	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mailvault",
	Short: "File and extract emailed PDF bank statements",
	Long: `mailvault searches a Gmail mailbox for PDF statements, decrypts them by
trying each group's candidate passwords, files the decrypted copies into
per-group folders and extracts their transactions into a report, one sheet
per group.

Runs are idempotent: every stored attachment is fingerprinted in a ledger
and never stored twice.`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "groups.yaml", "Path to the groups config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(decryptCmd)
}

func initApp(cmd *cobra.Command, args []string) error {
	log = logger.New(verbose)

	// The local decrypt utility works without a full pipeline config only
	// when the file is absent.
	loaded, err := config.Load(configPath)
	if err != nil {
		if cmd.Name() == "decrypt" && errors.Is(err, fs.ErrNotExist) {
			cfg = nil
			return nil
		}
		return err
	}
	cfg = loaded
	return nil
}

// buildCoordinator wires every collaborator behind the workflow from the
// loaded config. The report publisher varies per subcommand.
func buildCoordinator(ctx context.Context, reports workflow.ReportService) (*workflow.Coordinator, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	gmailSvc, err := gmail.NewService(ctx, option.WithScopes(gmail.GmailReadonlyScope))
	if err != nil {
		return nil, nil, fmt.Errorf("creating gmail client: %w", err)
	}
	mail := gmailbox.New(gmailSvc, cfg.MaxMailResults, logger.ForComponent(log, "gmailbox"))

	storage, closeStorage, err := buildStorage(ctx)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if closeStorage != nil {
		closers = append(closers, closeStorage)
	}

	led, closeLedger, err := buildLedger(ctx)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if closeLedger != nil {
		closers = append(closers, closeLedger)
	}

	sessions, err := workflow.NewFileSessionStore(filepath.Join(cfg.StateDir, "sessions"))
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	coord := workflow.New(workflow.Deps{
		Mail:     mail,
		Storage:  storage,
		Reports:  reports,
		Sessions: sessions,
		Ledger:   led,
		Resolver: pdfdoc.NewResolver(),
		Planner:  organizer.NewPlanner(cfg.DestinationRoot),
		Log:      logger.ForComponent(log, "workflow"),
	}, workflow.Options{
		Groups:      cfg.DomainGroups(),
		Passwords:   cfg.PasswordSets(),
		Workers:     cfg.Workers,
		MaxRetries:  cfg.MaxRetries,
		CallTimeout: cfg.CallTimeout,
	})
	return coord, closeAll, nil
}

func buildStorage(ctx context.Context) (workflow.StorageService, func(), error) {
	switch cfg.Storage {
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("creating storage client: %w", err)
		}
		store := drivestore.NewGCSStore(client, cfg.Bucket, logger.ForComponent(log, "gcs"))
		return store, func() { _ = client.Close() }, nil
	default:
		svc, err := drive.NewService(ctx, option.WithScopes(drive.DriveScope))
		if err != nil {
			return nil, nil, fmt.Errorf("creating drive client: %w", err)
		}
		return drivestore.NewDriveStore(svc, logger.ForComponent(log, "drive")), nil, nil
	}
}

func buildLedger(ctx context.Context) (*ledger.Ledger, func(), error) {
	switch cfg.Ledger.Backend {
	case "bigquery":
		client, err := bigquery.NewClient(ctx, cfg.Ledger.Project)
		if err != nil {
			return nil, nil, fmt.Errorf("creating bigquery client: %w", err)
		}
		store := ledger.NewBigQueryStore(client, cfg.Ledger.Dataset, cfg.Ledger.Table)
		if err := store.EnsureTable(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		led, err := ledger.Open(ctx, store)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return led, func() { _ = client.Close() }, nil
	default:
		store, err := ledger.NewFileStore(filepath.Join(cfg.StateDir, "ledger.jsonl"))
		if err != nil {
			return nil, nil, err
		}
		led, err := ledger.Open(ctx, store)
		if err != nil {
			return nil, nil, err
		}
		return led, nil, nil
	}
}

func buildSheetsReports(ctx context.Context) (workflow.ReportService, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet_id is required (set it in %s or MAILVAULT_SPREADSHEET_ID)", configPath)
	}
	svc, err := sheets.NewService(ctx, option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}
	return sheetsync.New(svc, cfg.SpreadsheetID, logger.ForComponent(log, "sheetsync")), nil
}

// printSummary writes the per-item outcomes and totals to stdout.
func printSummary(sum workflow.Summary) {
	fmt.Printf("session %s finished in phase %s\n", sum.SessionID, sum.Phase)
	for _, item := range sum.Items {
		line := fmt.Sprintf("  [%s] %s", item.Status, item.Filename)
		if item.DestinationPath != "" {
			line += " -> " + item.DestinationPath
		}
		if item.Transactions > 0 {
			line += fmt.Sprintf(" (%d transactions)", item.Transactions)
		}
		if item.PasswordHint != "" {
			line += fmt.Sprintf(" (hint: %s)", item.PasswordHint)
		}
		if item.Error != "" {
			line += ": " + item.Error
		}
		fmt.Println(line)
	}

	statuses := make([]string, 0, len(sum.Counts))
	for status := range sum.Counts {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Printf("%s: %d\n", status, sum.Counts[domain.ItemStatus(status)])
	}
	if sum.Transactions > 0 {
		fmt.Printf("transactions: %d\n", sum.Transactions)
	}
}
