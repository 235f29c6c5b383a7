package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"bulksender/internal/bootstrap"
	"bulksender/internal/config"
	"bulksender/internal/dispatch"
	"bulksender/internal/logging"
	"bulksender/internal/metrics"
	"bulksender/internal/models"
	"bulksender/internal/repository"
)

var (
	dbPath     string
	noStore    bool
	campaignID string
)

var rootCmd = &cobra.Command{
	Use:           "dispatch",
	Short:         "Run bulk message campaigns from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run <task.yaml>",
	Short: "Run a campaign task file",
	Long: `Runs the campaign described by a YAML task file against the simulated provider.

While running, type pause, resume, stop or status on stdin.
Ctrl-C stops the campaign. Rerunning the same file resumes it and skips
messages already recorded as sent.`,
	Args: cobra.ExactArgs(1),
	RunE: runCampaign,
}

var statusCmd = &cobra.Command{
	Use:   "status <campaign-id>",
	Short: "Show the persisted progress of a campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  showStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "bulksender.db", "SQLite file used to persist progress")
	runCmd.Flags().BoolVar(&noStore, "no-store", false, "do not persist progress")
	runCmd.Flags().StringVar(&campaignID, "id", "", "campaign id (defaults to the task file name)")
	rootCmd.AddCommand(runCmd, statusCmd)
}

func main() {
	// Load .env file (ignore error if not present)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(persist bool) (*config.Config, error) {
	cfg := config.FromEnv()
	cfg.Storage.Backend = config.BackendSQLite
	cfg.Storage.SQLitePath = dbPath
	if !persist {
		cfg.Storage.Backend = config.BackendNone
	}
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.Log.Format = "console"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.Init(cfg.Log)
	return cfg, nil
}

func runCampaign(cmd *cobra.Command, args []string) error {
	task, err := loadTask(args[0])
	if err != nil {
		return err
	}
	id := campaignID
	if id == "" {
		id = campaignIDFromPath(args[0])
	}

	cfg, err := loadConfig(!noStore)
	if err != nil {
		return err
	}
	store, db, err := bootstrap.OpenStore(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	ctrl := dispatch.New(id, dispatch.Deps{
		Provider: bootstrap.NewProvider(cfg),
		Store:    store,
		Observer: metrics.NewRecorder(),
	}, dispatch.Options{
		Governor:    cfg.GovernorConfig(),
		SendTimeout: cfg.Dispatch.SendTimeout,
	})

	if err := ctrl.Start(cmd.Context(), task); err != nil {
		return err
	}
	if skipped := ctrl.Status().SkippedCount; skipped > 0 {
		logging.Info().Int("skipped", skipped).Msg("resuming campaign, already sent messages are skipped")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logging.Info().Msg("stopping campaign")
			if err := ctrl.Stop(); err != nil && !errors.Is(err, dispatch.ErrInvalidTransition) {
				logging.Error().Err(err).Msg("failed to stop campaign")
			}
		case <-ctrl.Done():
		}
	}()
	go readControls(cmd.InOrStdin(), cmd.OutOrStdout(), ctrl)

	var final models.Event
	for event := range ctrl.Events() {
		logEvent(event)
		final = event
	}

	if final.Result == nil {
		return fmt.Errorf("campaign %s ended without a result", id)
	}
	printResult(cmd, final.Result)
	if final.Type == models.EventFailed {
		return fmt.Errorf("campaign %s failed: %s", id, final.Result.Reason)
	}
	return nil
}

func logEvent(event models.Event) {
	switch event.Type {
	case models.EventProgress:
		p := event.Progress
		logging.Info().
			Str("recipient", p.Recipient).
			Str("channel_id", p.ChannelID).
			Str("status", string(p.Status)).
			Float64("percent", p.PercentComplete).
			Msg("message processed")
	default:
		e := logging.Info().Str("event", string(event.Type))
		if event.Reason != "" {
			e = e.Str("reason", event.Reason)
		}
		e.Msg("campaign " + string(event.Type))
	}
}

func printResult(cmd *cobra.Command, result *models.ExecutionResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "state\t%s\n", result.State)
	fmt.Fprintf(w, "sent\t%d/%d\n", result.SentCount, result.TotalCount)
	fmt.Fprintf(w, "failed\t%d\n", result.FailedCount)
	fmt.Fprintf(w, "pending\t%d\n", result.PendingCount)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  #%d %s\t%s\t%s\n", e.MessageIndex, e.Recipient, e.ChannelID, e.Reason)
	}
	w.Flush()
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	db, err := repository.OpenSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	return printStoredStatus(cmd.Context(), cmd.OutOrStdout(), repository.NewSQLiteProgressStore(db), args[0])
}

func printStoredStatus(ctx context.Context, out io.Writer, store repository.ProgressStore, id string) error {
	record, err := store.GetCampaign(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load campaign %s: %w", id, err)
	}
	messages, err := store.ListMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load messages of %s: %w", id, err)
	}

	fmt.Fprintf(out, "%s: %s sent=%d failed=%d updated=%s\n",
		record.ID, record.Status, record.SentCount, record.FailedCount,
		record.UpdatedAt.Format("2006-01-02 15:04:05"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tID\tRECIPIENT\tCHANNEL\tSTATUS\tERROR")
	for _, m := range messages {
		lastErr := ""
		if m.LastError != nil {
			lastErr = *m.LastError
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			m.MessageIndex, m.MessageID, m.Recipient, m.ChannelID, m.Status, strings.TrimSpace(lastErr))
	}
	return w.Flush()
}
