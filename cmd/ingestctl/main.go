// Command ingestctl runs batches and inspects the ledger and event log
// without starting the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"docxingest/internal/app"
	"docxingest/internal/config"
	"docxingest/internal/domain"
	"docxingest/internal/logging"
	"docxingest/internal/port"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if domain.Classify(err) == domain.ClassFatal {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "ingestctl",
		Short:         "Operate the invoice ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(newRunCmd(), newLedgerCmd(), newEventsCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return nil, &domain.FatalError{Op: "ingestctl", Err: err}
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one batch and print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, runErr := a.Pipeline.RunBatch(cmd.Context())
			if summary != nil {
				if err := render(cmd.OutOrStdout(), format, summary); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "yaml", "output format: yaml or json")
	return cmd
}

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the processed ledger",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Report whether a file's content has already been committed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.BuildLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return checkLedger(cmd.Context(), cmd.OutOrStdout(), a, domain.ContentHash(data))
		},
	})
	return cmd
}

func checkLedger(ctx context.Context, w io.Writer, a *app.App, hash string) error {
	entry, err := a.Ledger.Get(ctx, hash)
	if errors.Is(err, domain.ErrNotFound) {
		_, err = fmt.Fprintf(w, "%s not processed\n", hash)
		return err
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s committed %s at %s\n", hash, entry.CommittedAt.Format(time.RFC3339), entry.Location)
	return err
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read the pipeline event log",
	}

	var (
		format  string
		batchID string
		since   time.Duration
		limit   int
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := port.EventFilter{Limit: limit}
			if batchID != "" {
				id, err := uuid.Parse(batchID)
				if err != nil {
					return fmt.Errorf("invalid --batch: %w", err)
				}
				filter.BatchID = id
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.BuildLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			reader := a.Events.Reader()
			if reader == nil {
				return errors.New("no configured event sink keeps events; add sql or redis to events.sinks")
			}
			events, err := reader.ListEvents(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, events)
		},
	}
	tail.Flags().StringVarP(&format, "format", "o", "yaml", "output format: yaml or json")
	tail.Flags().StringVar(&batchID, "batch", "", "only events of this batch")
	tail.Flags().DurationVar(&since, "since", 0, "only events newer than this")
	tail.Flags().IntVarP(&limit, "limit", "n", 50, "number of events")
	cmd.AddCommand(tail)
	return cmd
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("rendering yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
