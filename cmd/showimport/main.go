// Command showimport loads a titles CSV export into the shows catalog.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"showcatalog/internal/config"
	"showcatalog/internal/importer"
	"showcatalog/internal/logging"
	"showcatalog/internal/serverapp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "showimport [source]",
		Short: "Import a titles CSV into the shows catalog",
		Long: `Reads a titles CSV from a file, stdin ("-") or s3://bucket/key and upserts
every row by show_id. Sources ending in .sz are snappy-decoded.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFlags(cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if len(args) == 1 {
				cfg.Import.Source = args[0]
			}
			return runImport(cmd.Context(), cfg, stdin, stdout)
		},
	}
	config.DefineFlags(cmd.Flags())
	return cmd
}

func runImport(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) error {
	if err := validate(cfg); err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Observability.Logging.Level,
		Format:      cfg.Observability.Logging.Format,
		Output:      os.Stderr,
		ServiceName: cfg.Observability.ServiceName,
	})
	ctx = logging.WithLogger(ctx, logger)

	src, err := importer.OpenSource(ctx, cfg.Import.Source, importer.SourceConfig{
		Stdin:    stdin,
		Region:   cfg.Import.S3Region,
		Endpoint: cfg.Import.S3Endpoint,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	svc, closeCatalog, err := serverapp.OpenCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCatalog(); err != nil {
			logger.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}()

	report, err := importer.New(svc.Registry(), svc, importer.WithWorkers(cfg.Import.Workers)).Run(ctx, src)
	printReport(stdout, report)
	return err
}

func validate(cfg *config.Config) error {
	if cfg.Import.Source == "" {
		return fmt.Errorf("no import source given: pass it as an argument or set import.source")
	}
	result := cfg.Validate()
	for _, warn := range result.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
		)
	}
	if result.HasErrors() {
		return fmt.Errorf("configuration validation failed: %s", result.Error())
	}
	return nil
}

func printReport(w io.Writer, report importer.Report) {
	fmt.Fprintf(w, "rows: %d created: %d updated: %d failed: %d\n",
		report.Rows, report.Created, report.Updated, report.Failed)
	for _, rowErr := range report.Errors {
		fmt.Fprintf(w, "  %s\n", rowErr.Error())
	}
}
