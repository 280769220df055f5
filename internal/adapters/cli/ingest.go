package cli

import (
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kirillkom/secguide/internal/bootstrap"
)

var ingestInline bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Register corpus files and queue them for indexing",
	Long: `Walk the data directory, register every new or previously failed file and
request indexing for it. By default requests go to the worker over NATS;
with --inline each file is extracted, embedded and indexed by this process.

Examples:
  secguide ingest
  secguide ingest --inline --data ./standards`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestInline, "inline", false, "index files in this process instead of the worker")
}

func runIngest(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{
		Service:      serviceName,
		Logger:       logger,
		InlineIngest: ingestInline,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning %s...\n", cfg.DataPath)

	var (
		bar   *progressbar.ProgressBar
		barMu sync.Mutex
	)
	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)
		}
		_ = bar.Set(done)
	}

	report, err := app.IngestUC.Scan(cmd.Context(), progress)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Fprintf(out, "\nIngest complete:\n")
	fmt.Fprintf(out, "  Files scanned:  %d\n", report.Scanned)
	fmt.Fprintf(out, "  Files queued:   %d\n", report.Enqueued)
	fmt.Fprintf(out, "  Files skipped:  %d (already ingested)\n", report.Skipped)
	if ingestInline {
		n, err := app.RefreshUC.Refresh(cmd.Context())
		if err != nil {
			return fmt.Errorf("refresh lexical index: %w", err)
		}
		fmt.Fprintf(out, "  Passages:       %d\n", n)
	}
	return nil
}
