package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/secguide/internal/bootstrap"
	"github.com/kirillkom/secguide/internal/config"
	"github.com/kirillkom/secguide/internal/observability/logging"
)

const serviceName = "cli"

var (
	logLevel    string
	dataDir     string
	tuningFile  string
	vectorStore string

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "secguide",
	Short: "Security guidance over CIS, OWASP and NIST documents",
	Long: `secguide indexes security standards and answers questions about them
with hybrid retrieval: dense vectors, BM25 and a cross-encoder, fused with
weighted reciprocal rank fusion.

Configuration comes from the same environment variables as the api and worker
services; the flags below override a few of them.

Example usage:
  secguide ingest --inline                         # Index ./data without a worker
  secguide query -q "password rotation" --json     # Fused passages
  secguide compare --queries eval.txt --out r.xlsx # Simple vs hybrid report
  secguide mcp                                     # Serve tools over stdio`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if dataDir != "" {
			cfg.DataPath = dataDir
		}
		if tuningFile != "" {
			cfg.RetrievalTuningFile = tuningFile
		}
		if vectorStore != "" {
			cfg.VectorStoreMode = strings.ToLower(vectorStore)
		}
		// stdout carries command output and the MCP protocol
		logger = logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "corpus directory (default from DATA_PATH)")
	rootCmd.PersistentFlags().StringVar(&tuningFile, "tuning", "", "retrieval tuning YAML (default from RETRIEVAL_TUNING_FILE)")
	rootCmd.PersistentFlags().StringVar(&vectorStore, "vector-store", "", "qdrant or memory (default from VECTOR_STORE_MODE)")
}

// openRetrieval builds the query side and loads the lexical snapshot from the
// passage store. A failed load only degrades hybrid queries.
func openRetrieval(cmd *cobra.Command) (*bootstrap.Retrieval, error) {
	core, err := bootstrap.NewRetrieval(cfg, bootstrap.Options{Service: serviceName, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("init retrieval: %w", err)
	}
	if n, err := core.NewRefreshUseCase().Refresh(cmd.Context()); err != nil {
		logger.Warn("lexical_index_unavailable", "error", err)
	} else {
		logger.Debug("lexical_index_loaded", "passages", n)
	}
	return core, nil
}
