package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/secguide/internal/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve retrieval and guidance as MCP tools over stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing the
retrieve_passages and security_guidance tools. Logs go to stderr.

The lexical index is loaded once at startup; restart the server after
ingesting new documents.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	core, err := openRetrieval(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	server := mcpadapter.NewServer(core.Orchestrator, core.NewGuidanceUseCase(), core.Orchestrator.Options().DefaultTopK)
	logger.Info("mcp_serving", "transport", "stdio")
	if err := server.ServeStdio(cmd.Context(), os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
