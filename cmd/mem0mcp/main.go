// Command mem0mcp serves the hosted Mem0 memory API as MCP tools over stdio
// or SSE.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/localrivet/mem0mcp"
	"github.com/localrivet/mem0mcp/internal/config"
	"github.com/localrivet/mem0mcp/internal/errortypes"
	"github.com/localrivet/mem0mcp/internal/logger"
	"github.com/localrivet/mem0mcp/internal/server"
)

var (
	cfgFile   string
	overrides config.Overrides
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mem0mcp",
	Short: "MCP server for long-term memory backed by Mem0",
	Long: `mem0mcp exposes save_memory, get_all_memories and search_memories as MCP
tools, forwarding every call to the hosted Mem0 API.

Configuration is read from defaults, a JSON config file, MEM0MCP_* variables,
the TRANSPORT, HOST, PORT, MEM0_API_KEY, MEM0_BASE_URL and DEFAULT_USER_ID
variables (a .env file in the working directory is honoured), and finally
the flags below.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered tools and their argument schemas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listTools(cmd.OutOrStdout())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "mem0mcp", mem0mcp.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultConfigFilename+" when present)")
	rootCmd.Flags().StringVar(&overrides.Transport, "transport", "", "transport mode: stdio or sse")
	rootCmd.Flags().StringVar(&overrides.Host, "host", "", "bind interface in sse mode")
	rootCmd.Flags().IntVar(&overrides.Port, "port", 0, "bind port in sse mode")
	rootCmd.Flags().StringVar(&overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Bootstrap logger until the configured one exists.
	bootLogger := logger.New(logger.DefaultConfig())

	if err := config.LoadDotEnv(); err != nil {
		errortypes.LogError(bootLogger, err)
		return err
	}

	cfg, err := config.Load(config.LoadOptions{
		Path:        cfgFile,
		RequireFile: cmd.Flags().Changed("config"),
		Overrides:   overrides,
		Logger:      bootLogger,
	})
	if err != nil {
		errortypes.LogError(bootLogger, err)
		return err
	}

	appLogger := logger.FromStrings(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(appLogger)
	appLogger.Info("mem0mcp MCP Server - Starting...", "version", mem0mcp.Version)

	srv, err := mem0mcp.NewServer(mem0mcp.ServerOptions{Config: cfg, Logger: appLogger})
	if err != nil {
		errortypes.LogError(appLogger, err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("Received shutdown signal, terminating gracefully...")
		return srv.Stop()
	case err := <-errCh:
		if stopErr := srv.Stop(); stopErr != nil {
			appLogger.Error("Error during shutdown", "error", stopErr)
		}
		if err != nil {
			err = errortypes.InternalError(err, "MCP server failed")
			errortypes.LogError(appLogger, err)
			return err
		}
		appLogger.Info("Transport closed, shutdown complete")
		return nil
	}
}

type toolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// listTools prints the registry without contacting the backend.
func listTools(w io.Writer) error {
	registry := server.NewMemoryToolServer(nil, server.Options{}).Registry()

	infos := make([]toolInfo, 0, len(registry.Names()))
	for _, d := range registry.List() {
		infos = append(infos, toolInfo{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(infos)
}
