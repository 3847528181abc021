// Command mem0stub runs a local stand-in for the hosted memory API, for
// developing against mem0mcp without a Mem0 account:
//
//	mem0stub --addr 127.0.0.1:8765 --api-key dev
//	MEM0_BASE_URL=http://127.0.0.1:8765 MEM0_API_KEY=dev TRANSPORT=stdio mem0mcp
//
// Records live in memory and are lost on exit.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/localrivet/mem0mcp/internal/errortypes"
	"github.com/localrivet/mem0mcp/internal/logger"
	"github.com/localrivet/mem0mcp/internal/memstub"
)

const shutdownTimeout = 5 * time.Second

var (
	addr     string
	apiKey   string
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "mem0stub",
	Short:         "Run a local stand-in for the Mem0 memory API",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "listen address")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "bearer key clients must present (empty accepts any)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func run(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent(logger.FromStrings(logLevel, "text"), "mem0stub")

	backend, err := memstub.New(memstub.Options{APIKey: apiKey, Logger: log})
	if err != nil {
		err = errortypes.InternalError(err, "failed to open stand-in store")
		errortypes.LogError(log, err)
		return err
	}
	defer backend.Close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           backend,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Serving stand-in memory API", "addr", addr, "auth", apiKey != "")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		err = errortypes.InternalError(err, "stand-in server failed").WithField("addr", addr)
		errortypes.LogError(log, err)
		return err
	case <-ctx.Done():
		log.Info("Received shutdown signal, terminating gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown did not complete", "error", err)
		return err
	}

	logShutdown(log, backend)
	return nil
}

type recordCounter interface {
	Len() (int, error)
}

func logShutdown(log *slog.Logger, records recordCounter) {
	n, err := records.Len()
	if err != nil {
		log.Warn("Could not count stored records", "error", err)
		log.Info("Shutdown complete")
		return
	}
	log.Info("Shutdown complete", "records_discarded", n)
}
