package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/chattree/internal/config"
	"github.com/HendryAvila/chattree/internal/metrics"
	"github.com/HendryAvila/chattree/internal/server"
	"github.com/HendryAvila/chattree/internal/updater"
)

var (
	metricsAddr  string
	checkUpdates bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server (stdio transport)",
	Long: `Start the MCP server on stdin/stdout. Add it to your MCP client config:

  {
    "mcpServers": {
      "chattree": {
        "command": "chattree",
        "args": ["serve"]
      }
    }
  }

The config file is watched; edits apply to the next tool call.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address (default from config)")
	serveCmd.Flags().BoolVar(&checkUpdates, "check-updates", true, "log a notice when a newer release exists")
}

func runServe(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	watcher, err := config.NewWatcher(configPath, logger.Named("config"))
	if err != nil {
		return err
	}
	current := func() config.Settings {
		s := watcher.Snapshot()
		applyFlags(&s)
		return s
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	s, cleanup, err := server.New(server.Options{
		Settings: current,
		Store:    store,
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	if checkUpdates {
		go checkForUpdates(ctx)
	}

	// the stdio session ending stops everything else
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(ctx) })

	addr := metricsAddr
	if addr == "" {
		addr = settings.MetricsAddr
	}
	if addr != "" {
		admin := &http.Server{
			Addr:              addr,
			Handler:           server.NewAdminRouter(m, store, logger.Named("admin")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("admin listening", zap.String("addr", addr))
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return admin.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		logger.Info("serving MCP on stdio", zap.String("version", server.Version))
		defer cancel()
		err := mcpserver.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

// checkForUpdates logs a notice when a newer release exists. Failures are
// only logged at debug level.
func checkForUpdates(ctx context.Context) {
	res, err := updater.New().Check(ctx, server.Version)
	if err != nil {
		logger.Debug("update check failed", zap.Error(err))
		return
	}
	if res.UpdateAvailable {
		logger.Info("update available",
			zap.String("current", res.CurrentVersion),
			zap.String("latest", res.LatestVersion),
			zap.String("release", res.ReleaseURL),
			zap.String("hint", "run: chattree update"),
		)
	}
}
