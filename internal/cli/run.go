package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/youmna-rabie/socket-relay/internal/config"
	"github.com/youmna-rabie/socket-relay/internal/delivery"
	"github.com/youmna-rabie/socket-relay/internal/event"
	"github.com/youmna-rabie/socket-relay/internal/ingress"
	"github.com/youmna-rabie/socket-relay/internal/router"
	"github.com/youmna-rabie/socket-relay/internal/server"
	"github.com/youmna-rabie/socket-relay/internal/socketmode"
)

func runRelay(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(os.Getenv(config.PathEnv))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Logging.Level
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		level = logLevel
	}
	logger := newLogger(os.Stdout, level, cfg.Logging.Format)

	store, err := event.NewMemoryStore(cfg.Store.Capacity)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}

	slots := buildSlots(cfg)
	if len(slots.All()) == 0 {
		logger.Warn("no webhook targets configured; commands will get the fallback reply")
	}

	exec := delivery.NewExecutor(delivery.Config{
		DefaultTimeout: cfg.Delivery.Timeout,
		MaxInFlight:    cfg.Delivery.MaxInFlight,
	}, logger)
	rt := router.New(slots, exec,
		router.WithFallthrough(cfg.Delivery.Fallthrough),
		router.WithLogger(logger),
	)
	handler := ingress.NewHandler(rt, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Admin.Addr != "" {
		httpSrv := &http.Server{
			Addr:              cfg.Admin.Addr,
			Handler:           server.NewServer(store, slots.All(), logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("admin server starting", "addr", cfg.Admin.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server error", "error", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutCtx); err != nil {
				logger.Warn("admin server shutdown error", "error", err)
			}
		}()
	}

	client := socketmode.NewClient(socketmode.Config{
		Token:          cfg.Socket.Token,
		OpenURL:        cfg.Socket.OpenURL,
		ReconnectDelay: cfg.Socket.ReconnectDelay,
	}, handler, logger)

	logger.Info("relay starting", "targets", len(slots.All()), "fallthrough", cfg.Delivery.Fallthrough)
	if err := client.Run(ctx); err != nil {
		return err
	}
	logger.Info("relay stopped")
	return nil
}

func buildSlots(cfg *config.Config) router.Slots {
	cmdProd, cmdDev, prod, dev := cfg.DeliveryTargets()
	return router.Slots{
		CommandProd:  cmdProd,
		CommandDev:   cmdDev,
		CallbackProd: prod,
		CallbackDev:  dev,
	}
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
