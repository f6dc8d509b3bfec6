package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/logging"
	"quiz-session-service/internal/metrics"
	transport "quiz-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	m := metrics.New()
	svc := newServices(cfg, b.store, log, m)
	if err := svc.leaderboard.Start(ctx); err != nil {
		return err
	}
	defer svc.leaderboard.Stop()

	api := transport.NewAPI(transport.APIDeps{
		Catalog:     svc.catalog,
		Attempts:    svc.attempts,
		Profiles:    svc.profiles,
		Authoring:   svc.authoring,
		Leaderboard: svc.leaderboard,
		Sessions:    b.sessions,
		Log:         log,
	})
	ws := transport.NewWSHandler(svc.engine, svc.leaderboard, b.sessions, log)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(api, ws, m.Handler()),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: WebSocket connections are long-lived
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting quiz session service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-serveErr:
		log.Error("server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	// hijacked WebSocket connections are not tracked by Shutdown
	app.DrainSessions(b.sessions)
	return err
}
