// Command opsconsole serves the experiment lifecycle API, the Prometheus
// metrics endpoint and a health probe over a single HTTP listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"experimentcore/internal/adapters/opsapi"
	"experimentcore/internal/blob"
	"experimentcore/internal/core"
	"experimentcore/internal/directory"
	"experimentcore/pkg/domain"
)

type config struct {
	HTTPAddr        string        `env:"EXPERIMENTCORE_HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"EXPERIMENTCORE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// Collaborators seeds the static directory: "id:name:role" per entry.
	Collaborators []string `env:"EXPERIMENTCORE_COLLABORATORS" envSeparator:","`
	// Clients seeds the static directory: "id:name" per entry.
	Clients []string `env:"EXPERIMENTCORE_CLIENTS" envSeparator:","`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	blobs, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	dir, err := buildDirectory(cfg)
	if err != nil {
		return err
	}

	metrics := core.NewPrometheusMetricsRecorder()
	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithBlobStore(blobs),
		core.WithNotifier(directory.LogNotifier{Logger: logger}),
		core.WithDirectories(dir, dir, dir))

	handler := opsapi.NewHandler(svc, dir)
	handler.Funnels = dir

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", handler)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.HTTPAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// buildDirectory seeds the static directory from the configured collaborator
// and client entries.
func buildDirectory(cfg config) (*directory.Static, error) {
	dir := directory.NewStatic()
	for _, entry := range cfg.Collaborators {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("collaborator entry %q: want id:name:role", entry)
		}
		dir.AddCollaborator(domain.CollaboratorInfo{ID: parts[0], Name: parts[1], Role: domain.Role(parts[2])})
	}
	for _, entry := range cfg.Clients {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("client entry %q: want id:name", entry)
		}
		dir.AddClient(domain.ClientInfo{ID: parts[0], Name: parts[1]})
	}
	return dir, nil
}
