// Package app wires configuration, storage, services, and the HTTP server
// into a runnable process with graceful shutdown.
package app

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rescrv/brief-measure/internal/server/config"
	"github.com/rescrv/brief-measure/internal/server/httpapi"
	"github.com/rescrv/brief-measure/internal/server/repository/postgres"
	"github.com/rescrv/brief-measure/internal/server/repository/sqlite"
	"github.com/rescrv/brief-measure/internal/server/service"
)

type App struct {
	version   string
	buildDate string
	logger    *log.Logger
	server    *http.Server
	repoClose io.Closer
}

func New(version, buildDate string, logger *log.Logger) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	repo, closer, err := OpenRepository(cfg)
	if err != nil {
		return nil, err
	}
	services := service.NewServices(repo, cfg)
	router := httpapi.NewRouter(services, logger, cfg.MaxRequestBytes)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &App{version: version, buildDate: buildDate, logger: logger, server: server, repoClose: closer}, nil
}

// OpenRepository selects the store from the DSN scheme: postgres:// (or
// postgresql://) opens the bun-backed production store, anything else is
// treated as an SQLite path.
func OpenRepository(cfg config.Config) (service.Repository, io.Closer, error) {
	if strings.HasPrefix(cfg.DatabaseDSN, "postgres://") || strings.HasPrefix(cfg.DatabaseDSN, "postgresql://") {
		repo, err := postgres.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	}
	repo, err := sqlite.New(cfg.DatabaseDSN, cfg.DatabaseQueryTimeout)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo, nil
}

func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = a.repoClose.Close() }()

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Printf("http server error: %v", err)
		}
	}()

	a.logger.Printf("brief-measure server %s (%s) listening on %s", a.version, a.buildDate, a.server.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}
