package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yungbote/adaptest-backend/internal/http"
	"github.com/yungbote/adaptest-backend/internal/observability"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Server   *http.Server
	Services Services

	closeOnce    sync.Once
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "adaptest-backend",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	services, err := wireServices(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	handlers := wireHandlers(log, cfg, services)
	server := wireServer(log, cfg, handlers)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Server:       server,
		Services:     services,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(":" + a.Cfg.Port)
}

// Close drains the HTTP server, then releases services. Safe to call from
// both the signal handler and a deferred cleanup.
func (a *App) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	if a.Server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("server shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Services.Sessions != nil {
		a.Services.Sessions.Close()
	}
	if a.Services.Ledger != nil {
		a.Services.Ledger.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
