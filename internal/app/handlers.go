package app

import (
	"github.com/yungbote/adaptest-backend/internal/http"
	httpH "github.com/yungbote/adaptest-backend/internal/http/handlers"
	"github.com/yungbote/adaptest-backend/internal/observability"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	LTI        *httpH.LTIHandler
	Assessment *httpH.AssessmentHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(services.Sessions, services.Registry),
		LTI:        httpH.NewLTIHandler(log, services.Verifier, services.Keys, services.Sessions, services.Engine, cfg.ToolURL, cfg.UIURL, cfg.ToolTitle),
		Assessment: httpH.NewAssessmentHandler(log, services.Sessions, services.Engine, services.Evaluator, services.Reporter),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:               log,
		HealthHandler:     handlers.Health,
		LTIHandler:        handlers.LTI,
		AssessmentHandler: handlers.Assessment,
		ExtraOrigins:      cfg.ExtraOrigins,
		EnableOtel:        observability.Enabled(),
	})
}
