package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/adaptest-backend/internal/http/handlers"
	httpMW "github.com/yungbote/adaptest-backend/internal/http/middleware"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	LTIHandler        *httpH.LTIHandler
	AssessmentHandler *httpH.AssessmentHandler
	HealthHandler     *httpH.HealthHandler

	ExtraOrigins []string
	EnableOtel   bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS(cfg.ExtraOrigins))
	if cfg.EnableOtel {
		r.Use(otelgin.Middleware("adaptest-backend"))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	// LTI (public, hit by the platform and the browser during launch)
	if cfg.LTIHandler != nil {
		lti := r.Group("/lti")
		{
			lti.GET("/login", cfg.LTIHandler.Login)
			lti.POST("/login", cfg.LTIHandler.Login)
			lti.POST("/launch", cfg.LTIHandler.Launch)
			lti.GET("/jwks", cfg.LTIHandler.JWKS)
			lti.GET("/config.json", cfg.LTIHandler.ConfigJSON)
		}
	}

	api := r.Group("/api")
	{
		if cfg.AssessmentHandler != nil {
			assessment := api.Group("/assessment")
			{
				assessment.POST("/start", cfg.AssessmentHandler.Start)
				assessment.POST("/answer", cfg.AssessmentHandler.Answer)
				assessment.GET("/session/:id", cfg.AssessmentHandler.Status)
				assessment.DELETE("/session/:id", cfg.AssessmentHandler.Delete)
			}
		}
	}

	return r
}
