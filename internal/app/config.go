package app

import (
	"strings"
	"time"

	"github.com/yungbote/adaptest-backend/internal/platform/logger"
	"github.com/yungbote/adaptest-backend/internal/utils"
)

type Config struct {
	Port      string
	ToolURL   string
	UIURL     string
	ToolTitle string

	PlatformsFile  string
	BankFile       string
	SigningKeyFile string
	RedisAddr      string
	ExtraOrigins   []string

	NonceTTL           time.Duration
	SessionIdleTimeout time.Duration
	KeyGracePeriod     time.Duration
	JWKSCacheTTL       time.Duration
	MaxQuestions       int
	GradeMaxAttempts   int
	GradeBackoff       time.Duration

	Environment string
	Version     string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:      utils.GetEnv("PORT", "8080", log),
		ToolURL:   utils.GetEnv("TOOL_URL", "http://localhost:8080", log),
		UIURL:     utils.GetEnv("UI_URL", "", log),
		ToolTitle: utils.GetEnv("TOOL_TITLE", "Adaptive Assessment", log),

		PlatformsFile:  utils.GetEnv("PLATFORMS_FILE", "", log),
		BankFile:       utils.GetEnv("BANK_FILE", "config/question_bank.yaml", log),
		SigningKeyFile: utils.GetEnv("SIGNING_KEY_FILE", "", log),
		RedisAddr:      utils.GetEnv("REDIS_ADDR", "", log),
		ExtraOrigins:   splitOrigins(utils.GetEnv("CORS_EXTRA_ORIGINS", "", log)),

		NonceTTL:           utils.GetEnvAsDuration("NONCE_TTL", 10*time.Minute, log),
		SessionIdleTimeout: utils.GetEnvAsDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour, log),
		KeyGracePeriod:     utils.GetEnvAsDuration("KEY_GRACE_PERIOD", 24*time.Hour, log),
		JWKSCacheTTL:       utils.GetEnvAsDuration("JWKS_CACHE_TTL", time.Hour, log),
		MaxQuestions:       utils.GetEnvAsInt("MAX_QUESTIONS", 10, log),
		GradeMaxAttempts:   utils.GetEnvAsInt("GRADE_MAX_ATTEMPTS", 3, log),
		GradeBackoff:       utils.GetEnvAsDuration("GRADE_BACKOFF", 500*time.Millisecond, log),

		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	}
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
