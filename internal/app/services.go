package app

import (
	"fmt"

	"github.com/yungbote/adaptest-backend/internal/assessment/bank"
	"github.com/yungbote/adaptest-backend/internal/assessment/engine"
	"github.com/yungbote/adaptest-backend/internal/assessment/scoring"
	"github.com/yungbote/adaptest-backend/internal/assessment/store"
	"github.com/yungbote/adaptest-backend/internal/grades"
	"github.com/yungbote/adaptest-backend/internal/lti/keys"
	"github.com/yungbote/adaptest-backend/internal/lti/launch"
	"github.com/yungbote/adaptest-backend/internal/lti/nonce"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

type Services struct {
	Registry  *launch.Registry
	Keys      *keys.Store
	Ledger    nonce.Ledger
	Verifier  *launch.Verifier
	Bank      *bank.Bank
	Sessions  *store.Store
	Engine    *engine.Engine
	Evaluator scoring.Evaluator
	Reporter  *grades.Reporter
}

func wireServices(log *logger.Logger, cfg Config) (Services, error) {
	log.Info("Wiring services...")

	registry, err := launch.LoadRegistry(cfg.PlatformsFile, log)
	if err != nil {
		return Services{}, fmt.Errorf("load platform registry: %w", err)
	}

	keyStore, err := keys.New(log, keys.Options{
		KeyFile:     cfg.SigningKeyFile,
		GracePeriod: cfg.KeyGracePeriod,
		CacheTTL:    cfg.JWKSCacheTTL,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init key store: %w", err)
	}

	var ledger nonce.Ledger
	if cfg.RedisAddr != "" {
		ledger, err = nonce.NewRedisLedger(log, cfg.RedisAddr, cfg.NonceTTL)
		if err != nil {
			return Services{}, fmt.Errorf("init redis nonce ledger: %w", err)
		}
	} else {
		ledger = nonce.NewMemoryLedger(log, cfg.NonceTTL)
	}

	questionBank, err := bank.Load(cfg.BankFile)
	if err != nil {
		ledger.Close()
		return Services{}, fmt.Errorf("load question bank: %w", err)
	}

	sessions := store.New(log, store.Options{
		IdleTimeout:  cfg.SessionIdleTimeout,
		MaxQuestions: cfg.MaxQuestions,
	})

	return Services{
		Registry:  registry,
		Keys:      keyStore,
		Ledger:    ledger,
		Verifier:  launch.NewVerifier(log, registry, ledger, keyStore, cfg.ToolURL+"/lti/launch"),
		Bank:      questionBank,
		Sessions:  sessions,
		Engine:    engine.New(log, questionBank),
		Evaluator: scoring.NewLexicalEvaluator(),
		Reporter: grades.New(log, keyStore, registry, grades.Options{
			MaxAttempts: cfg.GradeMaxAttempts,
			Backoff:     cfg.GradeBackoff,
		}),
	}, nil
}
