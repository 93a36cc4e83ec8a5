// Package scoring defines the oracle that grades a learner response. The
// engine treats it as opaque: anything producing an Evaluation can be
// plugged in, including an external model-backed grader.
package scoring

import (
	"context"

	"github.com/yungbote/adaptest-backend/internal/domain"
)

type Evaluator interface {
	Evaluate(ctx context.Context, q domain.Question, answer, explanation string) (domain.Evaluation, error)
}

// ZeroEvaluation is the degraded verdict used when the oracle itself fails;
// the answer flow records it rather than erroring, so grading trouble never
// blocks a learner. It carries no misconceptions: an oracle outage says
// nothing about what the learner misunderstands.
func ZeroEvaluation() domain.Evaluation {
	return domain.Evaluation{
		Accuracy:         0,
		ExplanationScore: 0,
		FinalScore:       0,
		Misconceptions:   []string{},
	}
}
