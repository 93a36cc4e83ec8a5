// Package engine drives question selection and level adaptation. Selection
// is deterministic for a given history and bank so behavior is testable:
// candidates are ranked by level distance and ties break on lowest id.
package engine

import (
	"fmt"
	"sort"

	"github.com/yungbote/adaptest-backend/internal/assessment/bank"
	"github.com/yungbote/adaptest-backend/internal/domain"
	"github.com/yungbote/adaptest-backend/internal/pkg/errs"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

// Adaptation thresholds: strong performance raises both levels, serious
// difficulty lowers both, a middling miss lowers difficulty alone.
const (
	raiseThreshold       = 0.85
	lowerBothThreshold   = 0.30
	lowerDifficultyBelow = 0.50
)

type Engine struct {
	log  *logger.Logger
	bank *bank.Bank
}

func New(baseLog *logger.Logger, b *bank.Bank) *Engine {
	return &Engine{
		log:  baseLog.With("component", "AdaptiveEngine"),
		bank: b,
	}
}

// NextQuestion picks the next unasked question for the session and marks it
// current. When the misconception log is non-empty, bank entries tagged
// with a logged misconception are preferred; otherwise (and as fallback)
// the nearest available level to the session's (difficulty, bloom) wins.
func (e *Engine) NextQuestion(s *domain.Session) (*domain.Question, error) {
	asked := make(map[string]struct{}, len(s.History)+1)
	for _, r := range s.History {
		asked[r.QuestionID] = struct{}{}
	}
	if s.CurrentQuestion != nil {
		asked[s.CurrentQuestion.ID] = struct{}{}
	}

	candidates := make([]domain.Question, 0, e.bank.Len())
	for _, q := range e.bank.All() {
		if _, dup := asked[q.ID]; dup {
			continue
		}
		candidates = append(candidates, q)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %d questions asked", errs.ErrBankExhausted, len(asked))
	}

	if len(s.Misconceptions) > 0 {
		targeted := make([]domain.Question, 0, len(candidates))
		for _, q := range candidates {
			if q.TargetsAny(s.Misconceptions) {
				targeted = append(targeted, q)
			}
		}
		if len(targeted) > 0 {
			candidates = targeted
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		di := levelDistance(candidates[i], s)
		dj := levelDistance(candidates[j], s)
		if di != dj {
			return di < dj
		}
		return candidates[i].ID < candidates[j].ID
	})

	pick := candidates[0]
	s.CurrentQuestion = &pick
	e.log.Debug("question selected",
		"session_id", s.ID,
		"question_id", pick.ID,
		"difficulty", pick.Difficulty,
		"bloom_level", pick.BloomLevel,
	)
	return &pick, nil
}

// RecordEvaluation appends the response to history, folds reported
// misconceptions into the session log, and applies the level policy.
// Clamping saturates at the configured bounds; repeated low scores at the
// floor simply stay there.
func (e *Engine) RecordEvaluation(s *domain.Session, resp domain.Response) {
	s.History = append(s.History, resp)
	for _, m := range resp.Evaluation.Misconceptions {
		s.Misconceptions[m] = struct{}{}
	}

	score := resp.Evaluation.FinalScore
	switch {
	case score >= raiseThreshold:
		s.Difficulty = clampLevel(s.Difficulty + 1)
		s.BloomLevel = clampLevel(s.BloomLevel + 1)
	case score < lowerBothThreshold:
		s.Difficulty = clampLevel(s.Difficulty - 1)
		s.BloomLevel = clampLevel(s.BloomLevel - 1)
	case score < lowerDifficultyBelow:
		s.Difficulty = clampLevel(s.Difficulty - 1)
	}

	s.QuestionNumber = len(s.History) + 1
	s.CurrentQuestion = nil
}

func (e *Engine) IsComplete(s *domain.Session) bool {
	return len(s.History) >= s.MaxQuestions
}

// Summarize aggregates history without side effects; calling it twice on
// an unchanged session yields identical results.
func (e *Engine) Summarize(s *domain.Session) domain.Summary {
	sum := domain.Summary{
		TotalQuestions: len(s.History),
		Responses:      make([]domain.Response, len(s.History)),
	}
	copy(sum.Responses, s.History)
	if len(s.History) == 0 {
		return sum
	}
	for _, r := range s.History {
		sum.AverageAccuracy += r.Evaluation.Accuracy
		sum.AverageExplanation += r.Evaluation.ExplanationScore
		sum.FinalScore += r.Evaluation.FinalScore
	}
	n := float64(len(s.History))
	sum.AverageAccuracy /= n
	sum.AverageExplanation /= n
	sum.FinalScore /= n
	return sum
}

func levelDistance(q domain.Question, s *domain.Session) int {
	return abs(q.Difficulty-s.Difficulty) + abs(q.BloomLevel-s.BloomLevel)
}

func clampLevel(v int) int {
	if v < domain.MinLevel {
		return domain.MinLevel
	}
	if v > domain.MaxLevel {
		return domain.MaxLevel
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
