package scoring

import (
	"context"
	"strings"
	"unicode"

	"github.com/yungbote/adaptest-backend/internal/domain"
)

const (
	accuracyWeight    = 0.7
	explanationWeight = 0.3
	// explanationFullLength is the word count at which length stops adding
	// to the explanation score.
	explanationFullLength = 20
)

// LexicalEvaluator is the deterministic in-tree oracle: term overlap with
// the reference answer for accuracy, overlap plus depth for explanation
// quality. It exists so the engine is fully testable offline; deployments
// that want semantic grading swap in their own Evaluator.
type LexicalEvaluator struct{}

func NewLexicalEvaluator() *LexicalEvaluator { return &LexicalEvaluator{} }

func (e *LexicalEvaluator) Evaluate(ctx context.Context, q domain.Question, answer, explanation string) (domain.Evaluation, error) {
	ref := tokenize(q.ReferenceAnswer)
	answerTokens := tokenize(answer)
	explTokens := tokenize(explanation)

	accuracy := overlap(answerTokens, ref)
	depth := float64(len(explTokens)) / explanationFullLength
	if depth > 1 {
		depth = 1
	}
	explScore := 0.5*overlap(explTokens, ref) + 0.5*depth

	eval := domain.Evaluation{
		Accuracy:         accuracy,
		ExplanationScore: explScore,
		FinalScore:       accuracyWeight*accuracy + explanationWeight*explScore,
		Misconceptions:   []string{},
	}
	// A weak answer to a tagged question is the signal the bank author
	// declared for that misconception.
	if accuracy < 0.5 {
		eval.Misconceptions = append(eval.Misconceptions, q.Misconceptions...)
	}
	return eval, nil
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) < 3 {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(got, want map[string]struct{}) float64 {
	if len(want) == 0 {
		return 0
	}
	hits := 0
	for w := range want {
		if _, ok := got[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}
