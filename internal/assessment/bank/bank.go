// Package bank loads and indexes the external question bank. Questions are
// immutable; sessions only ever reference them by id.
package bank

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/adaptest-backend/internal/domain"
)

type bankFile struct {
	Questions []domain.Question `yaml:"questions"`
}

type Bank struct {
	questions []domain.Question
	byID      map[string]domain.Question
}

func New(questions []domain.Question) (*Bank, error) {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question with empty id")
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		if q.BloomLevel < domain.MinLevel || q.BloomLevel > domain.MaxLevel {
			return nil, fmt.Errorf("question %q: bloom_level %d out of range", q.ID, q.BloomLevel)
		}
		if q.Difficulty < domain.MinLevel || q.Difficulty > domain.MaxLevel {
			return nil, fmt.Errorf("question %q: difficulty %d out of range", q.ID, q.Difficulty)
		}
		if q.Prompt == "" {
			return nil, fmt.Errorf("question %q: empty prompt", q.ID)
		}
		byID[q.ID] = q
	}
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	return &Bank{questions: out, byID: byID}, nil
}

func Load(path string) (*Bank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	var f bankFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if len(f.Questions) == 0 {
		return nil, fmt.Errorf("question bank %s is empty", path)
	}
	return New(f.Questions)
}

// All returns the bank contents in load order. Callers must not mutate the
// returned slice.
func (b *Bank) All() []domain.Question { return b.questions }

func (b *Bank) Get(id string) (domain.Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

func (b *Bank) Len() int { return len(b.questions) }
