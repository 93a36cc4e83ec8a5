package bank

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/adaptest-backend/internal/domain"
)

func TestNewRejectsBadEntries(t *testing.T) {
	good := domain.Question{ID: "q1", BloomLevel: 1, Difficulty: 1, Prompt: "What is a stack?"}

	cases := []struct {
		name      string
		questions []domain.Question
	}{
		{"empty id", []domain.Question{{BloomLevel: 1, Difficulty: 1, Prompt: "p"}}},
		{"duplicate id", []domain.Question{good, good}},
		{"bloom out of range", []domain.Question{{ID: "q2", BloomLevel: 6, Difficulty: 1, Prompt: "p"}}},
		{"difficulty out of range", []domain.Question{{ID: "q2", BloomLevel: 1, Difficulty: 0, Prompt: "p"}}},
		{"empty prompt", []domain.Question{{ID: "q2", BloomLevel: 1, Difficulty: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.questions); err == nil {
				t.Fatalf("want validation error")
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	doc := `questions:
  - id: q1
    bloom_level: 1
    difficulty: 1
    prompt: What does a hash table trade for O(1) lookup?
    reference_answer: memory space collisions
    misconceptions: [hash-is-sorted]
  - id: q2
    bloom_level: 3
    difficulty: 2
    prompt: Explain rehashing.
    reference_answer: resize buckets load factor
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	b, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("len: want 2, got %d", b.Len())
	}
	q, ok := b.Get("q1")
	if !ok {
		t.Fatalf("q1 missing")
	}
	if q.ReferenceAnswer == "" || len(q.Misconceptions) != 1 {
		t.Fatalf("yaml fields not decoded: %+v", q)
	}
}

func TestLoadRejectsEmptyBank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	if err := os.WriteFile(path, []byte("questions: []\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("want error for empty bank")
	}
}
