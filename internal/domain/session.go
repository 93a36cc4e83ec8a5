package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// SubjectRef identifies the learner behind a session. One Active session is
// allowed per (subject, resource link) pair at a time.
type SubjectRef struct {
	SubjectID      string
	Issuer         string
	ResourceLinkID string
}

// Evaluation is the scoring oracle's verdict on a single response. All
// scores are in [0,1].
type Evaluation struct {
	Accuracy         float64  `json:"accuracy"`
	ExplanationScore float64  `json:"explanation_score"`
	FinalScore       float64  `json:"final_score"`
	Misconceptions   []string `json:"misconceptions"`
}

// Response is one answered question in a session's history.
type Response struct {
	QuestionID  string     `json:"question_id"`
	Answer      string     `json:"answer"`
	Explanation string     `json:"explanation"`
	Evaluation  Evaluation `json:"evaluation"`
}

// Session is the adaptive assessment state for one learner. It is mutated
// only through the session store's single-writer contract.
type Session struct {
	ID              uuid.UUID
	Learner         SubjectRef
	Name            string
	Difficulty      int
	BloomLevel      int
	History         []Response
	Misconceptions  map[string]struct{}
	Launch          *VerifiedLaunch
	CurrentQuestion *Question
	QuestionNumber  int
	MaxQuestions    int
	CreatedAt       time.Time
	LastActiveAt    time.Time
	Status          SessionStatus
}

// Clone returns a deep copy safe to hand out while the original stays under
// the store's lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.History = make([]Response, len(s.History))
	copy(cp.History, s.History)
	cp.Misconceptions = make(map[string]struct{}, len(s.Misconceptions))
	for k := range s.Misconceptions {
		cp.Misconceptions[k] = struct{}{}
	}
	if s.CurrentQuestion != nil {
		q := *s.CurrentQuestion
		cp.CurrentQuestion = &q
	}
	return &cp
}

// Summary is a pure aggregation over a session's history.
type Summary struct {
	FinalScore         float64    `json:"final_score"`
	AverageAccuracy    float64    `json:"average_accuracy"`
	AverageExplanation float64    `json:"average_explanation"`
	TotalQuestions     int        `json:"total_questions"`
	Responses          []Response `json:"responses"`
}
