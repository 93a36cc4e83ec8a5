package domain

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryFailed    DeliveryState = "failed"
)

// GradeSubmission tracks one upstream score delivery. The (SessionID,
// AttemptNumber) pair is the idempotency tag: retries resend the same score
// and the platform keeps the last write per line item. A submission is never
// mutated after reaching Delivered.
type GradeSubmission struct {
	ID            uuid.UUID     `json:"id"`
	SessionID     uuid.UUID     `json:"session_id"`
	Score         float64       `json:"score"`
	Comment       string        `json:"comment,omitempty"`
	AttemptNumber int           `json:"attempt_number"`
	SubmittedAt   time.Time     `json:"submitted_at"`
	DeliveryState DeliveryState `json:"delivery_state"`
	Attempts      int           `json:"attempts"`
	LastError     string        `json:"last_error,omitempty"`
}

func (g *GradeSubmission) Clone() *GradeSubmission {
	if g == nil {
		return nil
	}
	cp := *g
	return &cp
}
