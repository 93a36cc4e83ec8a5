// Package grades converts local evaluation results into idempotent score
// submissions against the platform's AGS line item. Delivery is an explicit
// state machine (Pending -> Delivered/Failed) so outcomes are inspectable
// independent of network timing.
package grades

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/adaptest-backend/internal/domain"
	"github.com/yungbote/adaptest-backend/internal/lti/keys"
	"github.com/yungbote/adaptest-backend/internal/lti/launch"
	"github.com/yungbote/adaptest-backend/internal/pkg/errs"
	"github.com/yungbote/adaptest-backend/internal/pkg/httpx"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

const (
	scoreContentType = "application/vnd.ims.lis.v1.score+json"
	defaultAttempts  = 3
	defaultBackoff   = 500 * time.Millisecond
	maxBackoff       = 30 * time.Second
)

// Progress carries the AGS activity/grading progress pair for a score.
type Progress struct {
	Activity string
	Grading  string
}

var (
	ProgressCompleted  = Progress{Activity: "Completed", Grading: "FullyGraded"}
	ProgressInProgress = Progress{Activity: "InProgress", Grading: "FullyGraded"}
)

type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	HTTPClient  *http.Client
}

type Reporter struct {
	log         *logger.Logger
	registry    *launch.Registry
	tokens      *tokenClient
	client      *http.Client
	maxAttempts int
	backoff     time.Duration

	mu   sync.Mutex
	subs map[uuid.UUID][]*domain.GradeSubmission
}

func New(baseLog *logger.Logger, keyStore *keys.Store, registry *launch.Registry, opts Options) *Reporter {
	log := baseLog.With("component", "GradeReporter")
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Reporter{
		log:         log,
		registry:    registry,
		tokens:      newTokenClient(log, keyStore, opts.HTTPClient),
		client:      opts.HTTPClient,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		subs:        make(map[uuid.UUID][]*domain.GradeSubmission),
	}
}

// Submit delivers the summary score for the session. Standalone sessions
// (no AGS endpoint in the launch) get a local Delivered record with no
// outbound call, so completion never depends on grading availability.
// Transient failures are retried with jittered exponential backoff inside
// the attempt budget; auth/config rejections fail terminally.
func (r *Reporter) Submit(ctx context.Context, sess *domain.Session, sum domain.Summary, progress Progress) (*domain.GradeSubmission, error) {
	sub := &domain.GradeSubmission{
		ID:            uuid.New(),
		SessionID:     sess.ID,
		Score:         clamp01(sum.FinalScore),
		Comment:       fmt.Sprintf("Accuracy: %.0f%%, Explanation: %.0f%%", sum.AverageAccuracy*100, sum.AverageExplanation*100),
		DeliveryState: domain.DeliveryPending,
	}
	r.mu.Lock()
	sub.AttemptNumber = len(r.subs[sess.ID]) + 1
	r.subs[sess.ID] = append(r.subs[sess.ID], sub)
	r.mu.Unlock()

	if !sess.Launch.Gradable() {
		r.finish(sub, domain.DeliveryDelivered, "")
		r.log.Debug("standalone session, grade recorded locally", "session_id", sess.ID, "score", sub.Score)
		return sub.Clone(), nil
	}

	p, ok := r.registry.Lookup(sess.Launch.Issuer)
	if !ok {
		err := fmt.Errorf("%w: issuer %q no longer registered", errs.ErrGradeDeliveryTerminal, sess.Launch.Issuer)
		r.finish(sub, domain.DeliveryFailed, err.Error())
		return sub.Clone(), err
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		r.bumpAttempts(sub)
		retryAfter, err := r.deliver(ctx, p, sess, sub, progress)
		if err == nil {
			r.finish(sub, domain.DeliveryDelivered, "")
			r.log.Info("grade delivered",
				"session_id", sess.ID,
				"score", sub.Score,
				"attempt_number", sub.AttemptNumber,
				"attempts", attempt,
			)
			return sub.Clone(), nil
		}
		lastErr = err
		if errors.Is(err, errs.ErrGradeDeliveryTerminal) {
			r.finish(sub, domain.DeliveryFailed, err.Error())
			r.log.Error("grade delivery rejected", "session_id", sess.ID, "error", err)
			return sub.Clone(), err
		}
		r.log.Warn("grade delivery attempt failed", "session_id", sess.ID, "attempt", attempt, "error", err)
		if attempt < r.maxAttempts {
			backoff := httpx.JitterSleep(r.backoff << (attempt - 1))
			if retryAfter > backoff {
				backoff = retryAfter
			}
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			if err := httpx.Sleep(ctx, backoff); err != nil {
				lastErr = fmt.Errorf("%w: %v", errs.ErrGradeDeliveryTransient, err)
				break
			}
		}
	}

	r.finish(sub, domain.DeliveryFailed, lastErr.Error())
	r.log.Error("grade delivery exhausted retries", "session_id", sess.ID, "attempts", sub.Attempts, "error", lastErr)
	return sub.Clone(), lastErr
}

// Submissions returns copies of every delivery record for the session.
func (r *Reporter) Submissions(sessionID uuid.UUID) []*domain.GradeSubmission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.GradeSubmission, 0, len(r.subs[sessionID]))
	for _, s := range r.subs[sessionID] {
		out = append(out, s.Clone())
	}
	return out
}

func (r *Reporter) deliver(ctx context.Context, p launch.Platform, sess *domain.Session, sub *domain.GradeSubmission, progress Progress) (time.Duration, error) {
	token, err := r.tokens.bearer(ctx, p)
	if err != nil {
		return 0, err
	}

	scoresURL, err := scoresEndpoint(sess.Launch.AGS.LineItem)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrGradeDeliveryTerminal, err)
	}

	payload := map[string]interface{}{
		"userId":           sess.Learner.SubjectID,
		"scoreGiven":       sub.Score,
		"scoreMaximum":     1.0,
		"activityProgress": progress.Activity,
		"gradingProgress":  progress.Grading,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}
	if sub.Comment != "" {
		payload["comment"] = sub.Comment
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: encode score: %v", errs.ErrGradeDeliveryTerminal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, scoresURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: build score request: %v", errs.ErrGradeDeliveryTerminal, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", scoreContentType)

	resp, err := r.client.Do(req)
	if err != nil {
		if httpx.IsRetryableError(err) {
			return 0, fmt.Errorf("%w: post score: %v", errs.ErrGradeDeliveryTransient, err)
		}
		return 0, fmt.Errorf("%w: post score: %v", errs.ErrGradeDeliveryTerminal, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return 0, nil
	case httpx.IsRetryableHTTPStatus(resp.StatusCode):
		retryAfter := httpx.RetryAfterDuration(resp, 0, maxBackoff)
		return retryAfter, fmt.Errorf("%w: scores endpoint status %d", errs.ErrGradeDeliveryTransient, resp.StatusCode)
	default:
		return 0, fmt.Errorf("%w: scores endpoint status %d", errs.ErrGradeDeliveryTerminal, resp.StatusCode)
	}
}

func (r *Reporter) bumpAttempts(sub *domain.GradeSubmission) {
	r.mu.Lock()
	sub.Attempts++
	r.mu.Unlock()
}

// finish moves the state machine one way only; a Delivered submission is
// never mutated again.
func (r *Reporter) finish(sub *domain.GradeSubmission, state domain.DeliveryState, lastError string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.DeliveryState == domain.DeliveryDelivered {
		return
	}
	sub.DeliveryState = state
	sub.LastError = lastError
	if state == domain.DeliveryDelivered {
		sub.SubmittedAt = time.Now()
	}
}

// scoresEndpoint appends /scores to the line item path, preserving any
// query string the platform put on the line item URL.
func scoresEndpoint(lineItem string) (string, error) {
	u, err := url.Parse(lineItem)
	if err != nil {
		return "", fmt.Errorf("parse line item url: %w", err)
	}
	u.Path += "/scores"
	return u.String(), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
