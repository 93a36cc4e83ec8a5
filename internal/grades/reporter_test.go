package grades

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/adaptest-backend/internal/domain"
	"github.com/yungbote/adaptest-backend/internal/lti/keys"
	"github.com/yungbote/adaptest-backend/internal/lti/launch"
	"github.com/yungbote/adaptest-backend/internal/pkg/errs"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

// fakePlatform stands in for the LMS token and scores endpoints. scoreCodes
// scripts the scores endpoint response per call, last entry repeating.
type fakePlatform struct {
	srv        *httptest.Server
	tokenHits  atomic.Int64
	scoreHits  atomic.Int64
	scoreCodes []int

	lastScoreBody map[string]interface{}
	lastScorePath string
	lastQuery     string
	lastAuth      string
	lastCType     string
}

func newFakePlatform(t *testing.T, scoreCodes ...int) *fakePlatform {
	t.Helper()
	fp := &fakePlatform{scoreCodes: scoreCodes}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		fp.tokenHits.Add(1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "client_credentials" || r.PostForm.Get("client_assertion") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "bearer-abc",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/lineitems/", func(w http.ResponseWriter, r *http.Request) {
		n := fp.scoreHits.Add(1)
		fp.lastScorePath = r.URL.Path
		fp.lastQuery = r.URL.RawQuery
		fp.lastAuth = r.Header.Get("Authorization")
		fp.lastCType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &fp.lastScoreBody)

		code := http.StatusOK
		if len(fp.scoreCodes) > 0 {
			idx := int(n) - 1
			if idx >= len(fp.scoreCodes) {
				idx = len(fp.scoreCodes) - 1
			}
			code = fp.scoreCodes[idx]
		}
		w.WriteHeader(code)
	})
	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

type reporterEnv struct {
	reporter *Reporter
	platform *fakePlatform
	issuer   string
}

func newReporterEnv(t *testing.T, opts Options, scoreCodes ...int) *reporterEnv {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	fp := newFakePlatform(t, scoreCodes...)

	keyStore, err := keys.New(log, keys.Options{})
	if err != nil {
		t.Fatalf("init key store: %v", err)
	}
	registry, err := launch.NewRegistry([]launch.Platform{{
		Issuer:   fp.srv.URL,
		ClientID: "client-123",
		TokenURL: fp.srv.URL + "/token",
		JWKSURL:  fp.srv.URL + "/jwks",
	}})
	if err != nil {
		t.Fatalf("init registry: %v", err)
	}
	if opts.Backoff == 0 {
		opts.Backoff = time.Millisecond
	}
	return &reporterEnv{
		reporter: New(log, keyStore, registry, opts),
		platform: fp,
		issuer:   fp.srv.URL,
	}
}

func (e *reporterEnv) gradableSession() *domain.Session {
	return &domain.Session{
		ID:      uuid.New(),
		Learner: domain.SubjectRef{SubjectID: "learner-7", Issuer: e.issuer, ResourceLinkID: "rl-1"},
		Launch: &domain.VerifiedLaunch{
			Issuer:   e.issuer,
			ClientID: "client-123",
			AGS:      &domain.AGSEndpoint{LineItem: e.issuer + "/lineitems/7?type=score"},
		},
	}
}

func TestSubmitDeliversScore(t *testing.T) {
	e := newReporterEnv(t, Options{})
	sum := domain.Summary{FinalScore: 0.8, AverageAccuracy: 0.9, AverageExplanation: 0.7, TotalQuestions: 10}

	sub, err := e.reporter.Submit(context.Background(), e.gradableSession(), sum, ProgressCompleted)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.DeliveryState != domain.DeliveryDelivered {
		t.Fatalf("state: want delivered, got %s", sub.DeliveryState)
	}
	if sub.Attempts != 1 {
		t.Fatalf("attempts: want 1, got %d", sub.Attempts)
	}
	if sub.SubmittedAt.IsZero() {
		t.Fatalf("delivered submission must carry a timestamp")
	}

	fp := e.platform
	if fp.lastScorePath != "/lineitems/7/scores" {
		t.Fatalf("scores path: want /lineitems/7/scores, got %s", fp.lastScorePath)
	}
	if fp.lastQuery != "type=score" {
		t.Fatalf("line item query lost: got %q", fp.lastQuery)
	}
	if fp.lastAuth != "Bearer bearer-abc" {
		t.Fatalf("auth header: got %q", fp.lastAuth)
	}
	if fp.lastCType != scoreContentType {
		t.Fatalf("content type: got %q", fp.lastCType)
	}
	body := fp.lastScoreBody
	if body["userId"] != "learner-7" {
		t.Fatalf("userId: got %v", body["userId"])
	}
	if body["scoreGiven"] != 0.8 || body["scoreMaximum"] != 1.0 {
		t.Fatalf("score fields: given=%v max=%v", body["scoreGiven"], body["scoreMaximum"])
	}
	if body["activityProgress"] != "Completed" || body["gradingProgress"] != "FullyGraded" {
		t.Fatalf("progress fields: %v / %v", body["activityProgress"], body["gradingProgress"])
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"].(string)); err != nil {
		t.Fatalf("timestamp not RFC3339: %v", body["timestamp"])
	}
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	e := newReporterEnv(t, Options{MaxAttempts: 3}, http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK)

	sub, err := e.reporter.Submit(context.Background(), e.gradableSession(), domain.Summary{FinalScore: 0.5}, ProgressCompleted)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.DeliveryState != domain.DeliveryDelivered {
		t.Fatalf("state: want delivered, got %s", sub.DeliveryState)
	}
	if sub.Attempts != 3 {
		t.Fatalf("attempts: want 3, got %d", sub.Attempts)
	}
	if got := e.platform.scoreHits.Load(); got != 3 {
		t.Fatalf("score posts: want 3, got %d", got)
	}
}

func TestSubmitTerminalRejection(t *testing.T) {
	e := newReporterEnv(t, Options{MaxAttempts: 3}, http.StatusForbidden)

	sub, err := e.reporter.Submit(context.Background(), e.gradableSession(), domain.Summary{FinalScore: 0.5}, ProgressCompleted)
	if !errors.Is(err, errs.ErrGradeDeliveryTerminal) {
		t.Fatalf("want ErrGradeDeliveryTerminal, got %v", err)
	}
	if sub.DeliveryState != domain.DeliveryFailed {
		t.Fatalf("state: want failed, got %s", sub.DeliveryState)
	}
	if got := e.platform.scoreHits.Load(); got != 1 {
		t.Fatalf("terminal rejection must not retry: %d posts", got)
	}
}

func TestSubmitExhaustsRetries(t *testing.T) {
	e := newReporterEnv(t, Options{MaxAttempts: 2}, http.StatusServiceUnavailable)

	sub, err := e.reporter.Submit(context.Background(), e.gradableSession(), domain.Summary{FinalScore: 0.5}, ProgressCompleted)
	if !errors.Is(err, errs.ErrGradeDeliveryTransient) {
		t.Fatalf("want ErrGradeDeliveryTransient, got %v", err)
	}
	if sub.DeliveryState != domain.DeliveryFailed {
		t.Fatalf("state: want failed, got %s", sub.DeliveryState)
	}
	if sub.Attempts != 2 {
		t.Fatalf("attempts: want 2, got %d", sub.Attempts)
	}
	if sub.LastError == "" {
		t.Fatalf("failed submission must record last error")
	}
}

func TestSubmitRetriesUnreachableScoresEndpoint(t *testing.T) {
	e := newReporterEnv(t, Options{MaxAttempts: 2})

	// A scores endpoint that refuses connections is a platform outage,
	// not a rejection, so delivery keeps retrying until attempts run out.
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	sess := e.gradableSession()
	sess.Launch.AGS.LineItem = deadURL + "/lineitems/7"

	sub, err := e.reporter.Submit(context.Background(), sess, domain.Summary{FinalScore: 0.5}, ProgressCompleted)
	if !errors.Is(err, errs.ErrGradeDeliveryTransient) {
		t.Fatalf("want ErrGradeDeliveryTransient, got %v", err)
	}
	if sub.DeliveryState != domain.DeliveryFailed {
		t.Fatalf("state: want failed, got %s", sub.DeliveryState)
	}
	if sub.Attempts != 2 {
		t.Fatalf("attempts: want 2, got %d", sub.Attempts)
	}
}

func TestSubmitStandaloneSkipsDelivery(t *testing.T) {
	e := newReporterEnv(t, Options{})
	sess := e.gradableSession()
	sess.Launch = nil

	sub, err := e.reporter.Submit(context.Background(), sess, domain.Summary{FinalScore: 0.9}, ProgressCompleted)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.DeliveryState != domain.DeliveryDelivered {
		t.Fatalf("state: want delivered, got %s", sub.DeliveryState)
	}
	if e.platform.tokenHits.Load() != 0 || e.platform.scoreHits.Load() != 0 {
		t.Fatalf("standalone session must not call the platform")
	}
}

func TestSubmitUnknownIssuerFailsTerminally(t *testing.T) {
	e := newReporterEnv(t, Options{})
	sess := e.gradableSession()
	sess.Launch.Issuer = "https://gone.example"

	_, err := e.reporter.Submit(context.Background(), sess, domain.Summary{}, ProgressCompleted)
	if !errors.Is(err, errs.ErrGradeDeliveryTerminal) {
		t.Fatalf("want ErrGradeDeliveryTerminal, got %v", err)
	}
}

func TestTokenCachedAcrossSubmissions(t *testing.T) {
	e := newReporterEnv(t, Options{})
	sess := e.gradableSession()
	ctx := context.Background()

	if _, err := e.reporter.Submit(ctx, sess, domain.Summary{FinalScore: 0.4}, ProgressInProgress); err != nil {
		t.Fatalf("submit 1: %v", err)
	}
	if _, err := e.reporter.Submit(ctx, sess, domain.Summary{FinalScore: 0.6}, ProgressCompleted); err != nil {
		t.Fatalf("submit 2: %v", err)
	}
	if got := e.platform.tokenHits.Load(); got != 1 {
		t.Fatalf("token exchanges: want 1, got %d", got)
	}
}

func TestAttemptNumberTracksSubmissions(t *testing.T) {
	e := newReporterEnv(t, Options{})
	sess := e.gradableSession()
	ctx := context.Background()

	first, err := e.reporter.Submit(ctx, sess, domain.Summary{FinalScore: 0.4}, ProgressInProgress)
	if err != nil {
		t.Fatalf("submit 1: %v", err)
	}
	second, err := e.reporter.Submit(ctx, sess, domain.Summary{FinalScore: 0.6}, ProgressCompleted)
	if err != nil {
		t.Fatalf("submit 2: %v", err)
	}
	if first.AttemptNumber != 1 || second.AttemptNumber != 2 {
		t.Fatalf("attempt numbers: got %d then %d", first.AttemptNumber, second.AttemptNumber)
	}

	subs := e.reporter.Submissions(sess.ID)
	if len(subs) != 2 {
		t.Fatalf("submissions: want 2 records, got %d", len(subs))
	}
}

func TestScoreClampedToUnitRange(t *testing.T) {
	e := newReporterEnv(t, Options{})

	sub, err := e.reporter.Submit(context.Background(), e.gradableSession(), domain.Summary{FinalScore: 1.7}, ProgressCompleted)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Score != 1 {
		t.Fatalf("score: want clamped to 1, got %v", sub.Score)
	}
}

func TestScoresEndpointPreservesQuery(t *testing.T) {
	got, err := scoresEndpoint("https://lms.example/li/7?type=score")
	if err != nil {
		t.Fatalf("scores endpoint: %v", err)
	}
	if got != "https://lms.example/li/7/scores?type=score" {
		t.Fatalf("unexpected scores url: %s", got)
	}
}
