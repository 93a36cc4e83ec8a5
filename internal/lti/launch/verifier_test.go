package launch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/adaptest-backend/internal/domain"
	"github.com/yungbote/adaptest-backend/internal/lti/keys"
	"github.com/yungbote/adaptest-backend/internal/lti/nonce"
	"github.com/yungbote/adaptest-backend/internal/pkg/errs"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

const (
	testIssuer   = "https://platform.example"
	testClientID = "client-123"
	testLaunch   = "https://tool.example/lti/launch"
)

type launchEnv struct {
	verifier *Verifier
	signer   *keys.Store
	ledger   nonce.Ledger
}

func newLaunchEnv(t *testing.T) *launchEnv {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}

	signer, err := keys.New(log, keys.Options{})
	if err != nil {
		t.Fatalf("init platform signer: %v", err)
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(signer.PublicJWKS())
	}))
	t.Cleanup(ts.Close)

	registry, err := NewRegistry([]Platform{{
		Issuer:        testIssuer,
		ClientID:      testClientID,
		AuthLoginURL:  testIssuer + "/authorize",
		TokenURL:      testIssuer + "/token",
		JWKSURL:       ts.URL,
		DeploymentIDs: []string{"deploy-1"},
	}})
	if err != nil {
		t.Fatalf("init registry: %v", err)
	}

	verifierKeys, err := keys.New(log, keys.Options{})
	if err != nil {
		t.Fatalf("init tool keys: %v", err)
	}
	ledger := nonce.NewMemoryLedger(log, time.Minute)
	t.Cleanup(ledger.Close)

	return &launchEnv{
		verifier: NewVerifier(log, registry, ledger, verifierKeys, testLaunch),
		signer:   signer,
		ledger:   ledger,
	}
}

func baseClaims(nonceVal string) *launchClaims {
	now := time.Now()
	return &launchClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "learner-42",
			Audience:  jwt.ClaimStrings{testClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
		Nonce:        nonceVal,
		Name:         "Ada Lovelace",
		MessageType:  messageTypeResourceLink,
		Version:      ltiVersion13,
		DeploymentID: "deploy-1",
		ResourceLink: resourceLinkClaim{ID: "rl-1", Title: "Unit quiz"},
		Context:      contextClaim{ID: "course-9", Title: "Algorithms"},
		Roles:        []string{"http://purl.imsglobal.org/vocab/lis/v2/membership#Learner"},
		AGS: &domain.AGSEndpoint{
			LineItem: testIssuer + "/lineitems/7",
			Scopes:   []string{"https://purl.imsglobal.org/spec/lti-ags/scope/score"},
		},
	}
}

func (e *launchEnv) beginLogin(t *testing.T) (state, nonceVal string) {
	t.Helper()
	ri, err := e.verifier.BeginLogin(context.Background(), LoginRequest{
		Issuer:    testIssuer,
		ClientID:  testClientID,
		LoginHint: "learner-42",
	})
	if err != nil {
		t.Fatalf("begin login: %v", err)
	}
	return ri.Params.Get("state"), ri.Params.Get("nonce")
}

func (e *launchEnv) signToken(t *testing.T, claims *launchClaims) string {
	t.Helper()
	raw, err := e.signer.SignJWT(claims)
	if err != nil {
		t.Fatalf("sign launch token: %v", err)
	}
	return raw
}

func TestBeginLoginRedirect(t *testing.T) {
	e := newLaunchEnv(t)
	ri, err := e.verifier.BeginLogin(context.Background(), LoginRequest{
		Issuer:         testIssuer,
		LoginHint:      "learner-42",
		LTIMessageHint: "hint-1",
	})
	if err != nil {
		t.Fatalf("begin login: %v", err)
	}

	u, err := url.Parse(ri.RedirectURL())
	if err != nil {
		t.Fatalf("parse redirect url: %v", err)
	}
	q := u.Query()
	for key, want := range map[string]string{
		"response_type":    "id_token",
		"response_mode":    "form_post",
		"client_id":        testClientID,
		"redirect_uri":     testLaunch,
		"scope":            "openid",
		"prompt":           "none",
		"login_hint":       "learner-42",
		"lti_message_hint": "hint-1",
	} {
		if got := q.Get(key); got != want {
			t.Fatalf("param %s: want %q got %q", key, want, got)
		}
	}
	if q.Get("state") == "" || q.Get("nonce") == "" {
		t.Fatalf("redirect missing state or nonce")
	}
}

func TestBeginLoginRejectsUnknown(t *testing.T) {
	e := newLaunchEnv(t)
	ctx := context.Background()

	if _, err := e.verifier.BeginLogin(ctx, LoginRequest{Issuer: "https://stranger.example"}); !errors.Is(err, errs.ErrUnknownIssuer) {
		t.Fatalf("unknown issuer: want ErrUnknownIssuer, got %v", err)
	}
	if _, err := e.verifier.BeginLogin(ctx, LoginRequest{Issuer: testIssuer, ClientID: "other-client"}); !errors.Is(err, errs.ErrUnknownClient) {
		t.Fatalf("wrong client: want ErrUnknownClient, got %v", err)
	}
}

func TestCompleteLaunchHappyPath(t *testing.T) {
	e := newLaunchEnv(t)
	state, nonceVal := e.beginLogin(t)
	raw := e.signToken(t, baseClaims(nonceVal))

	launch, err := e.verifier.CompleteLaunch(context.Background(), raw, state)
	if err != nil {
		t.Fatalf("complete launch: %v", err)
	}
	if launch.SubjectID != "learner-42" {
		t.Fatalf("subject: want %q got %q", "learner-42", launch.SubjectID)
	}
	if launch.Issuer != testIssuer || launch.ClientID != testClientID {
		t.Fatalf("trust identity mismatch: %+v", launch)
	}
	if launch.DeploymentID != "deploy-1" || launch.ResourceLinkID != "rl-1" {
		t.Fatalf("launch context mismatch: %+v", launch)
	}
	if launch.ContextID != "course-9" || launch.ContextTitle != "Algorithms" {
		t.Fatalf("course context mismatch: %+v", launch)
	}
	if !launch.Gradable() {
		t.Fatalf("launch with AGS line item must be gradable")
	}
}

func TestCompleteLaunchWithoutAGSIsStandalone(t *testing.T) {
	e := newLaunchEnv(t)
	state, nonceVal := e.beginLogin(t)
	claims := baseClaims(nonceVal)
	claims.AGS = nil
	raw := e.signToken(t, claims)

	launch, err := e.verifier.CompleteLaunch(context.Background(), raw, state)
	if err != nil {
		t.Fatalf("complete launch: %v", err)
	}
	if launch.Gradable() {
		t.Fatalf("launch without AGS must not be gradable")
	}
}

func TestCompleteLaunchReplay(t *testing.T) {
	e := newLaunchEnv(t)
	state, nonceVal := e.beginLogin(t)
	raw := e.signToken(t, baseClaims(nonceVal))

	ctx := context.Background()
	if _, err := e.verifier.CompleteLaunch(ctx, raw, state); err != nil {
		t.Fatalf("first launch: %v", err)
	}
	if _, err := e.verifier.CompleteLaunch(ctx, raw, state); !errors.Is(err, errs.ErrReplayOrExpired) {
		t.Fatalf("replay: want ErrReplayOrExpired, got %v", err)
	}
}

func TestCompleteLaunchUnknownIssuer(t *testing.T) {
	e := newLaunchEnv(t)
	state, nonceVal := e.beginLogin(t)
	claims := baseClaims(nonceVal)
	claims.RegisteredClaims.Issuer = "https://stranger.example"
	raw := e.signToken(t, claims)

	if _, err := e.verifier.CompleteLaunch(context.Background(), raw, state); !errors.Is(err, errs.ErrUnknownIssuer) {
		t.Fatalf("want ErrUnknownIssuer, got %v", err)
	}
}

func TestCompleteLaunchGarbageToken(t *testing.T) {
	e := newLaunchEnv(t)
	if _, err := e.verifier.CompleteLaunch(context.Background(), "not-a-jwt", "state"); !errors.Is(err, errs.ErrMalformedAssertion) {
		t.Fatalf("want ErrMalformedAssertion, got %v", err)
	}
}

func TestCompleteLaunchClaimRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*launchClaims)
	}{
		{"audience mismatch", func(c *launchClaims) { c.Audience = jwt.ClaimStrings{"someone-else"} }},
		{"azp mismatch", func(c *launchClaims) {
			c.Audience = jwt.ClaimStrings{testClientID, "other"}
			c.Azp = "other"
		}},
		{"missing subject", func(c *launchClaims) { c.Subject = "" }},
		{"wrong message type", func(c *launchClaims) { c.MessageType = "LtiDeepLinkingRequest" }},
		{"wrong version", func(c *launchClaims) { c.Version = "1.1" }},
		{"missing deployment", func(c *launchClaims) { c.DeploymentID = "" }},
		{"unregistered deployment", func(c *launchClaims) { c.DeploymentID = "deploy-9" }},
		{"missing resource link", func(c *launchClaims) { c.ResourceLink = resourceLinkClaim{} }},
		{"missing nonce", func(c *launchClaims) { c.Nonce = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newLaunchEnv(t)
			state, nonceVal := e.beginLogin(t)
			claims := baseClaims(nonceVal)
			tc.mutate(claims)
			raw := e.signToken(t, claims)

			if _, err := e.verifier.CompleteLaunch(context.Background(), raw, state); !errors.Is(err, errs.ErrMalformedAssertion) {
				t.Fatalf("want ErrMalformedAssertion, got %v", err)
			}
		})
	}
}

func TestCompleteLaunchExpiredToken(t *testing.T) {
	e := newLaunchEnv(t)
	state, nonceVal := e.beginLogin(t)
	claims := baseClaims(nonceVal)
	claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	raw := e.signToken(t, claims)

	if _, err := e.verifier.CompleteLaunch(context.Background(), raw, state); !errors.Is(err, errs.ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
}
