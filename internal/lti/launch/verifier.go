// Package launch implements the OIDC third-party-initiated login and the
// validation of the signed launch assertion that follows it.
package launch

import (
	"context"
	"fmt"
	"net/url"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/adaptest-backend/internal/domain"
	"github.com/yungbote/adaptest-backend/internal/lti/keys"
	"github.com/yungbote/adaptest-backend/internal/lti/nonce"
	"github.com/yungbote/adaptest-backend/internal/pkg/errs"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

// LoginRequest carries the parameters of an OIDC login initiation.
type LoginRequest struct {
	Issuer         string
	ClientID       string
	LoginHint      string
	TargetLinkURI  string
	LTIMessageHint string
}

// RedirectInstruction tells the caller where to send the browser for the
// platform-side authorization step.
type RedirectInstruction struct {
	AuthorizationURL string
	Params           url.Values
}

func (r *RedirectInstruction) RedirectURL() string {
	return r.AuthorizationURL + "?" + r.Params.Encode()
}

type Verifier struct {
	log       *logger.Logger
	registry  *Registry
	ledger    nonce.Ledger
	keys      *keys.Store
	launchURL string
}

func NewVerifier(baseLog *logger.Logger, registry *Registry, ledger nonce.Ledger, keyStore *keys.Store, launchURL string) *Verifier {
	return &Verifier{
		log:       baseLog.With("component", "LaunchVerifier"),
		registry:  registry,
		ledger:    ledger,
		keys:      keyStore,
		launchURL: launchURL,
	}
}

// BeginLogin validates the initiation against the trust table, issues a
// fresh state/nonce pair, and returns the authorization redirect.
func (v *Verifier) BeginLogin(ctx context.Context, req LoginRequest) (*RedirectInstruction, error) {
	p, ok := v.registry.Lookup(req.Issuer)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownIssuer, req.Issuer)
	}
	if req.ClientID != "" && req.ClientID != p.ClientID {
		return nil, fmt.Errorf("%w: %q for issuer %q", errs.ErrUnknownClient, req.ClientID, req.Issuer)
	}

	state, nonceVal, err := v.ledger.Issue(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue login state: %w", err)
	}

	params := url.Values{}
	params.Set("response_type", "id_token")
	params.Set("response_mode", "form_post")
	params.Set("client_id", p.ClientID)
	params.Set("redirect_uri", v.launchURL)
	params.Set("scope", "openid")
	params.Set("state", state)
	params.Set("nonce", nonceVal)
	params.Set("prompt", "none")
	if req.LoginHint != "" {
		params.Set("login_hint", req.LoginHint)
	}
	if req.LTIMessageHint != "" {
		params.Set("lti_message_hint", req.LTIMessageHint)
	}

	v.log.Debug("login initiated", "issuer", p.Issuer)
	return &RedirectInstruction{AuthorizationURL: p.AuthLoginURL, Params: params}, nil
}

// CompleteLaunch validates an inbound launch assertion end to end. Any
// failure is terminal for the attempt; no partial state is retained.
func (v *Verifier) CompleteLaunch(ctx context.Context, idToken, state string) (*domain.VerifiedLaunch, error) {
	// Peek at the unverified issuer to pick the trust entry. Nothing from
	// this pass is trusted beyond key selection.
	peek := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, peek); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedAssertion, err)
	}
	issuer, err := peek.GetIssuer()
	if err != nil || issuer == "" {
		return nil, fmt.Errorf("%w: assertion has no issuer", errs.ErrMalformedAssertion)
	}
	p, ok := v.registry.Lookup(issuer)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownIssuer, issuer)
	}

	claims := &launchClaims{}
	if err := v.keys.VerifyIDToken(ctx, p.Issuer, p.JWKSURL, idToken, claims); err != nil {
		return nil, err
	}

	if claims.Nonce == "" {
		return nil, fmt.Errorf("%w: assertion has no nonce", errs.ErrMalformedAssertion)
	}
	if err := v.ledger.Consume(ctx, state, claims.Nonce); err != nil {
		return nil, err
	}

	if err := v.checkRequiredClaims(claims, p); err != nil {
		return nil, err
	}

	launch := &domain.VerifiedLaunch{
		SubjectID:      claims.Subject,
		Name:           claims.Name,
		Issuer:         p.Issuer,
		ClientID:       p.ClientID,
		DeploymentID:   claims.DeploymentID,
		ContextID:      claims.Context.ID,
		ContextTitle:   claims.Context.Title,
		ResourceLinkID: claims.ResourceLink.ID,
		AGS:            claims.AGS,
		Custom:         claims.Custom,
		Roles:          claims.Roles,
	}
	v.log.Info("launch verified",
		"issuer", launch.Issuer,
		"deployment_id", launch.DeploymentID,
		"resource_link_id", launch.ResourceLinkID,
		"subject", launch.SubjectID,
		"gradable", launch.Gradable(),
	)
	return launch, nil
}

func (v *Verifier) checkRequiredClaims(claims *launchClaims, p Platform) error {
	if claims.Issuer != p.Issuer {
		return fmt.Errorf("%w: issuer mismatch", errs.ErrMalformedAssertion)
	}
	if !claims.hasAudience(p.ClientID) {
		return fmt.Errorf("%w: audience mismatch", errs.ErrMalformedAssertion)
	}
	// With multiple audiences the authorized party must be this client.
	if len(claims.Audience) > 1 || claims.Azp != "" {
		if claims.Azp != "" && claims.Azp != p.ClientID {
			return fmt.Errorf("%w: azp mismatch", errs.ErrMalformedAssertion)
		}
	}
	if claims.Subject == "" {
		return fmt.Errorf("%w: assertion has no subject", errs.ErrMalformedAssertion)
	}
	if claims.MessageType != messageTypeResourceLink {
		return fmt.Errorf("%w: unsupported message type %q", errs.ErrMalformedAssertion, claims.MessageType)
	}
	if claims.Version != ltiVersion13 {
		return fmt.Errorf("%w: unsupported version %q", errs.ErrMalformedAssertion, claims.Version)
	}
	if claims.DeploymentID == "" {
		return fmt.Errorf("%w: assertion has no deployment id", errs.ErrMalformedAssertion)
	}
	if !p.allowsDeployment(claims.DeploymentID) {
		return fmt.Errorf("%w: deployment %q not registered", errs.ErrMalformedAssertion, claims.DeploymentID)
	}
	if claims.ResourceLink.ID == "" {
		return fmt.Errorf("%w: assertion has no resource link", errs.ErrMalformedAssertion)
	}
	return nil
}
