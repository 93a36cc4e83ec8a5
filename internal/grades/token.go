package grades

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/adaptest-backend/internal/lti/keys"
	"github.com/yungbote/adaptest-backend/internal/lti/launch"
	"github.com/yungbote/adaptest-backend/internal/pkg/errs"
	"github.com/yungbote/adaptest-backend/internal/pkg/httpx"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

const (
	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	scopeScore          = "https://purl.imsglobal.org/spec/lti-ags/scope/score"
	assertionLifetime   = 5 * time.Minute
	// tokenExpiryMargin refreshes cached bearers slightly early so a token
	// never expires mid-request.
	tokenExpiryMargin = 60 * time.Second
)

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// tokenClient exchanges a signed client assertion for a platform bearer
// token and caches it per issuer until near expiry.
type tokenClient struct {
	log    *logger.Logger
	keys   *keys.Store
	client *http.Client

	mu    sync.Mutex
	cache map[string]cachedToken
}

func newTokenClient(log *logger.Logger, keyStore *keys.Store, client *http.Client) *tokenClient {
	return &tokenClient{
		log:    log,
		keys:   keyStore,
		client: client,
		cache:  make(map[string]cachedToken),
	}
}

func (tc *tokenClient) bearer(ctx context.Context, p launch.Platform) (string, error) {
	cacheKey := p.Issuer + "|" + p.ClientID

	tc.mu.Lock()
	cached, ok := tc.cache[cacheKey]
	tc.mu.Unlock()
	if ok && time.Now().Before(cached.expiresAt.Add(-tokenExpiryMargin)) {
		return cached.token, nil
	}

	now := time.Now()
	assertion, err := tc.keys.SignJWT(jwt.RegisteredClaims{
		Issuer:    p.ClientID,
		Subject:   p.ClientID,
		Audience:  jwt.ClaimStrings{p.TokenURL},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		ID:        uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: sign client assertion: %v", errs.ErrGradeDeliveryTerminal, err)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_assertion_type", clientAssertionType)
	form.Set("client_assertion", assertion)
	form.Set("scope", scopeScore)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request: %v", errs.ErrGradeDeliveryTerminal, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tc.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", errs.ErrGradeDeliveryTransient, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusOK:
	case httpx.IsRetryableHTTPStatus(resp.StatusCode):
		return "", fmt.Errorf("%w: token endpoint status %d", errs.ErrGradeDeliveryTransient, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: token endpoint status %d: %s", errs.ErrGradeDeliveryTerminal, resp.StatusCode, truncate(body, 200))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token endpoint returned no access token", errs.ErrGradeDeliveryTerminal)
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 3600
	}

	tc.mu.Lock()
	tc.cache[cacheKey] = cachedToken{
		token:     tok.AccessToken,
		expiresAt: now.Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	tc.mu.Unlock()
	tc.log.Debug("access token refreshed", "issuer", p.Issuer, "expires_in", tok.ExpiresIn)
	return tok.AccessToken, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}
