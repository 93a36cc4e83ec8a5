package keys

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/adaptest-backend/internal/pkg/errs"
)

type issuerKeys struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// VerifyIDToken checks the signature and time claims of a platform-issued
// assertion, decoding into claims. Key resolution is cached per issuer; an
// unknown kid triggers exactly one outbound keyset refresh regardless of how
// many verifications race on it.
func (s *Store) VerifyIDToken(ctx context.Context, issuer, jwksURL, raw string, claims jwt.Claims) error {
	keyfunc := func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: assertion header has no kid", errs.ErrKeyNotFound)
		}
		return s.platformKey(ctx, issuer, jwksURL, kid)
	}

	_, err := jwt.ParseWithClaims(raw, claims, keyfunc,
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuedAt(),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrKeyNotFound):
		return err
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", errs.ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", errs.ErrMalformedAssertion, err)
	default:
		return fmt.Errorf("%w: %v", errs.ErrSignatureInvalid, err)
	}
}

func (s *Store) platformKey(ctx context.Context, issuer, jwksURL, kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	cached := s.platform[issuer]
	s.mu.RUnlock()
	if cached != nil && time.Since(cached.fetchedAt) < s.cacheTTL {
		if key, ok := cached.keys[kid]; ok {
			return key, nil
		}
	}

	v, err, _ := s.group.Do(issuer+"|"+kid, func() (interface{}, error) {
		fetched, err := s.fetchKeyset(ctx, jwksURL)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.platform[issuer] = &issuerKeys{keys: fetched, fetchedAt: time.Now()}
		s.mu.Unlock()
		s.log.Debug("platform keyset refreshed", "issuer", issuer, "keys", len(fetched))
		return fetched, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: refresh keyset for %s: %v", errs.ErrKeyNotFound, issuer, err)
	}
	fetched := v.(map[string]*rsa.PublicKey)
	key, ok := fetched[kid]
	if !ok {
		return nil, fmt.Errorf("%w: kid %q not published by %s", errs.ErrKeyNotFound, kid, issuer)
	}
	return key, nil
}

func (s *Store) fetchKeyset(ctx context.Context, jwksURL string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read jwks: %w", err)
	}
	var doc jwkDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	out := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, entry := range doc.Keys {
		if entry.Kid == "" {
			continue
		}
		pub, err := entry.publicKey()
		if err != nil {
			s.log.Warn("skipping unusable jwk", "kid", entry.Kid, "error", err)
			continue
		}
		out[entry.Kid] = pub
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("keyset at %s has no usable keys", jwksURL)
	}
	return out, nil
}
