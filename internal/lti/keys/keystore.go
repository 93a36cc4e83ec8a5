// Package keys owns both trust directions of the launch protocol: the
// tool's RSA signing keys (published as a JWKS, used to sign client
// assertions) and the cached public keys of each trusted platform (used to
// verify inbound launch assertions).
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

const (
	defaultGracePeriod = 24 * time.Hour
	defaultCacheTTL    = time.Hour
	defaultLeeway      = 300 * time.Second
	keyBits            = 2048
)

type toolKey struct {
	kid       string
	key       *rsa.PrivateKey
	createdAt time.Time
	retiredAt time.Time
}

type Options struct {
	// KeyFile is an optional PKCS#8 PEM path. When set and present the key
	// is loaded from it; when set and absent a fresh key is generated and
	// written there so the kid survives restarts.
	KeyFile string
	// GracePeriod keeps rotated-out keys verifiable for in-flight tokens.
	GracePeriod time.Duration
	// CacheTTL bounds how long a fetched platform keyset is trusted.
	CacheTTL time.Duration
	// Leeway is the clock-skew tolerance applied to exp/iat checks.
	Leeway     time.Duration
	HTTPClient *http.Client
}

type Store struct {
	log   *logger.Logger
	grace time.Duration

	mu      sync.RWMutex
	active  *toolKey
	retired []*toolKey

	cacheTTL time.Duration
	leeway   time.Duration
	client   *http.Client
	platform map[string]*issuerKeys
	group    singleflight.Group
}

func New(baseLog *logger.Logger, opts Options) (*Store, error) {
	log := baseLog.With("component", "KeyStore")
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultLeeway
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	key, loaded, err := loadOrGenerateKey(opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("init signing key: %w", err)
	}
	active := &toolKey{
		kid:       keyID(&key.PublicKey),
		key:       key,
		createdAt: time.Now(),
	}
	log.Info("signing key ready", "kid", active.kid, "loaded_from_file", loaded)

	return &Store{
		log:      log,
		grace:    opts.GracePeriod,
		active:   active,
		cacheTTL: opts.CacheTTL,
		leeway:   opts.Leeway,
		client:   opts.HTTPClient,
		platform: make(map[string]*issuerKeys),
	}, nil
}

// SignJWT signs claims RS256 with the active key, stamping its kid into the
// header so verifiers can pick the right entry from the published keyset.
func (s *Store) SignJWT(claims jwt.Claims) (string, error) {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = active.kid
	signed, err := tok.SignedString(active.key)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ActiveKID returns the key id of the current signing key.
func (s *Store) ActiveKID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.kid
}

// Rotate replaces the active signing key. The previous key stays in the
// published keyset for the grace period so tokens already issued with it
// remain verifiable.
func (s *Store) Rotate() error {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return fmt.Errorf("generate rotation key: %w", err)
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.active
	prev.retiredAt = now
	s.retired = append(s.retired, prev)
	s.pruneRetiredLocked(now)
	s.active = &toolKey{kid: keyID(&key.PublicKey), key: key, createdAt: now}
	s.log.Info("signing key rotated", "kid", s.active.kid, "retired_kid", prev.kid)
	return nil
}

// PublicJWKS renders the tool's keyset: the active key plus any retired key
// still inside its grace period.
func (s *Store) PublicJWKS() map[string]interface{} {
	now := time.Now()

	s.mu.Lock()
	s.pruneRetiredLocked(now)
	entries := make([]*toolKey, 0, 1+len(s.retired))
	entries = append(entries, s.active)
	entries = append(entries, s.retired...)
	s.mu.Unlock()

	jwks := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		jwks = append(jwks, publicJWK(e.kid, &e.key.PublicKey))
	}
	return map[string]interface{}{"keys": jwks}
}

func (s *Store) pruneRetiredLocked(now time.Time) {
	kept := s.retired[:0]
	for _, e := range s.retired {
		if now.Sub(e.retiredAt) < s.grace {
			kept = append(kept, e)
		}
	}
	s.retired = kept
}

func loadOrGenerateKey(path string) (*rsa.PrivateKey, bool, error) {
	if path != "" {
		if raw, err := os.ReadFile(path); err == nil {
			key, err := parsePEMKey(raw)
			if err != nil {
				return nil, false, fmt.Errorf("parse %s: %w", path, err)
			}
			return key, true, nil
		}
	}
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, false, err
	}
	if path != "" {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, false, err
		}
		block := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
		if err := os.WriteFile(path, block, 0o600); err != nil {
			return nil, false, fmt.Errorf("persist signing key: %w", err)
		}
	}
	return key, false, nil
}

func parsePEMKey(raw []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		if key, rsaErr := x509.ParsePKCS1PrivateKey(block.Bytes); rsaErr == nil {
			return key, nil
		}
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T", parsed)
	}
	return key, nil
}

// keyID derives a stable kid from the public modulus so a key loaded from
// disk keeps its identity across restarts.
func keyID(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return hex.EncodeToString(sum[:8])
}
