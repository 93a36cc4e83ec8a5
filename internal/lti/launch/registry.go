package launch

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/adaptest-backend/internal/platform/logger"
	"github.com/yungbote/adaptest-backend/internal/utils"
)

// Platform is one registered issuer in the trust table. Launches from
// anything else are rejected before any cryptographic work.
type Platform struct {
	Issuer        string   `yaml:"issuer"`
	ClientID      string   `yaml:"client_id"`
	AuthLoginURL  string   `yaml:"auth_login_url"`
	TokenURL      string   `yaml:"token_url"`
	JWKSURL       string   `yaml:"jwks_url"`
	DeploymentIDs []string `yaml:"deployment_ids"`
}

func (p Platform) allowsDeployment(id string) bool {
	if len(p.DeploymentIDs) == 0 {
		return true
	}
	for _, d := range p.DeploymentIDs {
		if d == id {
			return true
		}
	}
	return false
}

type registryFile struct {
	Platforms []Platform `yaml:"platforms"`
}

// Registry is the multi-tenant trust table, keyed by issuer.
type Registry struct {
	platforms map[string]Platform
}

func NewRegistry(platforms []Platform) (*Registry, error) {
	m := make(map[string]Platform, len(platforms))
	for _, p := range platforms {
		if p.Issuer == "" || p.ClientID == "" {
			return nil, fmt.Errorf("platform registration missing issuer or client_id")
		}
		if p.JWKSURL == "" {
			return nil, fmt.Errorf("platform %s missing jwks_url", p.Issuer)
		}
		if _, dup := m[p.Issuer]; dup {
			return nil, fmt.Errorf("duplicate platform registration for %s", p.Issuer)
		}
		m[p.Issuer] = p
	}
	return &Registry{platforms: m}, nil
}

func (r *Registry) Lookup(issuer string) (Platform, bool) {
	p, ok := r.platforms[issuer]
	return p, ok
}

func (r *Registry) Len() int { return len(r.platforms) }

// LoadRegistry reads the trust table from a YAML file when one is
// configured, falling back to a single platform assembled from LTI_*
// environment variables. The fallback derives the standard endpoint paths
// from the issuer, each overridable individually.
func LoadRegistry(path string, log *logger.Logger) (*Registry, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read platform registry: %w", err)
		}
		var f registryFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse platform registry: %w", err)
		}
		return NewRegistry(f.Platforms)
	}

	issuer := strings.TrimRight(utils.GetEnv("LTI_ISSUER", "", log), "/")
	clientID := utils.GetEnv("LTI_CLIENT_ID", "", log)
	if issuer == "" || clientID == "" {
		log.Warn("no platform registry configured; launches will be rejected")
		return NewRegistry(nil)
	}
	p := Platform{
		Issuer:       issuer,
		ClientID:     clientID,
		AuthLoginURL: utils.GetEnv("LTI_AUTH_LOGIN_URL", issuer+"/api/lti/authorize_redirect", log),
		TokenURL:     utils.GetEnv("LTI_TOKEN_URL", issuer+"/login/oauth2/token", log),
		JWKSURL:      utils.GetEnv("LTI_JWKS_URL", issuer+"/api/lti/security/jwks", log),
	}
	if dep := utils.GetEnv("LTI_DEPLOYMENT_ID", "", log); dep != "" {
		p.DeploymentIDs = []string{dep}
	}
	return NewRegistry([]Platform{p})
}
