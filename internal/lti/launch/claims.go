package launch

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/adaptest-backend/internal/domain"
)

const (
	messageTypeResourceLink = "LtiResourceLinkRequest"
	ltiVersion13            = "1.3.0"
)

// launchClaims is the typed decoding of an LTI 1.3 resource-link assertion.
// Required and optional fields are explicit; a decode failure is a
// malformed-assertion error, distinct from a cryptographic one.
type launchClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
	Azp   string `json:"azp,omitempty"`
	Name  string `json:"name,omitempty"`

	MessageType   string              `json:"https://purl.imsglobal.org/spec/lti/claim/message_type"`
	Version       string              `json:"https://purl.imsglobal.org/spec/lti/claim/version"`
	DeploymentID  string              `json:"https://purl.imsglobal.org/spec/lti/claim/deployment_id"`
	TargetLinkURI string              `json:"https://purl.imsglobal.org/spec/lti/claim/target_link_uri,omitempty"`
	ResourceLink  resourceLinkClaim   `json:"https://purl.imsglobal.org/spec/lti/claim/resource_link"`
	Context       contextClaim        `json:"https://purl.imsglobal.org/spec/lti/claim/context,omitempty"`
	Roles         []string            `json:"https://purl.imsglobal.org/spec/lti/claim/roles,omitempty"`
	Custom        map[string]string   `json:"https://purl.imsglobal.org/spec/lti/claim/custom,omitempty"`
	AGS           *domain.AGSEndpoint `json:"https://purl.imsglobal.org/spec/lti-ags/claim/endpoint,omitempty"`
}

type resourceLinkClaim struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

type contextClaim struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

func (c *launchClaims) hasAudience(clientID string) bool {
	for _, aud := range c.Audience {
		if aud == clientID {
			return true
		}
	}
	return false
}
