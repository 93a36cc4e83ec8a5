package domain

// AGSEndpoint is the Assignment and Grade Services claim carried by a
// gradable launch. LineItem is the column this resource link reports into.
type AGSEndpoint struct {
	LineItem  string   `json:"lineitem"`
	LineItems string   `json:"lineitems,omitempty"`
	Scopes    []string `json:"scope,omitempty"`
}

// VerifiedLaunch is the immutable output of a fully validated launch
// assertion. Only the launch verifier constructs one.
type VerifiedLaunch struct {
	SubjectID      string
	Name           string
	Issuer         string
	ClientID       string
	DeploymentID   string
	ContextID      string
	ContextTitle   string
	ResourceLinkID string
	AGS            *AGSEndpoint
	Custom         map[string]string
	Roles          []string
}

// Gradable reports whether the launch carried an AGS line item to score
// against. Launches without one run in standalone mode.
func (v *VerifiedLaunch) Gradable() bool {
	return v != nil && v.AGS != nil && v.AGS.LineItem != ""
}
