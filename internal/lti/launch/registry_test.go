package launch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

func TestNewRegistryValidation(t *testing.T) {
	valid := Platform{Issuer: "https://p.example", ClientID: "c1", JWKSURL: "https://p.example/jwks"}

	if _, err := NewRegistry([]Platform{{ClientID: "c1", JWKSURL: "x"}}); err == nil {
		t.Fatalf("want error for missing issuer")
	}
	if _, err := NewRegistry([]Platform{{Issuer: "https://p.example", ClientID: "c1"}}); err == nil {
		t.Fatalf("want error for missing jwks_url")
	}
	if _, err := NewRegistry([]Platform{valid, valid}); err == nil {
		t.Fatalf("want error for duplicate issuer")
	}

	r, err := NewRegistry([]Platform{valid})
	if err != nil {
		t.Fatalf("valid registration rejected: %v", err)
	}
	if _, ok := r.Lookup("https://p.example"); !ok {
		t.Fatalf("registered issuer not found")
	}
	if _, ok := r.Lookup("https://other.example"); ok {
		t.Fatalf("unregistered issuer found")
	}
}

func TestAllowsDeployment(t *testing.T) {
	open := Platform{}
	if !open.allowsDeployment("anything") {
		t.Fatalf("platform with no deployment list must allow all")
	}
	pinned := Platform{DeploymentIDs: []string{"d1", "d2"}}
	if !pinned.allowsDeployment("d2") {
		t.Fatalf("listed deployment rejected")
	}
	if pinned.allowsDeployment("d3") {
		t.Fatalf("unlisted deployment allowed")
	}
}

func TestLoadRegistryFromYAML(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	path := filepath.Join(t.TempDir(), "platforms.yaml")
	doc := `platforms:
  - issuer: https://lms.example
    client_id: client-1
    auth_login_url: https://lms.example/authorize
    token_url: https://lms.example/token
    jwks_url: https://lms.example/jwks
    deployment_ids: [dep-1]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	r, err := LoadRegistry(path, log)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	p, ok := r.Lookup("https://lms.example")
	if !ok {
		t.Fatalf("issuer missing after load")
	}
	if p.ClientID != "client-1" || len(p.DeploymentIDs) != 1 {
		t.Fatalf("unexpected platform: %+v", p)
	}
}
