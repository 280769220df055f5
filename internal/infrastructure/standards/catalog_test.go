package standards

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/secguide/internal/core/domain"
)

func TestLoadBuiltinCatalog(t *testing.T) {
	catalog, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := len(catalog.Standards()); got != 4 {
		t.Fatalf("expected 4 standards, got %d", got)
	}
	iso27001, err := catalog.Controls("")
	if err != nil {
		t.Fatalf("Controls(default) error = %v", err)
	}
	if len(iso27001) != 25 {
		t.Fatalf("expected 25 ISO 27001 controls, got %d", len(iso27001))
	}
	wantOrder := []string{"5.1", "5.2", "5.3", "5.7", "5.15", "5.16"}
	for i, id := range wantOrder {
		if iso27001[i].ID != id {
			t.Fatalf("control %d = %s, want %s (clause order)", i, iso27001[i].ID, id)
		}
	}

	high, err := catalog.HighPriority(domain.DefaultStandardID)
	if err != nil || len(high) != 16 {
		t.Fatalf("HighPriority() = %d controls, err=%v", len(high), err)
	}

	ctrl, err := catalog.Control("ISO_27001", "8.5")
	if err != nil || ctrl.Title != "Secure Authentication" || ctrl.Theme != "technological" {
		t.Fatalf("Control(8.5) = %+v, err=%v", ctrl, err)
	}
	if len(ctrl.Deliverables) == 0 || ctrl.Owner == "" {
		t.Fatalf("expected owner and deliverables, got %+v", ctrl)
	}

	risk, err := catalog.Controls("ISO_31000")
	if err != nil || len(risk) != 22 {
		t.Fatalf("ISO 31000 controls = %d, err=%v", len(risk), err)
	}
}

func TestComingSoonStandardHasNoControls(t *testing.T) {
	catalog, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s, ok := catalog.Standard("ISO_19011")
	if !ok || s.Available {
		t.Fatalf("expected ISO 19011 listed as unavailable, got %+v", s)
	}
	if _, err := catalog.Controls("ISO_19011"); !domain.IsKind(err, domain.ErrControlNotFound) {
		t.Fatalf("expected control not found, got %v", err)
	}
	if _, err := catalog.Control("ISO_27001", "99.9"); !domain.IsKind(err, domain.ErrControlNotFound) {
		t.Fatalf("expected control not found, got %v", err)
	}
}

func TestLoadCustomCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	raw := `
standards:
  - id: CIS_V8
    name: CIS Controls v8
    title: Critical Security Controls
    available: true
controls:
  - standard: CIS_V8
    id: "6.5"
    title: Require MFA for Administrative Access
    priority: high
    estimated_hours: 4
    owner: IT Administrator
  - standard: CIS_V8
    id: "1.1"
    title: Establish and Maintain Detailed Enterprise Asset Inventory
    priority: medium
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	controls, err := catalog.Controls("CIS_V8")
	if err != nil || len(controls) != 2 || controls[0].ID != "1.1" {
		t.Fatalf("unexpected controls %+v, err=%v", controls, err)
	}
	if controls[0].Deliverables == nil {
		t.Fatalf("deliverables must default to an empty list")
	}
}

func TestParseRejectsBrokenCatalogs(t *testing.T) {
	cases := map[string]string{
		"unknown priority": `
standards: [{id: S, available: true}]
controls: [{standard: S, id: "1", priority: urgent}]`,
		"unknown standard": `
standards: [{id: S, available: true}]
controls: [{standard: T, id: "1", priority: high}]`,
		"duplicate control": `
standards: [{id: S, available: true}]
controls: [{standard: S, id: "1", priority: high}, {standard: S, id: "1", priority: low}]`,
		"unknown field": `
standards: [{id: S, colour: blue}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); !domain.IsKind(err, domain.ErrInvalidConfig) {
				t.Fatalf("expected invalid config, got %v", err)
			}
		})
	}
}
