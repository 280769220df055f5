package standards

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/secguide/internal/core/domain"
)

//go:embed catalog.yaml
var builtin []byte

type catalogFile struct {
	Standards []domain.Standard `yaml:"standards"`
	Controls  []domain.Control  `yaml:"controls"`
}

// Load reads the control catalog at path, or the built-in ISO 27001 and
// ISO 31000 catalog when path is empty.
func Load(path string) (*domain.ControlCatalog, error) {
	raw := builtin
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "read control catalog", err)
		}
	}
	return Parse(raw)
}

func Parse(raw []byte) (*domain.ControlCatalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "parse control catalog", err)
	}
	for i, c := range f.Controls {
		switch c.Priority {
		case domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow:
		default:
			return nil, domain.WrapError(domain.ErrInvalidConfig, "parse control catalog",
				fmt.Errorf("control %s/%s: unknown priority %q", c.StandardID, c.ID, c.Priority))
		}
		if f.Controls[i].Deliverables == nil {
			f.Controls[i].Deliverables = []string{}
		}
	}
	return domain.NewControlCatalog(f.Standards, f.Controls)
}
