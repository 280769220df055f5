package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const DefaultStandardID = "ISO_27001"

type ControlPriority string

const (
	PriorityHigh   ControlPriority = "high"
	PriorityMedium ControlPriority = "medium"
	PriorityLow    ControlPriority = "low"
)

type Standard struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	// Available is false for standards listed as coming soon.
	Available bool `json:"is_available" yaml:"available"`
}

type Control struct {
	StandardID     string          `json:"standard_id" yaml:"standard"`
	ID             string          `json:"id" yaml:"id"`
	Theme          string          `json:"theme" yaml:"theme"`
	Title          string          `json:"title" yaml:"title"`
	Description    string          `json:"description" yaml:"description"`
	Priority       ControlPriority `json:"priority" yaml:"priority"`
	EstimatedHours int             `json:"estimated_hours" yaml:"estimated_hours"`
	Owner          string          `json:"owner" yaml:"owner"`
	Deliverables   []string        `json:"deliverables" yaml:"deliverables"`
}

// ImplementationRequest asks for a guide to one control, tailored to the
// company.
type ImplementationRequest struct {
	StandardID     string         `json:"standard_id,omitempty"`
	ControlID      string         `json:"control_id"`
	Profile        CompanyProfile `json:"profile"`
	DeadlineMonths int            `json:"deadline_months,omitempty"`
	TopK           int            `json:"top_k,omitempty"`
	Retrieval      RetrievalMode  `json:"retrieval_mode,omitempty"`
}

type ImplementationGuide struct {
	StandardID    string       `json:"standard_id"`
	ControlID     string       `json:"control_id"`
	ControlTitle  string       `json:"control_title"`
	Guide         string       `json:"implementation_guide"`
	Deliverables  []string     `json:"deliverables"`
	Sources       []Citation   `json:"sources"`
	Degraded      bool         `json:"degraded"`
	UsedWebSearch bool         `json:"used_web_search"`
	Skipped       []RankerName `json:"skipped,omitempty"`
}

// ControlCatalog is a read-only index of standards and their controls.
// Controls of a standard are ordered by clause number, so 5.2 comes before
// 5.15.
type ControlCatalog struct {
	standards []Standard
	byID      map[string]Standard
	controls  map[string][]Control
}

func NewControlCatalog(standards []Standard, controls []Control) (*ControlCatalog, error) {
	c := &ControlCatalog{
		standards: make([]Standard, 0, len(standards)),
		byID:      make(map[string]Standard, len(standards)),
		controls:  make(map[string][]Control),
	}
	for _, s := range standards {
		if s.ID == "" {
			return nil, WrapError(ErrInvalidConfig, "load control catalog", errors.New("standard without id"))
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, WrapError(ErrInvalidConfig, "load control catalog", fmt.Errorf("duplicate standard %s", s.ID))
		}
		c.byID[s.ID] = s
		c.standards = append(c.standards, s)
	}

	seen := make(map[string]struct{}, len(controls))
	for _, ctrl := range controls {
		if _, ok := c.byID[ctrl.StandardID]; !ok {
			return nil, WrapError(ErrInvalidConfig, "load control catalog", fmt.Errorf("control %s references unknown standard %q", ctrl.ID, ctrl.StandardID))
		}
		key := ctrl.StandardID + "/" + ctrl.ID
		if _, dup := seen[key]; dup {
			return nil, WrapError(ErrInvalidConfig, "load control catalog", fmt.Errorf("duplicate control %s", key))
		}
		seen[key] = struct{}{}
		c.controls[ctrl.StandardID] = append(c.controls[ctrl.StandardID], ctrl)
	}
	for _, list := range c.controls {
		sort.SliceStable(list, func(i, j int) bool {
			return clauseLess(list[i].ID, list[j].ID)
		})
	}
	return c, nil
}

func (c *ControlCatalog) Standards() []Standard {
	return append([]Standard(nil), c.standards...)
}

func (c *ControlCatalog) Standard(id string) (Standard, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Controls lists the controls of an available standard. An empty id selects
// DefaultStandardID.
func (c *ControlCatalog) Controls(standardID string) ([]Control, error) {
	if standardID == "" {
		standardID = DefaultStandardID
	}
	s, ok := c.byID[standardID]
	if !ok || !s.Available || len(c.controls[standardID]) == 0 {
		return nil, WrapError(ErrControlNotFound, "list controls", fmt.Errorf("standard %q not found or not yet implemented", standardID))
	}
	return append([]Control(nil), c.controls[standardID]...), nil
}

func (c *ControlCatalog) HighPriority(standardID string) ([]Control, error) {
	all, err := c.Controls(standardID)
	if err != nil {
		return nil, err
	}
	out := make([]Control, 0, len(all))
	for _, ctrl := range all {
		if ctrl.Priority == PriorityHigh {
			out = append(out, ctrl)
		}
	}
	return out, nil
}

func (c *ControlCatalog) Control(standardID, controlID string) (Control, error) {
	all, err := c.Controls(standardID)
	if err != nil {
		return Control{}, err
	}
	controlID = strings.TrimSpace(controlID)
	for _, ctrl := range all {
		if ctrl.ID == controlID {
			return ctrl, nil
		}
	}
	return Control{}, WrapError(ErrControlNotFound, "get control", fmt.Errorf("control %q in %s", controlID, all[0].StandardID))
}

// clauseLess compares dotted clause numbers part by part, numerically where
// both parts are numbers.
func clauseLess(a, b string) bool {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] == pb[i] {
			continue
		}
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		if errA == nil && errB == nil {
			return na < nb
		}
		return pa[i] < pb[i]
	}
	return len(pa) < len(pb)
}
