package domain

// GuidanceMode selects how the question is framed for generation.
type GuidanceMode string

const (
	GuidanceAssessment     GuidanceMode = "assessment"
	GuidanceImplementation GuidanceMode = "implementation"
)

type CompanyProfile struct {
	Name      string   `json:"company_name,omitempty"`
	Size      string   `json:"size,omitempty"`
	Industry  string   `json:"industry,omitempty"`
	TechStack []string `json:"tech_stack,omitempty"`
}

type GuidanceRequest struct {
	Question string          `json:"question"`
	Mode     GuidanceMode    `json:"mode"`
	TopK     int             `json:"top_k"`
	Profile  *CompanyProfile `json:"profile,omitempty"`
	// Retrieval overrides the configured retrieval mode when set.
	Retrieval RetrievalMode `json:"retrieval_mode,omitempty"`
}

type Guidance struct {
	Text          string       `json:"text"`
	Sources       []Citation   `json:"sources"`
	Degraded      bool         `json:"degraded"`
	Skipped       []RankerName `json:"skipped,omitempty"`
	UsedWebSearch bool         `json:"used_web_search"`
}

// ModeComparison records simple and hybrid retrieval for one query.
type ModeComparison struct {
	Query           string   `json:"query"`
	SimpleIDs       []string `json:"simple_ids"`
	HybridIDs       []string `json:"hybrid_ids"`
	Overlap         float64  `json:"overlap"`
	TopAgreement    bool     `json:"top_agreement"`
	HybridDegraded  bool     `json:"hybrid_degraded"`
	SimpleLatencyMS float64  `json:"simple_latency_ms"`
	HybridLatencyMS float64  `json:"hybrid_latency_ms"`
	Error           string   `json:"error,omitempty"`
}
