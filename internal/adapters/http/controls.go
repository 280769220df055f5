package httpadapter

import (
	"net/http"
	"strings"

	"github.com/kirillkom/secguide/internal/core/domain"
)

type controlsResponse struct {
	StandardID string           `json:"standard_id"`
	Total      int              `json:"total"`
	Controls   []domain.Control `json:"controls"`
}

type implementRequest struct {
	StandardID     string               `json:"standard_id"`
	CompanyName    string               `json:"company_name"`
	CompanySize    string               `json:"company_size"`
	Industry       string               `json:"industry"`
	TechStack      []string             `json:"tech_stack"`
	DeadlineMonths int                  `json:"deadline_months"`
	TopK           int                  `json:"top_k"`
	Retrieval      domain.RetrievalMode `json:"retrieval_mode"`
}

func (rt *Router) listStandards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Standard{"standards": rt.controls.Standards()})
}

// listControls serves GET /v1/controls?standard=ISO_27001&priority=high.
func (rt *Router) listControls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	standardID := standardParam(r)
	priority := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("priority")))
	if priority != "" && priority != string(domain.PriorityHigh) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "priority filter supports only \"high\""})
		return
	}

	controls, err := rt.controls.Controls(standardID, priority == string(domain.PriorityHigh))
	if err != nil {
		rt.writeError(w, r, "list controls", err)
		return
	}
	writeJSON(w, http.StatusOK, controlsResponse{StandardID: standardID, Total: len(controls), Controls: controls})
}

// control serves GET /v1/controls/{id} and POST /v1/controls/{id}/implement.
func (rt *Router) control(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/controls/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		ctrl, err := rt.controls.Control(standardParam(r), id)
		if err != nil {
			rt.writeError(w, r, "get control", err)
			return
		}
		writeJSON(w, http.StatusOK, ctrl)
	case "implement":
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		rt.implementControl(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (rt *Router) implementControl(w http.ResponseWriter, r *http.Request, controlID string) {
	var req implementRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}
	if req.StandardID == "" {
		req.StandardID = standardParam(r)
	}

	guide, err := rt.controls.Implement(r.Context(), domain.ImplementationRequest{
		StandardID: req.StandardID,
		ControlID:  controlID,
		Profile: domain.CompanyProfile{
			Name:      req.CompanyName,
			Size:      req.CompanySize,
			Industry:  req.Industry,
			TechStack: req.TechStack,
		},
		DeadlineMonths: req.DeadlineMonths,
		TopK:           rt.topK(req.TopK),
		Retrieval:      req.Retrieval,
	})
	if err != nil {
		rt.writeError(w, r, "implement control", err)
		return
	}
	writeJSON(w, http.StatusOK, guide)
}

func standardParam(r *http.Request) string {
	if s := strings.TrimSpace(r.URL.Query().Get("standard")); s != "" {
		return strings.ToUpper(s)
	}
	return domain.DefaultStandardID
}
