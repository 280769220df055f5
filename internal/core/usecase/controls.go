package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

// Company context assumed when the caller leaves it out.
var defaultImplementationProfile = domain.CompanyProfile{
	Size:      "50-100",
	Industry:  "Software/SaaS",
	TechStack: []string{"Cloud", "SaaS"},
}

const defaultDeadlineMonths = 6

type ControlGuideUseCase struct {
	catalog  *domain.ControlCatalog
	guidance ports.GuidanceService
	logger   *slog.Logger
}

func NewControlGuideUseCase(catalog *domain.ControlCatalog, guidance ports.GuidanceService, logger *slog.Logger) *ControlGuideUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlGuideUseCase{catalog: catalog, guidance: guidance, logger: logger}
}

func (uc *ControlGuideUseCase) Standards() []domain.Standard {
	return uc.catalog.Standards()
}

func (uc *ControlGuideUseCase) Controls(standardID string, highPriorityOnly bool) ([]domain.Control, error) {
	if highPriorityOnly {
		return uc.catalog.HighPriority(standardID)
	}
	return uc.catalog.Controls(standardID)
}

func (uc *ControlGuideUseCase) Control(standardID, controlID string) (domain.Control, error) {
	return uc.catalog.Control(standardID, controlID)
}

// Implement turns a control and the company profile into an implementation
// question and answers it through the guidance pipeline.
func (uc *ControlGuideUseCase) Implement(ctx context.Context, req domain.ImplementationRequest) (*domain.ImplementationGuide, error) {
	if strings.TrimSpace(req.ControlID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "implement control", errors.New("control id is required"))
	}
	if req.DeadlineMonths < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "implement control", fmt.Errorf("deadline_months must not be negative, got %d", req.DeadlineMonths))
	}
	if req.StandardID == "" {
		req.StandardID = domain.DefaultStandardID
	}
	control, err := uc.catalog.Control(req.StandardID, req.ControlID)
	if err != nil {
		return nil, err
	}
	standard, _ := uc.catalog.Standard(req.StandardID)

	profile := withProfileDefaults(req.Profile)
	deadline := req.DeadlineMonths
	if deadline == 0 {
		deadline = defaultDeadlineMonths
	}

	guidance, err := uc.guidance.Answer(ctx, domain.GuidanceRequest{
		Question:  implementationQuestion(standard, control, profile, deadline),
		Mode:      domain.GuidanceImplementation,
		TopK:      req.TopK,
		Profile:   &profile,
		Retrieval: req.Retrieval,
	})
	if err != nil {
		return nil, fmt.Errorf("implement control %s/%s: %w", req.StandardID, control.ID, err)
	}
	uc.logger.Info("control_guide_generated",
		"standard_id", req.StandardID,
		"control_id", control.ID,
		"sources", len(guidance.Sources),
		"degraded", guidance.Degraded,
	)

	return &domain.ImplementationGuide{
		StandardID:    req.StandardID,
		ControlID:     control.ID,
		ControlTitle:  control.Title,
		Guide:         guidance.Text,
		Deliverables:  control.Deliverables,
		Sources:       guidance.Sources,
		Degraded:      guidance.Degraded,
		UsedWebSearch: guidance.UsedWebSearch,
		Skipped:       guidance.Skipped,
	}, nil
}

func withProfileDefaults(p domain.CompanyProfile) domain.CompanyProfile {
	if strings.TrimSpace(p.Size) == "" {
		p.Size = defaultImplementationProfile.Size
	}
	if strings.TrimSpace(p.Industry) == "" {
		p.Industry = defaultImplementationProfile.Industry
	}
	if len(p.TechStack) == 0 {
		p.TechStack = append([]string(nil), defaultImplementationProfile.TechStack...)
	}
	return p
}

func implementationQuestion(standard domain.Standard, control domain.Control, profile domain.CompanyProfile, deadlineMonths int) string {
	name := standard.Name
	if name == "" {
		name = control.StandardID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "How do I implement %s control %s (%s)?\n", name, control.ID, control.Title)
	if control.Description != "" {
		fmt.Fprintf(&b, "\nControl objective: %s\n", control.Description)
	}
	if control.Owner != "" {
		fmt.Fprintf(&b, "Suggested owner: %s\n", control.Owner)
	}
	if len(control.Deliverables) > 0 {
		fmt.Fprintf(&b, "Expected deliverables: %s\n", strings.Join(control.Deliverables, ", "))
	}
	b.WriteString("\nCompany context:\n")
	if profile.Name != "" {
		fmt.Fprintf(&b, "- Company: %s\n", profile.Name)
	}
	fmt.Fprintf(&b, "- Size: %s\n", profile.Size)
	fmt.Fprintf(&b, "- Industry: %s\n", profile.Industry)
	fmt.Fprintf(&b, "- Tech stack: %s\n", strings.Join(profile.TechStack, ", "))
	fmt.Fprintf(&b, "- Deadline: %d months", deadlineMonths)
	return b.String()
}
