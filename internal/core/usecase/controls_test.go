package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/secguide/internal/core/domain"
)

type guidanceServiceFake struct {
	got domain.GuidanceRequest
	err error
}

func (f *guidanceServiceFake) Answer(_ context.Context, req domain.GuidanceRequest) (*domain.Guidance, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Guidance{
		Text:     "1. Publish an access control policy.",
		Sources:  []domain.Citation{{PassageID: "iso27001:5.15", FusedScore: 0.016}},
		Degraded: true,
		Skipped:  []domain.RankerName{domain.RankerCrossEncoder},
	}, nil
}

func testCatalog(t *testing.T) *domain.ControlCatalog {
	t.Helper()
	catalog, err := domain.NewControlCatalog(
		[]domain.Standard{
			{ID: "ISO_27001", Name: "ISO/IEC 27001:2022", Available: true},
			{ID: "ISO_19011", Name: "ISO 19011:2018"},
		},
		[]domain.Control{
			{StandardID: "ISO_27001", ID: "5.15", Title: "Access Control", Priority: domain.PriorityHigh,
				Owner: "IT Administrator", Description: "Establish and document access control rules",
				Deliverables: []string{"Access_Control_Policy.docx", "Access_Control_Matrix.xlsx"}},
			{StandardID: "ISO_27001", ID: "5.3", Title: "Segregation of Duties", Priority: domain.PriorityMedium},
		},
	)
	if err != nil {
		t.Fatalf("NewControlCatalog() error = %v", err)
	}
	return catalog
}

func TestImplementControlBuildsCompanyQuestion(t *testing.T) {
	guidance := &guidanceServiceFake{}
	uc := NewControlGuideUseCase(testCatalog(t), guidance, nil)

	got, err := uc.Implement(context.Background(), domain.ImplementationRequest{
		ControlID:      "5.15",
		Profile:        domain.CompanyProfile{Name: "Acme", Industry: "Healthcare"},
		DeadlineMonths: 3,
		Retrieval:      domain.ModeSimple,
	})
	if err != nil {
		t.Fatalf("Implement() error = %v", err)
	}

	q := guidance.got.Question
	for _, want := range []string{
		"ISO/IEC 27001:2022 control 5.15 (Access Control)",
		"Suggested owner: IT Administrator",
		"Access_Control_Policy.docx, Access_Control_Matrix.xlsx",
		"- Company: Acme",
		"- Size: 50-100",
		"- Industry: Healthcare",
		"- Tech stack: Cloud, SaaS",
		"- Deadline: 3 months",
	} {
		if !strings.Contains(q, want) {
			t.Fatalf("question missing %q:\n%s", want, q)
		}
	}
	if guidance.got.Mode != domain.GuidanceImplementation || guidance.got.Retrieval != domain.ModeSimple {
		t.Fatalf("unexpected guidance request: %+v", guidance.got)
	}
	if guidance.got.Profile == nil || guidance.got.Profile.Industry != "Healthcare" {
		t.Fatalf("profile not forwarded: %+v", guidance.got.Profile)
	}

	if got.StandardID != domain.DefaultStandardID || got.ControlTitle != "Access Control" {
		t.Fatalf("unexpected guide header: %+v", got)
	}
	if got.Guide == "" || len(got.Sources) != 1 || !got.Degraded || len(got.Deliverables) != 2 {
		t.Fatalf("unexpected guide: %+v", got)
	}
}

func TestImplementControlDefaultsDeadline(t *testing.T) {
	guidance := &guidanceServiceFake{}
	uc := NewControlGuideUseCase(testCatalog(t), guidance, nil)

	if _, err := uc.Implement(context.Background(), domain.ImplementationRequest{ControlID: "5.3"}); err != nil {
		t.Fatalf("Implement() error = %v", err)
	}
	if !strings.HasSuffix(guidance.got.Question, "- Deadline: 6 months") {
		t.Fatalf("expected default deadline, got:\n%s", guidance.got.Question)
	}
}

func TestImplementControlErrors(t *testing.T) {
	guidance := &guidanceServiceFake{}
	uc := NewControlGuideUseCase(testCatalog(t), guidance, nil)
	ctx := context.Background()

	if _, err := uc.Implement(ctx, domain.ImplementationRequest{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing control id, got %v", err)
	}
	if _, err := uc.Implement(ctx, domain.ImplementationRequest{ControlID: "5.15", DeadlineMonths: -1}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative deadline, got %v", err)
	}
	if _, err := uc.Implement(ctx, domain.ImplementationRequest{ControlID: "9.9"}); !domain.IsKind(err, domain.ErrControlNotFound) {
		t.Fatalf("expected control not found, got %v", err)
	}
	if _, err := uc.Implement(ctx, domain.ImplementationRequest{StandardID: "ISO_19011", ControlID: "4.1"}); !domain.IsKind(err, domain.ErrControlNotFound) {
		t.Fatalf("expected control not found for unavailable standard, got %v", err)
	}
	if guidance.got.Question != "" {
		t.Fatalf("guidance must not run for rejected requests")
	}

	guidance.err = domain.WrapError(domain.ErrTemporary, "generate", errors.New("ollama down"))
	if _, err := uc.Implement(ctx, domain.ImplementationRequest{ControlID: "5.15"}); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected generation error to pass through, got %v", err)
	}
}

func TestControlsHighPriorityFilter(t *testing.T) {
	uc := NewControlGuideUseCase(testCatalog(t), &guidanceServiceFake{}, nil)

	all, err := uc.Controls("", false)
	if err != nil || len(all) != 2 || all[0].ID != "5.3" {
		t.Fatalf("Controls() = %+v, err=%v", all, err)
	}
	high, err := uc.Controls("ISO_27001", true)
	if err != nil || len(high) != 1 || high[0].ID != "5.15" {
		t.Fatalf("Controls(high) = %+v, err=%v", high, err)
	}
}
