package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/secguide/internal/core/domain"
)

const maxSourceChars = 1800

func buildGuidancePrompt(req domain.GuidanceRequest, sources []domain.Citation) string {
	var b strings.Builder
	b.WriteString("You are a cybersecurity consultant helping a small or medium business.\n")
	switch req.Mode {
	case domain.GuidanceAssessment:
		b.WriteString("Assess the company's current posture for the question below. List gaps and the controls that close them, ordered by priority.\n")
	default:
		b.WriteString("Explain how to implement what the question asks. Give concrete, practical steps and name tools where the sources do.\n")
	}
	b.WriteString("Answer only from the sources. Cite sources as [n]. If the sources are insufficient, say so directly.\n\n")

	if p := req.Profile; p != nil {
		b.WriteString("Company profile:\n")
		writeField(&b, "name", p.Name)
		writeField(&b, "size", p.Size)
		writeField(&b, "industry", p.Industry)
		if len(p.TechStack) > 0 {
			writeField(&b, "tech stack", strings.Join(p.TechStack, ", "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question:\n%s\n\nSources:\n", req.Question)
	for idx, src := range sources {
		text := src.Text
		if len(text) > maxSourceChars {
			text = text[:maxSourceChars]
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", idx+1, describeSource(src.SourceMetadata), text)
	}
	return b.String()
}

func describeSource(meta map[string]string) string {
	if meta[domain.MetaOrigin] == string(domain.OriginWeb) {
		return fmt.Sprintf("web: %s %s", meta[domain.MetaTitle], meta[domain.MetaURL])
	}
	parts := []string{}
	if v := meta[domain.MetaFramework]; v != "" {
		parts = append(parts, v)
	}
	if v := meta[domain.MetaSource]; v != "" {
		parts = append(parts, v)
	}
	if v := meta[domain.MetaPage]; v != "" {
		parts = append(parts, "p."+v)
	}
	return strings.Join(parts, " ")
}

func writeField(b *strings.Builder, name, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", name, value)
}
