package domain

import (
	"path/filepath"
	"strings"
)

type PassageOrigin string

const (
	OriginPDF PassageOrigin = "pdf"
	OriginWeb PassageOrigin = "web"
)

// Metadata keys attached to passages during ingestion and web search.
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaFramework  = "framework"
	MetaOrigin     = "origin"
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
	MetaTitle      = "title"
	MetaURL        = "url"
)

// Passage is a retrievable unit of text. Retrieval code treats it as
// read-only: rankers copy candidates, they never edit the passage.
type Passage struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"-"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p Passage) Origin() PassageOrigin {
	return PassageOrigin(p.Metadata[MetaOrigin])
}

// Resolvable reports whether the passage carries enough content to be cited.
func (p Passage) Resolvable() bool {
	return strings.TrimSpace(p.ID) != "" && strings.TrimSpace(p.Text) != ""
}

func CloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Framework tags derived from source file names.
const (
	FrameworkCIS      = "CIS"
	FrameworkOWASP    = "OWASP"
	FrameworkNIST     = "NIST"
	FrameworkISO27001 = "ISO 27001"
	FrameworkISO31000 = "ISO 31000"
	FrameworkOther    = "Other"
)

func DetectFramework(filename string) string {
	name := strings.ToLower(filepath.Base(filename))
	switch {
	case strings.Contains(name, "cis"):
		return FrameworkCIS
	case strings.Contains(name, "owasp"):
		return FrameworkOWASP
	case strings.Contains(name, "nist"):
		return FrameworkNIST
	case strings.Contains(name, "27001"):
		return FrameworkISO27001
	case strings.Contains(name, "31000"):
		return FrameworkISO31000
	default:
		return FrameworkOther
	}
}
