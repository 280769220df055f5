package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

const Version = "0.1.0"

// Server exposes retrieval and guidance as MCP tools.
type Server struct {
	retriever   ports.PassageRetriever
	guidance    ports.GuidanceService
	defaultTopK int
	mcp         *server.MCPServer
}

func NewServer(retriever ports.PassageRetriever, guidance ports.GuidanceService, defaultTopK int) *Server {
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	s := &Server{
		retriever:   retriever,
		guidance:    guidance,
		defaultTopK: defaultTopK,
		mcp: server.NewMCPServer("secguide", Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("retrieve_passages",
		mcp.WithDescription("Search the security framework corpus (CIS, OWASP, NIST, ISO 27001/31000) and return cited passages."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language security question.")),
		mcp.WithNumber("top_k", mcp.Description("Number of passages to return.")),
		mcp.WithString("mode", mcp.Enum(string(domain.ModeSimple), string(domain.ModeHybrid)),
			mcp.Description("simple uses dense search only; hybrid fuses dense, lexical and cross-encoder rankings.")),
	), s.handleRetrieve)

	if s.guidance == nil {
		return
	}
	s.mcp.AddTool(mcp.NewTool("security_guidance",
		mcp.WithDescription("Answer a security question for a small or medium business with cited framework guidance."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer.")),
		mcp.WithString("mode", mcp.Enum(string(domain.GuidanceAssessment), string(domain.GuidanceImplementation)),
			mcp.Description("assessment reviews the current posture; implementation gives concrete steps.")),
		mcp.WithString("company_name", mcp.Description("Optional company name.")),
		mcp.WithString("company_size", mcp.Description("Optional size, e.g. 10-50 employees.")),
		mcp.WithString("industry", mcp.Description("Optional industry.")),
		mcp.WithArray("tech_stack", mcp.Description("Optional technologies in use."), mcp.WithStringItems()),
	), s.handleGuidance)
}

// ServeStdio blocks until ctx is done or stdin closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

type passageResult struct {
	Mode     domain.RetrievalMode `json:"mode"`
	Degraded bool                 `json:"degraded"`
	Skipped  []domain.RankerName  `json:"skipped,omitempty"`
	Passages []domain.Citation    `json:"passages"`
}

func (s *Server) handleRetrieve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := request.GetInt("top_k", s.defaultTopK)
	if topK <= 0 {
		topK = s.defaultTopK
	}

	result, err := s.retriever.Retrieve(ctx, domain.Query{
		Text: query,
		TopK: topK,
		Mode: domain.RetrievalMode(strings.ToLower(request.GetString("mode", ""))),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("retrieval failed: %v", err)), nil
	}
	return jsonResult(passageResult{
		Mode:     result.Mode,
		Degraded: result.Degraded,
		Skipped:  result.Skipped,
		Passages: result.Citations(),
	})
}

func (s *Server) handleGuidance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := domain.GuidanceRequest{
		Question: question,
		Mode:     domain.GuidanceMode(request.GetString("mode", "")),
		TopK:     s.defaultTopK,
	}
	profile := domain.CompanyProfile{
		Name:      request.GetString("company_name", ""),
		Size:      request.GetString("company_size", ""),
		Industry:  request.GetString("industry", ""),
		TechStack: request.GetStringSlice("tech_stack", nil),
	}
	if profile.Name != "" || profile.Size != "" || profile.Industry != "" || len(profile.TechStack) > 0 {
		req.Profile = &profile
	}

	guidance, err := s.guidance.Answer(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("guidance failed: %v", err)), nil
	}
	return jsonResult(guidance)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
