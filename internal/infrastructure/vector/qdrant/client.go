package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/infrastructure/resilience"
)

const scrollPageSize = 256

// Client is a PassageStore backed by the Qdrant REST API. Point ids are
// derived from passage ids, the passage id itself lives in the payload.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Option func(*Client)

// WithExecutor routes every request through the executor under
// "qdrant.<operation>".
func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var errCollectionMissing = errors.New("qdrant collection not found")

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload"`
}

type pointRecord struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func PointID(passageID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("passage:"+passageID)).String()
}

func (c *Client) UpsertPassages(ctx context.Context, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	vectorSize := len(passages[0].Embedding)
	if vectorSize == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("passage %s has no embedding", passages[0].ID))
	}
	if err := c.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	points := make([]point, 0, len(passages))
	for _, p := range passages {
		if len(p.Embedding) != vectorSize {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("passage %s embedding size %d, want %d", p.ID, len(p.Embedding), vectorSize))
		}
		metadata := make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			metadata[k] = v
		}
		points = append(points, point{
			ID:     PointID(p.ID),
			Vector: p.Embedding,
			Payload: map[string]any{
				"passage_id": p.ID,
				"text":       p.Text,
				"metadata":   metadata,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	if err := c.do(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (c *Client) SearchByVector(ctx context.Context, vector []float32, limit int) ([]domain.Candidate, error) {
	if limit <= 0 {
		return []domain.Candidate{}, nil
	}
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}

	var resp struct {
		Result []pointRecord `json:"result"`
	}
	err := c.do(ctx, "search", http.MethodPost, fmt.Sprintf("/collections/%s/points/search", c.collection), reqBody, &resp)
	if errors.Is(err, errCollectionMissing) {
		return []domain.Candidate{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	out := make([]domain.Candidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.Candidate{Passage: passageFromPayload(r.Payload), Score: r.Score})
	}
	return out, nil
}

// ListAllPassages scrolls the whole collection page by page.
func (c *Client) ListAllPassages(ctx context.Context) ([]domain.Passage, error) {
	out := make([]domain.Passage, 0)
	var offset any
	for {
		reqBody := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points         []pointRecord `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		err := c.do(ctx, "scroll", http.MethodPost, fmt.Sprintf("/collections/%s/points/scroll", c.collection), reqBody, &resp)
		if errors.Is(err, errCollectionMissing) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}

		for _, r := range resp.Result.Points {
			out = append(out, passageFromPayload(r.Payload))
		}
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			return out, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

// GetByIDs returns the passages that exist; unknown ids are skipped.
func (c *Client) GetByIDs(ctx context.Context, ids []string) ([]domain.Passage, error) {
	if len(ids) == 0 {
		return []domain.Passage{}, nil
	}
	pointIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, PointID(id))
	}

	var resp struct {
		Result []pointRecord `json:"result"`
	}
	reqBody := map[string]any{"ids": pointIDs, "with_payload": true}
	err := c.do(ctx, "retrieve", http.MethodPost, fmt.Sprintf("/collections/%s/points", c.collection), reqBody, &resp)
	if errors.Is(err, errCollectionMissing) {
		return []domain.Passage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("qdrant retrieve: %w", err)
	}

	out := make([]domain.Passage, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, passageFromPayload(r.Payload))
	}
	return out, nil
}

// classify keeps a missing collection out of the breaker: it means an empty
// corpus, not an unhealthy server.
func classify(err error) resilience.ErrorClassification {
	if errors.Is(err, errCollectionMissing) {
		return resilience.Ignored
	}
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		return resilience.Ignored
	}
	return resilience.ClassifyHTTP(err)
}

func (c *Client) do(ctx context.Context, operation, method, path string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	call := func(ctx context.Context) error {
		return c.send(ctx, operation, method, path, body, out)
	}
	if c.executor != nil {
		err = c.executor.Execute(ctx, "qdrant."+operation, call, classify)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary("qdrant "+operation, err, classify)
}

func (c *Client) send(ctx context.Context, operation, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errCollectionMissing
	}
	if resp.StatusCode >= 300 {
		return resilience.ReadStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.do(ctx, "create_collection", http.MethodPut, "/collections/"+c.collection, reqBody, nil)
	var statusErr *resilience.StatusError
	// 409 when the collection already exists
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func passageFromPayload(payload map[string]any) domain.Passage {
	p := domain.Passage{
		ID:       getStringPayload(payload, "passage_id"),
		Text:     getStringPayload(payload, "text"),
		Metadata: map[string]string{},
	}
	if raw, ok := payload["metadata"].(map[string]any); ok {
		for k, v := range raw {
			p.Metadata[k] = stringify(v)
		}
	}
	return p
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
