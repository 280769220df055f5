package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"go.etcd.io/bbolt"

	"github.com/kirillkom/secguide/internal/core/ports"
)

var bucketVectors = []byte("vectors")

// BoltEmbedder memoizes embeddings of an inner embedder in a local bbolt file.
// Entries are keyed by model and text, so switching models never serves a
// stale vector.
type BoltEmbedder struct {
	db     *bbolt.DB
	inner  ports.Embedder
	model  string
	logger *slog.Logger
}

func Open(path string, inner ports.Embedder, model string, logger *slog.Logger) (*BoltEmbedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create embedding cache bucket: %w", err)
	}
	return &BoltEmbedder{db: db, inner: inner, model: model, logger: logger}, nil
}

func (e *BoltEmbedder) Close() error {
	return e.db.Close()
}

func (e *BoltEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding cache: empty result for query")
	}
	return vectors[0], nil
}

func (e *BoltEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missing []int
	err := e.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for i, text := range texts {
			raw := b.Get(e.key(text))
			if raw == nil {
				missing = append(missing, i)
				continue
			}
			out[i] = decodeVector(raw)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read embedding cache: %w", err)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	fresh, err := e.inner.Embed(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(pending) {
		return nil, fmt.Errorf("embedding cache: inner embedder returned %d vectors for %d texts", len(fresh), len(pending))
	}

	err = e.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for j, i := range missing {
			out[i] = fresh[j]
			if err := b.Put(e.key(texts[i]), encodeVector(fresh[j])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// vectors are already in hand
		e.logger.Warn("embedding_cache_write_failed", "error", err, "count", len(missing))
	}
	return out, nil
}

func (e *BoltEmbedder) key(text string) []byte {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return sum[:]
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) []float32 {
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return v
}
