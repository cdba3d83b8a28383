package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/examvault/internal/core"
)

const keyPrefix = "examvault:emb:"

// CachedEmbedder serves repeated texts from the cache and only sends misses
// to the wrapped provider. Cache failures are logged and never fail a call.
type CachedEmbedder struct {
	inner  core.EmbeddingProvider
	store  Store
	model  string
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedEmbedder(inner core.EmbeddingProvider, store Store, model string, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{inner: inner, store: store, model: model, ttl: ttl, logger: logger}
}

func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)

	for i, t := range texts {
		raw, ok, err := c.store.Get(ctx, c.Key(t))
		if err != nil {
			c.logger.Warn("embedding cache read failed", zap.Error(err))
		}
		if ok {
			if vec, err := decodeVector(raw); err == nil {
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", core.ErrEmbedding, len(vecs), len(missTexts))
	}

	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := c.store.Set(ctx, c.Key(missTexts[j]), encodeVector(vecs[j]), c.ttl); err != nil {
			c.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return out, nil
}

// Key scopes the text digest by model so a model change never serves stale vectors.
func (c *CachedEmbedder) Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + c.model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

var _ core.EmbeddingProvider = (*CachedEmbedder)(nil)
