package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semsim/internal/encoder"
	"github.com/xxxsen/semsim/internal/tokenizer"
)

// view is the model state one request works against. A swap during the
// request does not change it.
type view struct {
	model      encoder.Model
	tok        tokenizer.Tokenizer
	generation uint64
	storeKey   string
}

func (v view) cacheKey(hash string) string {
	return v.model.Version() + ":" + strconv.FormatUint(v.generation, 10) + ":" + hash
}

// encode runs tokenize, forward and pool for texts that are not cached. The
// in-memory cache and the forward pass run under the read lock; the
// embedding store is only called outside it.
func (e *Engine) encode(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	hashes := make([]string, len(texts))
	for i, text := range texts {
		hashes[i] = contentHash(text)
	}

	e.mu.RLock()
	v := e.current()
	missing := e.lookupCache(v, hashes, out)
	e.mu.RUnlock()
	if len(missing) == 0 {
		return out, nil
	}

	missing = e.lookupStore(ctx, v, hashes, missing, out)
	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}
	e.mu.RLock()
	pooled, err := forward(v, batch, e.maxLength)
	if err == nil && e.cache != nil && e.generation == v.generation {
		for j, i := range missing {
			e.cache.Add(v.cacheKey(hashes[i]), cloneVector(pooled[j]))
		}
	}
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	for j, i := range missing {
		out[i] = pooled[j]
	}
	e.saveStore(ctx, v, hashes, missing, pooled)
	return out, nil
}

// current must be called with e.mu held.
func (e *Engine) current() view {
	return view{model: e.model, tok: e.tok, generation: e.generation, storeKey: e.storeKey}
}

func forward(v view, texts []string, maxLength int) ([][]float64, error) {
	encs, err := v.tok.EncodeBatch(texts, true)
	if err != nil {
		return nil, err
	}
	ids, mask := tokenizer.Pad(encs, maxLength)
	pooled, err := encoder.Embed(v.model, ids, mask)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return pooled, nil
}

// lookupCache fills out from the LRU and returns the indexes still missing.
func (e *Engine) lookupCache(v view, hashes []string, out [][]float64) []int {
	missing := make([]int, 0, len(hashes))
	for i, hash := range hashes {
		if e.cache != nil {
			if vec, ok := e.cache.Get(v.cacheKey(hash)); ok {
				out[i] = cloneVector(vec)
				continue
			}
		}
		missing = append(missing, i)
	}
	return missing
}

func (e *Engine) lookupStore(ctx context.Context, v view, hashes []string, missing []int, out [][]float64) []int {
	if e.store == nil {
		return missing
	}
	logger := logutil.GetLogger(ctx)
	hidden := v.model.HiddenSize()
	still := make([]int, 0, len(missing))
	found := make(map[int]struct{})
	for _, i := range missing {
		vec, ok, err := e.store.Get(ctx, v.storeKey, hashes[i])
		if err != nil {
			logger.Warn("embedding store lookup failed", zap.Error(err))
			still = append(still, i)
			continue
		}
		if !ok || len(vec) != hidden {
			still = append(still, i)
			continue
		}
		out[i] = vec
		found[i] = struct{}{}
	}
	if len(found) > 0 && e.cache != nil {
		e.mu.RLock()
		if e.generation == v.generation {
			for i := range found {
				e.cache.Add(v.cacheKey(hashes[i]), cloneVector(out[i]))
			}
		}
		e.mu.RUnlock()
	}
	return still
}

func (e *Engine) saveStore(ctx context.Context, v view, hashes []string, missing []int, pooled [][]float64) {
	if e.store == nil {
		return
	}
	for j, i := range missing {
		if err := e.store.Save(ctx, v.storeKey, hashes[i], pooled[j]); err != nil {
			logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
		}
	}
}

// fingerprint names a model's rows in the embedding store: its version plus
// a digest of its config and weights, so two models sharing a version name
// never share rows.
func fingerprint(model encoder.Model) string {
	h := sha256.New()
	cfg, _ := json.Marshal(model.Config())
	h.Write(cfg)
	if t, ok := model.(encoder.Trainable); ok {
		var buf [8]byte
		for _, p := range t.Params() {
			h.Write([]byte(p.Name))
			rows, _ := p.Value.Dims()
			for r := 0; r < rows; r++ {
				for _, x := range p.Value.RawRowView(r) {
					binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
					h.Write(buf[:])
				}
			}
		}
	}
	return model.Version() + "@" + hex.EncodeToString(h.Sum(nil))[:16]
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float64, len(values))
	copy(clone, values)
	return clone
}
