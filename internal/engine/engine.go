package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semsim/internal/encoder"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
	"github.com/xxxsen/semsim/internal/similarity"
	"github.com/xxxsen/semsim/internal/tokenizer"
)

// Pair is one input of a batch similarity request.
type Pair struct {
	Text1 string `json:"text1"`
	Text2 string `json:"text2"`
}

// EmbeddingStore is a persistent second-level cache for pooled embeddings.
// Rows are keyed by StoreKey, not by the bare model version.
type EmbeddingStore interface {
	Get(ctx context.Context, modelKey, contentHash string) ([]float64, bool, error)
	Save(ctx context.Context, modelKey, contentHash string, vector []float64) error
}

type Option func(*Engine)

func WithCache(size int, ttl time.Duration) Option {
	return func(e *Engine) {
		if size <= 0 || ttl <= 0 {
			return
		}
		e.cache = expirable.NewLRU[string, []float64](size, nil, ttl)
	}
}

func WithEmbeddingStore(store EmbeddingStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// Engine serves encode and similarity requests. Any number of requests share
// the model under a read lock; SwapModel takes the write lock.
type Engine struct {
	mu         sync.RWMutex
	model      encoder.Model
	tok        tokenizer.Tokenizer
	generation uint64

	maxLength int
	scorer    *similarity.Scorer
	cache     *expirable.LRU[string, []float64]
	store     EmbeddingStore
	storeKey  string
}

func New(model encoder.Model, tok tokenizer.Tokenizer, maxLength int, opts ...Option) (*Engine, error) {
	if err := checkCompatible(model, tok); err != nil {
		return nil, err
	}
	if maxLength <= 0 {
		return nil, fmt.Errorf("%w: max_length must be positive", appErr.ErrInvalidInput)
	}
	if positions := model.Config().MaxPositions; positions > 0 && maxLength > positions {
		maxLength = positions
	}
	e := &Engine{
		model:      model,
		tok:        tok,
		generation: 1,
		maxLength:  maxLength,
		scorer:     similarity.NewScorer(),
	}
	e.storeKey = fingerprint(model)
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func checkCompatible(model encoder.Model, tok tokenizer.Tokenizer) error {
	if model == nil {
		return fmt.Errorf("%w: model is nil", appErr.ErrModel)
	}
	if tok == nil {
		return fmt.Errorf("%w: tokenizer is nil", appErr.ErrModel)
	}
	if model.HiddenSize() <= 0 {
		return fmt.Errorf("%w: model hidden size must be positive", appErr.ErrModel)
	}
	if vocab := model.Config().VocabSize; vocab > 0 && tok.VocabSize() > vocab {
		return fmt.Errorf("%w: tokenizer vocab %d exceeds model vocab %d", appErr.ErrModel, tok.VocabSize(), vocab)
	}
	return nil
}

func (e *Engine) Encode(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", appErr.ErrInvalidInput)
	}
	vecs, err := e.encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Engine) EncodeBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text at index %d is empty", appErr.ErrInvalidInput, i)
		}
	}
	return e.encode(ctx, texts)
}

func (e *Engine) ComputeSimilarity(ctx context.Context, text1, text2 string) (float64, error) {
	b, err := e.Explain(ctx, text1, text2)
	if err != nil {
		return 0, err
	}
	return b.Final, nil
}

// Explain returns the full score breakdown; Final is rounded to 4 digits.
func (e *Engine) Explain(ctx context.Context, text1, text2 string) (*similarity.Breakdown, error) {
	if err := validatePair(text1, text2); err != nil {
		return nil, err
	}
	vecs, err := e.encode(ctx, []string{text1, text2})
	if err != nil {
		return nil, err
	}
	b, err := e.scorer.Explain(vecs[0], vecs[1], text1, text2)
	if err != nil {
		return nil, err
	}
	b.Final = finalize(b.Final)
	return b, nil
}

func (e *Engine) ComputeSimilarityBatch(ctx context.Context, pairs []Pair) ([]float64, error) {
	if len(pairs) == 0 {
		return []float64{}, nil
	}
	texts := make([]string, 0, len(pairs)*2)
	for i, p := range pairs {
		if err := validatePair(p.Text1, p.Text2); err != nil {
			return nil, fmt.Errorf("pair at index %d: %w", i, err)
		}
		texts = append(texts, p.Text1, p.Text2)
	}
	vecs, err := e.encode(ctx, texts)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		s, err := e.scorer.Score(vecs[2*i], vecs[2*i+1], p.Text1, p.Text2)
		if err != nil {
			return nil, fmt.Errorf("pair at index %d: %w", i, err)
		}
		scores[i] = finalize(s)
	}
	return scores, nil
}

func validatePair(text1, text2 string) error {
	if strings.TrimSpace(text1) == "" {
		return fmt.Errorf("%w: text1 is empty", appErr.ErrInvalidInput)
	}
	if strings.TrimSpace(text2) == "" {
		return fmt.Errorf("%w: text2 is empty", appErr.ErrInvalidInput)
	}
	return nil
}

func finalize(score float64) float64 {
	score = similarity.Round4(score)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// SwapModel installs a replacement model once in-flight requests finish.
func (e *Engine) SwapModel(model encoder.Model) error {
	return e.swap(model, nil)
}

// SwapModelWithTokenizer replaces model and tokenizer together.
func (e *Engine) SwapModelWithTokenizer(model encoder.Model, tok tokenizer.Tokenizer) error {
	if tok == nil {
		return fmt.Errorf("%w: tokenizer is nil", appErr.ErrModel)
	}
	return e.swap(model, tok)
}

func (e *Engine) swap(model encoder.Model, tok tokenizer.Tokenizer) error {
	var key string
	if model != nil {
		key = fingerprint(model)
	}
	e.mu.Lock()
	nextTok := e.tok
	if tok != nil {
		nextTok = tok
	}
	if err := checkCompatible(model, nextTok); err != nil {
		e.mu.Unlock()
		return err
	}
	prev := e.model.Version()
	e.model = model
	e.tok = nextTok
	e.generation++
	e.storeKey = key
	gen := e.generation
	if e.cache != nil {
		e.cache.Purge()
	}
	e.mu.Unlock()
	logutil.GetLogger(context.Background()).Info("model swapped",
		zap.String("previous_version", prev),
		zap.String("version", model.Version()),
		zap.Uint64("generation", gen),
	)
	return nil
}

// CloneModel copies the live model for training; the copy shares no state
// with the engine.
func (e *Engine) CloneModel(version string) (encoder.Trainable, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.model.(encoder.Trainable)
	if !ok {
		return nil, fmt.Errorf("%w: model %s is not trainable", appErr.ErrModel, e.model.Version())
	}
	return t.Clone(version), nil
}

func (e *Engine) Tokenizer() tokenizer.Tokenizer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tok
}

func (e *Engine) ModelVersion() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.Version()
}

// StoreKey is the key the embedding store uses for the serving model.
func (e *Engine) StoreKey() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.storeKey
}

func (e *Engine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

func (e *Engine) HiddenSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model.HiddenSize()
}

func (e *Engine) MaxLength() int {
	return e.maxLength
}
