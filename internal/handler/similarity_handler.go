package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/semsim/internal/engine"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
	"github.com/xxxsen/semsim/internal/pkg/response"
)

const maxBatchPairs = 256

type SimilarityHandler struct {
	engine *engine.Engine
}

func NewSimilarityHandler(eng *engine.Engine) *SimilarityHandler {
	return &SimilarityHandler{engine: eng}
}

type encodeRequest struct {
	Text  string   `json:"text"`
	Texts []string `json:"texts"`
}

type encodeResponse struct {
	ModelVersion string      `json:"model_version"`
	Dimension    int         `json:"dimension"`
	Embeddings   [][]float64 `json:"embeddings"`
}

type similarityRequest struct {
	Text1 string `json:"text1"`
	Text2 string `json:"text2"`
}

type similarityResponse struct {
	ModelVersion string  `json:"model_version"`
	Similarity   float64 `json:"similarity"`
}

type batchRequest struct {
	Pairs []engine.Pair `json:"pairs"`
}

type batchResponse struct {
	ModelVersion string    `json:"model_version"`
	Similarities []float64 `json:"similarities"`
}

func (h *SimilarityHandler) Encode(c *gin.Context) {
	var req encodeRequest
	if !bindJSON(c, &req) {
		return
	}
	texts := req.Texts
	if req.Text != "" {
		texts = append([]string{req.Text}, texts...)
	}
	if len(texts) == 0 {
		handleError(c, fmt.Errorf("%w: text or texts is required", appErr.ErrInvalidInput))
		return
	}
	if len(texts) > maxBatchPairs {
		handleError(c, fmt.Errorf("%w: at most %d texts per request", appErr.ErrInvalidInput, maxBatchPairs))
		return
	}
	vectors, err := h.engine.EncodeBatch(c.Request.Context(), texts)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, encodeResponse{
		ModelVersion: h.engine.ModelVersion(),
		Dimension:    h.engine.HiddenSize(),
		Embeddings:   vectors,
	})
}

func (h *SimilarityHandler) Similarity(c *gin.Context) {
	var req similarityRequest
	if !bindJSON(c, &req) {
		return
	}
	score, err := h.engine.ComputeSimilarity(c.Request.Context(), req.Text1, req.Text2)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, similarityResponse{ModelVersion: h.engine.ModelVersion(), Similarity: score})
}

func (h *SimilarityHandler) Batch(c *gin.Context) {
	var req batchRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Pairs) > maxBatchPairs {
		handleError(c, fmt.Errorf("%w: at most %d pairs per request", appErr.ErrInvalidInput, maxBatchPairs))
		return
	}
	scores, err := h.engine.ComputeSimilarityBatch(c.Request.Context(), req.Pairs)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, batchResponse{ModelVersion: h.engine.ModelVersion(), Similarities: scores})
}

func (h *SimilarityHandler) Explain(c *gin.Context) {
	var req similarityRequest
	if !bindJSON(c, &req) {
		return
	}
	breakdown, err := h.engine.Explain(c.Request.Context(), req.Text1, req.Text2)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, breakdown)
}
