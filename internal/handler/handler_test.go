package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/semsim/internal/encoder"
	"github.com/xxxsen/semsim/internal/engine"
	"github.com/xxxsen/semsim/internal/handler"
	"github.com/xxxsen/semsim/internal/job"
	"github.com/xxxsen/semsim/internal/middleware"
	"github.com/xxxsen/semsim/internal/pkg/errcode"
	"github.com/xxxsen/semsim/internal/pkg/jwt"
	"github.com/xxxsen/semsim/internal/persist"
	"github.com/xxxsen/semsim/internal/service"
	"github.com/xxxsen/semsim/internal/tokenizer"
	"github.com/xxxsen/semsim/internal/trainer"
)

const testVocab = 256

type result struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	router http.Handler
	token  string
	models *service.ModelService
}

func setupRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := encoder.NewEmbeddingModel(encoder.Config{VocabSize: testVocab, HiddenSize: 16, MaxPositions: 32, Seed: 5}, "base")
	require.NoError(t, err)
	tok, err := tokenizer.New(tokenizer.DefaultConfig(testVocab))
	require.NoError(t, err)
	eng, err := engine.New(m, tok, 32, engine.WithCache(64, time.Minute))
	require.NoError(t, err)
	snapshots, err := persist.NewManager(t.TempDir())
	require.NoError(t, err)

	finetune := service.NewFinetuneService(eng, job.NewRegistry(), snapshots, nil, service.FinetuneOptions{
		Defaults:      trainer.Params{LearningRate: 0.01, BatchSize: 2, NumEpochs: 2, CheckpointInterval: 1},
		Optimizer:     "adam",
		BaseModelName: "semsim-base",
	})
	t.Cleanup(func() { _ = finetune.Shutdown(context.Background()) })
	models := service.NewModelService(eng, snapshots)

	secret := []byte("test-secret")
	deps := handler.RouterDeps{
		Similarity: handler.NewSimilarityHandler(eng),
		Finetune:   handler.NewFinetuneHandler(finetune),
		Models:     handler.NewModelHandler(models),
		JWTSecret:  secret,
	}
	router, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
		),
	)
	require.NoError(t, err)

	token, err := jwt.GenerateToken("ops", jwt.RoleOperator, secret, time.Hour)
	require.NoError(t, err)
	return &testServer{router: router, token: token, models: models}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, auth bool) result {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var out result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func decode(t *testing.T, r result, v interface{}) {
	t.Helper()
	require.Equal(t, 0, r.Code, r.Msg)
	require.NoError(t, json.Unmarshal(r.Data, v))
}

func TestSimilarityRoutes(t *testing.T) {
	s := setupRouter(t)

	var sim struct {
		ModelVersion string  `json:"model_version"`
		Similarity   float64 `json:"similarity"`
	}
	decode(t, s.do(t, http.MethodPost, "/api/v1/similarity", map[string]string{"text1": "the cat sat", "text2": "the cat sat"}, false), &sim)
	require.Equal(t, "base", sim.ModelVersion)
	require.GreaterOrEqual(t, sim.Similarity, 0.99)
	require.LessOrEqual(t, sim.Similarity, 1.0)

	bad := s.do(t, http.MethodPost, "/api/v1/similarity", map[string]string{"text1": "", "text2": "x"}, false)
	require.Equal(t, errcode.ErrInvalid, bad.Code)

	var batch struct {
		Similarities []float64 `json:"similarities"`
	}
	decode(t, s.do(t, http.MethodPost, "/api/v1/similarity/batch", map[string]interface{}{
		"pairs": []map[string]string{
			{"text1": "a dog runs", "text2": "a dog runs"},
			{"text1": "stocks rose", "text2": "it rained today"},
		},
	}, false), &batch)
	require.Len(t, batch.Similarities, 2)
	for _, v := range batch.Similarities {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}

	var explain struct {
		RawCosine float64 `json:"raw_cosine"`
		Final     float64 `json:"final"`
	}
	decode(t, s.do(t, http.MethodPost, "/api/v1/similarity/explain", map[string]string{"text1": "good news", "text2": "bad news"}, false), &explain)
	require.GreaterOrEqual(t, explain.Final, 0.0)
	require.LessOrEqual(t, explain.Final, 1.0)

	var enc struct {
		Dimension  int         `json:"dimension"`
		Embeddings [][]float64 `json:"embeddings"`
	}
	decode(t, s.do(t, http.MethodPost, "/api/v1/encode", map[string]interface{}{"texts": []string{"one", "two"}}, false), &enc)
	require.Equal(t, 16, enc.Dimension)
	require.Len(t, enc.Embeddings, 2)
	require.Len(t, enc.Embeddings[0], 16)

	empty := s.do(t, http.MethodPost, "/api/v1/encode", map[string]interface{}{}, false)
	require.Equal(t, errcode.ErrInvalid, empty.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := setupRouter(t)
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/finetune"},
		{http.MethodDelete, "/api/v1/finetune/jobs/x"},
		{http.MethodGet, "/api/v1/models/versions"},
		{http.MethodPost, "/api/v1/models/deploy"},
		{http.MethodGet, "/api/v1/datasets"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			r := s.do(t, p.method, p.path, map[string]string{}, false)
			require.Equal(t, errcode.ErrUnauthorized, r.Code)
		})
	}
}

func TestFinetuneLifecycle(t *testing.T) {
	s := setupRouter(t)

	invalid := s.do(t, http.MethodPost, "/api/v1/finetune", map[string]interface{}{
		"training_data": []map[string]interface{}{{"sentence1": "a", "sentence2": "b", "similarity": 1.5}},
	}, true)
	require.Equal(t, errcode.ErrInvalid, invalid.Code)

	redirected := s.do(t, http.MethodPost, "/api/v1/finetune", map[string]interface{}{
		"training_data": []map[string]interface{}{{"sentence1": "a", "sentence2": "b", "similarity": 0.5}},
		"output_dir":    "/tmp/elsewhere",
	}, true)
	require.Equal(t, errcode.ErrInvalid, redirected.Code)

	var created job.FinetuneJob
	decode(t, s.do(t, http.MethodPost, "/api/v1/finetune", map[string]interface{}{
		"training_data": []map[string]interface{}{
			{"sentence1": "hello world", "sentence2": "hello world", "similarity": 1.0},
			{"sentence1": "the market fell", "sentence2": "a quiet lake", "similarity": 0.1},
		},
	}, true), &created)
	require.NotEmpty(t, created.JobID)
	require.Equal(t, 2, created.TotalEpochs)

	var got job.FinetuneJob
	require.Eventually(t, func() bool {
		decode(t, s.do(t, http.MethodGet, "/api/v1/finetune/jobs/"+created.JobID, nil, false), &got)
		return got.Status.Terminal()
	}, 30*time.Second, 20*time.Millisecond)
	require.Equal(t, job.StatusCompleted, got.Status)
	require.Equal(t, 100.0, got.Progress)
	require.NotEmpty(t, got.ModelPath)

	var list struct {
		Jobs []job.FinetuneJob `json:"jobs"`
	}
	decode(t, s.do(t, http.MethodGet, "/api/v1/finetune/jobs", nil, false), &list)
	require.Len(t, list.Jobs, 1)

	var versions struct {
		Versions []persist.Version `json:"versions"`
	}
	decode(t, s.do(t, http.MethodGet, "/api/v1/models/versions", nil, true), &versions)
	require.Len(t, versions.Versions, 1)

	var info service.ModelInfo
	decode(t, s.do(t, http.MethodPost, "/api/v1/models/deploy", map[string]string{"version": versions.Versions[0].Name}, true), &info)
	require.Equal(t, versions.Versions[0].Name, info.Version)
	require.Equal(t, versions.Versions[0].Name, s.models.Current().Version)

	missing := s.do(t, http.MethodPost, "/api/v1/models/deploy", map[string]string{"version": "nope"}, true)
	require.Equal(t, errcode.ErrNotFound, missing.Code)

	s.do(t, http.MethodDelete, "/api/v1/finetune/jobs/"+created.JobID, nil, true)
	gone := s.do(t, http.MethodGet, "/api/v1/finetune/jobs/"+created.JobID, nil, false)
	require.Equal(t, errcode.ErrNotFound, gone.Code)
}

func TestDatasetsWithoutStorage(t *testing.T) {
	s := setupRouter(t)

	var out struct {
		Datasets []interface{} `json:"datasets"`
	}
	decode(t, s.do(t, http.MethodGet, "/api/v1/datasets", nil, true), &out)
	require.Empty(t, out.Datasets)

	r := s.do(t, http.MethodPost, "/api/v1/datasets/sts", map[string]interface{}{
		"pairs": []map[string]interface{}{{"sentence1": "a", "sentence2": "b", "similarity": 0.5}},
	}, true)
	require.Equal(t, errcode.ErrInvalid, r.Code)
}
