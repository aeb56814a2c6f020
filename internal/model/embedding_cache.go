package model

type EmbeddingCache struct {
	ModelVersion string    `json:"model_version"`
	ContentHash  string    `json:"content_hash"`
	Embedding    []float32 `json:"embedding"`
	Ctime        int64     `json:"ctime"`
}
