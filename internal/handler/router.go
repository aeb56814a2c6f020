package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/semsim/internal/middleware"
)

type RouterDeps struct {
	Similarity *SimilarityHandler
	Finetune   *FinetuneHandler
	Models     *ModelHandler
	JWTSecret  []byte

	// SubmitWindow limits how often one operator may start training.
	SubmitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/encode", deps.Similarity.Encode)
	api.POST("/similarity", deps.Similarity.Similarity)
	api.POST("/similarity/batch", deps.Similarity.Batch)
	api.POST("/similarity/explain", deps.Similarity.Explain)

	api.GET("/finetune/jobs", deps.Finetune.List)
	api.GET("/finetune/jobs/:id", deps.Finetune.Get)
	api.GET("/models/current", deps.Models.Current)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	submitLimit := middleware.RateLimit(deps.SubmitWindow)
	authGroup.POST("/finetune", submitLimit, deps.Finetune.Submit)
	authGroup.POST("/finetune/datasets/:name", submitLimit, deps.Finetune.SubmitDataset)
	authGroup.DELETE("/finetune/jobs/:id", deps.Finetune.Delete)

	authGroup.POST("/datasets/:name", deps.Finetune.ImportDataset)
	authGroup.GET("/datasets", deps.Finetune.ListDatasets)
	authGroup.DELETE("/datasets/:name", deps.Finetune.DeleteDataset)

	authGroup.GET("/models/versions", deps.Models.Versions)
	authGroup.POST("/models/deploy", deps.Models.Deploy)
}
