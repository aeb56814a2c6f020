package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/semsim/internal/job"
	"github.com/xxxsen/semsim/internal/pkg/response"
	"github.com/xxxsen/semsim/internal/service"
	"github.com/xxxsen/semsim/internal/trainer"
)

type FinetuneHandler struct {
	finetune *service.FinetuneService
}

func NewFinetuneHandler(finetune *service.FinetuneService) *FinetuneHandler {
	return &FinetuneHandler{finetune: finetune}
}

type jobListResponse struct {
	Jobs []job.FinetuneJob `json:"jobs"`
}

type importDatasetRequest struct {
	Pairs []trainer.TrainingPair `json:"pairs"`
}

func (h *FinetuneHandler) Submit(c *gin.Context) {
	var req service.FinetuneRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.finetune.Submit(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, created)
}

// SubmitDataset trains on a stored dataset. The body is optional and only
// carries hyperparameter overrides.
func (h *FinetuneHandler) SubmitDataset(c *gin.Context) {
	var req service.FinetuneRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req) {
			return
		}
	}
	created, err := h.finetune.SubmitDataset(c.Request.Context(), c.Param("name"), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, created)
}

func (h *FinetuneHandler) Get(c *gin.Context) {
	j, err := h.finetune.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, j)
}

func (h *FinetuneHandler) List(c *gin.Context) {
	response.Success(c, jobListResponse{Jobs: h.finetune.List(c.Request.Context())})
}

func (h *FinetuneHandler) Delete(c *gin.Context) {
	if err := h.finetune.Remove(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *FinetuneHandler) ImportDataset(c *gin.Context) {
	var req importDatasetRequest
	if !bindJSON(c, &req) {
		return
	}
	name := c.Param("name")
	if err := h.finetune.ImportDataset(c.Request.Context(), name, req.Pairs, time.Now().Unix()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"dataset": name, "imported": len(req.Pairs)})
}

func (h *FinetuneHandler) ListDatasets(c *gin.Context) {
	datasets, err := h.finetune.ListDatasets(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"datasets": datasets})
}

func (h *FinetuneHandler) DeleteDataset(c *gin.Context) {
	if err := h.finetune.DeleteDataset(c.Request.Context(), c.Param("name")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
