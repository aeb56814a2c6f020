package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/semsim/internal/pkg/response"
	"github.com/xxxsen/semsim/internal/service"
)

type ModelHandler struct {
	models *service.ModelService
}

func NewModelHandler(models *service.ModelService) *ModelHandler {
	return &ModelHandler{models: models}
}

type deployRequest struct {
	Version string `json:"version"`
}

func (h *ModelHandler) Current(c *gin.Context) {
	response.Success(c, h.models.Current())
}

func (h *ModelHandler) Versions(c *gin.Context) {
	versions, err := h.models.Versions(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"versions": versions})
}

func (h *ModelHandler) Deploy(c *gin.Context) {
	var req deployRequest
	if !bindJSON(c, &req) {
		return
	}
	info, err := h.models.Deploy(c.Request.Context(), req.Version)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, info)
}
