package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semsim/internal/middleware"
	"github.com/xxxsen/semsim/internal/pkg/errcode"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
	"github.com/xxxsen/semsim/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("operator", middleware.Operator(c)),
		zap.Error(err),
	)
	if appErr.IsCallerError(err) || appErr.IsNotFound(err) || appErr.IsConflict(err) {
		logger.Debug("request rejected")
	} else {
		logger.Error("request failed")
	}
	response.Fail(c, err)
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return false
	}
	return true
}
