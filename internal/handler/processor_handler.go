package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parsepoint/parsepoint-api/internal/dto"
	appErrors "github.com/parsepoint/parsepoint-api/pkg/errors"
	"github.com/parsepoint/parsepoint-api/pkg/response"
)

type passRunner interface {
	RunPass(ctx context.Context) (dto.ProcessorRunSummary, error)
}

// ProcessorHandler exposes the internal processing trigger. Callers
// authenticate with a shared token, not a user JWT; the endpoint is meant for
// the scheduler, not end users.
type ProcessorHandler struct {
	runner       passRunner
	triggerToken string
}

// NewProcessorHandler constructs the handler.
func NewProcessorHandler(runner passRunner, triggerToken string) *ProcessorHandler {
	return &ProcessorHandler{runner: runner, triggerToken: triggerToken}
}

// Run godoc
// @Summary Run one processor pass
// @Tags Internal
// @Produce json
// @Param X-Trigger-Token header string true "Shared trigger token"
// @Success 200 {object} response.Envelope
// @Router /internal/processor/run [post]
func (h *ProcessorHandler) Run(c *gin.Context) {
	if h.triggerToken == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "processor trigger disabled"))
		return
	}
	provided := c.GetHeader("X-Trigger-Token")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.triggerToken)) != 1 {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.runner.RunPass(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "processor pass failed"))
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
