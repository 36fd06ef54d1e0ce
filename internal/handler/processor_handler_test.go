package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsepoint/parsepoint-api/internal/dto"
)

type runnerMock struct {
	summary dto.ProcessorRunSummary
	err     error
	called  bool
}

func (m *runnerMock) RunPass(ctx context.Context) (dto.ProcessorRunSummary, error) {
	m.called = true
	return m.summary, m.err
}

func triggerRequest(t *testing.T, handler *ProcessorHandler, token string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/internal/processor/run", nil)
	if token != "" {
		req.Header.Set("X-Trigger-Token", token)
	}
	c.Request = req
	handler.Run(c)
	return w
}

func TestProcessorHandlerRun(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runner := &runnerMock{summary: dto.ProcessorRunSummary{BatchesClaimed: 2, DocumentsCompleted: 7}}
	handler := NewProcessorHandler(runner, "secret-token")

	w := triggerRequest(t, handler, "secret-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, runner.called)
	assert.Contains(t, w.Body.String(), `"batches_claimed":2`)
}

func TestProcessorHandlerRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runner := &runnerMock{}
	handler := NewProcessorHandler(runner, "secret-token")

	w := triggerRequest(t, handler, "wrong")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, runner.called)

	w = triggerRequest(t, handler, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, runner.called)
}

func TestProcessorHandlerDisabledWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runner := &runnerMock{}
	handler := NewProcessorHandler(runner, "")

	w := triggerRequest(t, handler, "anything")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, runner.called)
}
