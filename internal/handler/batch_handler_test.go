package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsepoint/parsepoint-api/internal/dto"
	"github.com/parsepoint/parsepoint-api/internal/middleware"
	"github.com/parsepoint/parsepoint-api/internal/models"
	"github.com/parsepoint/parsepoint-api/internal/service"
	appErrors "github.com/parsepoint/parsepoint-api/pkg/errors"
)

type ingestMock struct {
	resp        *dto.BatchResponse
	err         error
	called      bool
	lastUserID  string
	lastForm    dto.CreateBatchForm
	lastPrompts map[string]string
	lastFiles   []service.CandidateFile
}

func (m *ingestMock) CreateBatch(ctx context.Context, userID string, form dto.CreateBatchForm, prompts map[string]string, files []service.CandidateFile) (*dto.BatchResponse, error) {
	m.called = true
	m.lastUserID = userID
	m.lastForm = form
	m.lastPrompts = prompts
	m.lastFiles = files
	return m.resp, m.err
}

type querierMock struct {
	getResp      *dto.BatchStatusResponse
	getErr       error
	listResp     []dto.BatchListResponse
	downloadResp *dto.DownloadURLResponse
	redeemResp   *service.Download
	redeemErr    error
}

func (m *querierMock) Get(ctx context.Context, userID, batchID string) (*dto.BatchStatusResponse, error) {
	return m.getResp, m.getErr
}

func (m *querierMock) List(ctx context.Context, userID string, page, pageSize int) ([]dto.BatchListResponse, *models.Pagination, error) {
	return m.listResp, &models.Pagination{Page: page, PerPage: pageSize}, nil
}

func (m *querierMock) DownloadURL(ctx context.Context, userID, batchID, documentID string) (*dto.DownloadURLResponse, error) {
	return m.downloadResp, nil
}

func (m *querierMock) Redeem(ctx context.Context, token string) (*service.Download, error) {
	return m.redeemResp, m.redeemErr
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for name, content := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		header.Set("Content-Type", "application/pdf")
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestBatchHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &ingestMock{resp: &dto.BatchResponse{ID: "batch-1", Status: "queued", DocumentCount: 1}}
	handler := NewBatchHandler(mockSvc, &querierMock{})

	body, contentType := multipartUpload(t,
		map[string]string{
			"prompt_strategy": "per_document",
			"name":            "June",
			"prompts":         `{"a.pdf":"Extract totals"}`,
		},
		map[string][]byte{"a.pdf": []byte("%PDF-1.4")},
	)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/batches", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.called)
	assert.Equal(t, "user-1", mockSvc.lastUserID)
	assert.Equal(t, "per_document", mockSvc.lastForm.PromptStrategy)
	assert.Equal(t, "Extract totals", mockSvc.lastPrompts["a.pdf"])
	require.Len(t, mockSvc.lastFiles, 1)
	assert.Equal(t, "a.pdf", mockSvc.lastFiles[0].Filename)
	assert.Equal(t, "application/pdf", mockSvc.lastFiles[0].MimeType)
	assert.Equal(t, []byte("%PDF-1.4"), mockSvc.lastFiles[0].Content)
}

func TestBatchHandlerCreateRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &ingestMock{}
	handler := NewBatchHandler(mockSvc, &querierMock{})

	body, contentType := multipartUpload(t, map[string]string{"prompt_strategy": "auto"}, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/batches", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, mockSvc.called)
}

func TestBatchHandlerCreateInvalidStrategy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &ingestMock{}
	handler := NewBatchHandler(mockSvc, &querierMock{})

	body, contentType := multipartUpload(t, map[string]string{"prompt_strategy": "psychic"}, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/batches", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.called)
}

func TestBatchHandlerCreateBadPromptsJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBatchHandler(&ingestMock{}, &querierMock{})

	body, contentType := multipartUpload(t, map[string]string{
		"prompt_strategy": "per_document",
		"prompts":         "{broken",
	}, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/batches", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrPromptConfig.Code, envelope.Error.Code)
}

func TestBatchHandlerCreateSurfacesRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &ingestMock{err: appErrors.WithRetryAfter(appErrors.ErrRateLimited, 30)}
	handler := NewBatchHandler(mockSvc, &querierMock{})

	body, contentType := multipartUpload(t, map[string]string{"prompt_strategy": "auto"}, map[string][]byte{"a.pdf": []byte("x")})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/batches", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Create(c)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestBatchHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	querier := &querierMock{getResp: &dto.BatchStatusResponse{ID: "batch-1", Status: "completed"}}
	handler := NewBatchHandler(&ingestMock{}, querier)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/batches/batch-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "batch-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestBatchHandlerDownloadStreamsFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	querier := &querierMock{redeemResp: &service.Download{
		Filename: "a.pdf",
		MimeType: "application/pdf",
		Content:  []byte("%PDF-1.4 data"),
	}}
	handler := NewBatchHandler(&ingestMock{}, querier)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/downloads/token", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: "token"}}

	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "a.pdf")
	assert.Equal(t, []byte("%PDF-1.4 data"), w.Body.Bytes())
}
