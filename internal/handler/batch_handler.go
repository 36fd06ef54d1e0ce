package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/parsepoint/parsepoint-api/internal/dto"
	"github.com/parsepoint/parsepoint-api/internal/models"
	"github.com/parsepoint/parsepoint-api/internal/service"
	appErrors "github.com/parsepoint/parsepoint-api/pkg/errors"
	"github.com/parsepoint/parsepoint-api/pkg/response"
)

type batchIngestor interface {
	CreateBatch(ctx context.Context, userID string, form dto.CreateBatchForm, prompts map[string]string, files []service.CandidateFile) (*dto.BatchResponse, error)
}

type batchQuerier interface {
	Get(ctx context.Context, userID, batchID string) (*dto.BatchStatusResponse, error)
	List(ctx context.Context, userID string, page, pageSize int) ([]dto.BatchListResponse, *models.Pagination, error)
	DownloadURL(ctx context.Context, userID, batchID, documentID string) (*dto.DownloadURLResponse, error)
	Redeem(ctx context.Context, token string) (*service.Download, error)
}

// BatchHandler manages batch HTTP endpoints.
type BatchHandler struct {
	ingest  batchIngestor
	batches batchQuerier
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(ingest batchIngestor, batches batchQuerier) *BatchHandler {
	return &BatchHandler{ingest: ingest, batches: batches}
}

// Create godoc
// @Summary Upload a document batch
// @Tags Batches
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Documents (repeatable)"
// @Param name formData string false "Display name"
// @Param prompt_strategy formData string true "global | per_document | auto"
// @Param global_prompt formData string false "Prompt for the global strategy"
// @Param prompts formData string false "JSON object mapping filename to prompt"
// @Success 201 {object} response.Envelope
// @Router /batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var form dto.CreateBatchForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid batch payload"))
		return
	}

	prompts, err := parsePrompts(c.PostForm("prompts"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPromptConfig, "prompts must be a JSON object of filename to prompt"))
		return
	}

	multipart, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid multipart payload"))
		return
	}
	headers := multipart.File["files"]

	files := make([]service.CandidateFile, 0, len(headers))
	for _, header := range headers {
		src, err := header.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to open %s", header.Filename)))
			return
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to read %s", header.Filename)))
			return
		}
		files = append(files, service.CandidateFile{
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Size:     header.Size,
			Content:  content,
		})
	}

	batch, err := h.ingest.CreateBatch(c.Request.Context(), claims.UserID, form, prompts, files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// List godoc
// @Summary List the caller's batches
// @Tags Batches
// @Produce json
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	batches, pagination, err := h.batches.List(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, pagination)
}

// Get godoc
// @Summary Get one batch with its documents
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	batch, err := h.batches.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// DownloadURL godoc
// @Summary Issue a signed download link for a stored document
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Param docId path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/documents/{docId}/download-url [get]
func (h *BatchHandler) DownloadURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	link, err := h.batches.DownloadURL(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("docId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Redeem a signed download token
// @Tags Batches
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /downloads/{token} [get]
func (h *BatchHandler) Download(c *gin.Context) {
	download, err := h.batches.Redeem(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Data(http.StatusOK, download.MimeType, download.Content)
}

func parsePrompts(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	prompts := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}
