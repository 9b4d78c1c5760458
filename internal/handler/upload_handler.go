package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
	"github.com/noah-isme/sales-eval-api/pkg/extract"
	"github.com/noah-isme/sales-eval-api/pkg/response"
)

type uploadService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*models.UploadResult, error)
	OpenByToken(ctx context.Context, token string) ([]byte, string, error)
}

type extractionService interface {
	Extract(ctx context.Context, req models.ExtractionRequest) (*extract.Result, error)
}

// UploadHandler accepts files and runs document extraction over them.
type UploadHandler struct {
	uploads     uploadService
	extractions extractionService
}

// NewUploadHandler builds an upload handler.
func NewUploadHandler(uploads uploadService, extractions extractionService) *UploadHandler {
	return &UploadHandler{uploads: uploads, extractions: extractions}
}

// Upload godoc
// @Summary Upload a file
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	result, err := h.uploads.Upload(c.Request.Context(), fileHeader.Filename, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a file through a signed link
// @Tags Uploads
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /files/{token} [get]
func (h *UploadHandler) Download(c *gin.Context) {
	data, contentType, err := h.uploads.OpenByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, contentType, data)
}

// Extract godoc
// @Summary Extract structured data from an uploaded document
// @Tags Uploads
// @Accept json
// @Produce json
// @Param payload body models.ExtractionRequest true "File URL and target"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope "Extraction disabled"
// @Failure 502 {object} response.Envelope
// @Router /extractions [post]
func (h *UploadHandler) Extract(c *gin.Context) {
	var req models.ExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	result, err := h.extractions.Extract(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
