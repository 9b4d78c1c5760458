package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sales-eval-api/internal/middleware"
	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
	"github.com/noah-isme/sales-eval-api/pkg/response"
)

type evaluationService interface {
	List(ctx context.Context, filter models.EvaluationFilter, actor *models.JWTClaims) ([]models.Evaluation, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Evaluation, error)
	CheckCompliance(ctx context.Context, req models.ComplianceCheckRequest) (*models.ComplianceCheckResponse, error)
	Create(ctx context.Context, req models.EvaluationRequest, actor *models.JWTClaims) (*models.Evaluation, error)
	Update(ctx context.Context, id string, req models.EvaluationRequest, actor *models.JWTClaims) (*models.Evaluation, error)
	UpdateStatus(ctx context.Context, id string, req models.EvaluationStatusRequest, actor *models.JWTClaims) (*models.Evaluation, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims, meta models.LoginRequest) error
	ExportCSV(ctx context.Context, filter models.EvaluationFilter, actor *models.JWTClaims) ([]byte, error)
	ExportPDF(ctx context.Context, filter models.EvaluationFilter, actor *models.JWTClaims) ([]byte, error)
	RenderAgreement(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, string, error)
}

// EvaluationHandler exposes evaluation lifecycle endpoints.
type EvaluationHandler struct {
	service evaluationService
	now     func() time.Time
}

// NewEvaluationHandler builds an evaluation handler.
func NewEvaluationHandler(svc evaluationService) *EvaluationHandler {
	return &EvaluationHandler{service: svc, now: time.Now}
}

func evaluationFilterFromQuery(c *gin.Context) models.EvaluationFilter {
	page, size := pageParams(c)
	return models.EvaluationFilter{
		AccountID:         c.Query("account_id"),
		Status:            models.EvaluationStatus(c.Query("status")),
		SalesConsultantID: c.Query("sales_consultant_id"),
		SignatureStatus:   models.SignatureStatus(c.Query("signature_status")),
		Search:            c.Query("search"),
		Page:              page,
		PageSize:          size,
		SortBy:            c.Query("sort_by"),
		SortOrder:         c.Query("sort_order"),
	}
}

// List godoc
// @Summary List evaluations
// @Description Sales consultants only see their own evaluations
// @Tags Evaluations
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param account_id query string false "Account ID"
// @Param status query string false "Lifecycle status"
// @Param signature_status query string false "Signature status"
// @Param sales_consultant_id query string false "Consultant user ID"
// @Param search query string false "Evaluation number search"
// @Success 200 {object} response.Envelope
// @Router /evaluations [get]
func (h *EvaluationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	evaluations, pagination, err := h.service.List(c.Request.Context(), evaluationFilterFromQuery(c), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluations, pagination)
}

// Get godoc
// @Summary Get evaluation
// @Tags Evaluations
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /evaluations/{id} [get]
func (h *EvaluationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	evaluation, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluation, nil)
}

// CheckCompliance godoc
// @Summary Check products against the re-evaluation window
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param payload body models.ComplianceCheckRequest true "Account and products"
// @Success 200 {object} response.Envelope
// @Router /evaluations/compliance-check [post]
func (h *EvaluationHandler) CheckCompliance(c *gin.Context) {
	var req models.ComplianceCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}

	result, err := h.service.CheckCompliance(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetComplianceOutcome(c, result)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Create evaluation
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param payload body models.EvaluationRequest true "Evaluation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Compliance violation"
// @Router /evaluations [post]
func (h *EvaluationHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.EvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}

	evaluation, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, evaluation)
}

// Update godoc
// @Summary Update evaluation
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path string true "Evaluation ID"
// @Param payload body models.EvaluationRequest true "Evaluation payload"
// @Success 200 {object} response.Envelope
// @Router /evaluations/{id} [put]
func (h *EvaluationHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.EvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}

	evaluation, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluation, nil)
}

// UpdateStatus godoc
// @Summary Move an evaluation through its lifecycle
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path string true "Evaluation ID"
// @Param payload body models.EvaluationStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /evaluations/{id}/status [patch]
func (h *EvaluationHandler) UpdateStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.EvaluationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}

	evaluation, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluation, nil)
}

// Delete godoc
// @Summary Delete evaluation
// @Tags Evaluations
// @Param id path string true "Evaluation ID"
// @Success 204
// @Router /evaluations/{id} [delete]
func (h *EvaluationHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportCSV godoc
// @Summary Export evaluations as CSV
// @Tags Evaluations
// @Produce text/csv
// @Param account_id query string false "Account ID"
// @Param status query string false "Lifecycle status"
// @Param signature_status query string false "Signature status"
// @Success 200 {file} file
// @Router /evaluations/export.csv [get]
func (h *EvaluationHandler) ExportCSV(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, err := h.service.ExportCSV(c.Request.Context(), evaluationFilterFromQuery(c), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("evaluations-%s.csv", h.now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// ExportPDF godoc
// @Summary Export evaluations as a PDF table
// @Tags Evaluations
// @Produce application/pdf
// @Param account_id query string false "Account ID"
// @Param status query string false "Lifecycle status"
// @Success 200 {file} file
// @Router /evaluations/export.pdf [get]
func (h *EvaluationHandler) ExportPDF(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, err := h.service.ExportPDF(c.Request.Context(), evaluationFilterFromQuery(c), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("evaluations-%s.pdf", h.now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", data)
}

// Agreement godoc
// @Summary Download the evaluation agreement PDF
// @Tags Evaluations
// @Produce application/pdf
// @Param id path string true "Evaluation ID"
// @Success 200 {file} file
// @Router /evaluations/{id}/agreement.pdf [get]
func (h *EvaluationHandler) Agreement(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, filename, err := h.service.RenderAgreement(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", data)
}
