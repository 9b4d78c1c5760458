package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sales-eval-api/internal/middleware"
	"github.com/noah-isme/sales-eval-api/internal/models"
	"github.com/noah-isme/sales-eval-api/pkg/response"
)

type skuService interface {
	List(ctx context.Context, filter models.SKUFilter) ([]models.SKU, *models.Pagination, bool, error)
	Get(ctx context.Context, id string) (*models.SKU, error)
	Create(ctx context.Context, req models.SKURequest) (*models.SKU, error)
	BulkCreate(ctx context.Context, reqs []models.SKURequest) (*models.BulkImportResult, error)
	Update(ctx context.Context, id string, req models.SKURequest) (*models.SKU, error)
	Delete(ctx context.Context, id string) error
}

// SKUHandler exposes the product catalog.
type SKUHandler struct {
	service skuService
}

// NewSKUHandler builds a catalog handler.
func NewSKUHandler(svc skuService) *SKUHandler {
	return &SKUHandler{service: svc}
}

// List godoc
// @Summary List SKUs
// @Tags SKUs
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param search query string false "Code or name search"
// @Param category query string false "Category"
// @Param active query bool false "Active filter"
// @Success 200 {object} response.Envelope
// @Router /skus [get]
func (h *SKUHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	filter := models.SKUFilter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Active:   optionalBool(c, "active"),
		Page:     page,
		PageSize: size,
	}

	start := time.Now()
	skus, pagination, cacheHit, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if _, ok := meta["processing_time_ms"]; !ok {
		meta["processing_time_ms"] = time.Since(start).Milliseconds()
	}
	response.JSON(c, http.StatusOK, skus, pagination, meta)
}

// Get godoc
// @Summary Get SKU
// @Tags SKUs
// @Produce json
// @Param id path string true "SKU ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /skus/{id} [get]
func (h *SKUHandler) Get(c *gin.Context) {
	sku, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sku, nil)
}

// Create godoc
// @Summary Create SKU
// @Tags SKUs
// @Accept json
// @Produce json
// @Param payload body models.SKURequest true "SKU payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /skus [post]
func (h *SKUHandler) Create(c *gin.Context) {
	var req models.SKURequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	sku, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sku)
}

// BulkCreate godoc
// @Summary Bulk create SKUs
// @Tags SKUs
// @Accept json
// @Produce json
// @Param payload body []models.SKURequest true "SKUs"
// @Success 201 {object} response.Envelope
// @Router /skus/bulk [post]
func (h *SKUHandler) BulkCreate(c *gin.Context) {
	var reqs []models.SKURequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	result, err := h.service.BulkCreate(c.Request.Context(), reqs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Update SKU
// @Tags SKUs
// @Accept json
// @Produce json
// @Param id path string true "SKU ID"
// @Param payload body models.SKURequest true "SKU payload"
// @Success 200 {object} response.Envelope
// @Router /skus/{id} [put]
func (h *SKUHandler) Update(c *gin.Context) {
	var req models.SKURequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	sku, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sku, nil)
}

// Delete godoc
// @Summary Delete SKU
// @Tags SKUs
// @Param id path string true "SKU ID"
// @Success 204
// @Router /skus/{id} [delete]
func (h *SKUHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
