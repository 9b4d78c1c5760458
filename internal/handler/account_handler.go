package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
	"github.com/noah-isme/sales-eval-api/pkg/response"
)

type accountService interface {
	List(ctx context.Context, filter models.AccountFilter) ([]models.Account, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	Create(ctx context.Context, req models.AccountRequest) (*models.Account, error)
	Update(ctx context.Context, id string, req models.AccountRequest) (*models.Account, error)
	Delete(ctx context.Context, id string) error
	BulkImport(ctx context.Context, reqs []models.AccountRequest) (*models.BulkImportResult, error)
	Deduplicate(ctx context.Context, actor *models.JWTClaims) (*models.DeduplicateResult, error)
	RecoverOrphans(ctx context.Context, actor *models.JWTClaims) (*models.RecoverOrphansResult, error)
}

// AccountHandler exposes customer account endpoints.
type AccountHandler struct {
	service accountService
}

// NewAccountHandler builds an account handler.
func NewAccountHandler(svc accountService) *AccountHandler {
	return &AccountHandler{service: svc}
}

// List godoc
// @Summary List accounts
// @Tags Accounts
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param search query string false "Name or UCN search"
// @Param is_government query bool false "Government accounts only"
// @Param sort_by query string false "Sort by"
// @Param sort_order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /accounts [get]
func (h *AccountHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	filter := models.AccountFilter{
		Search:       c.Query("search"),
		IsGovernment: optionalBool(c, "is_government"),
		Page:         page,
		PageSize:     size,
		SortBy:       c.Query("sort_by"),
		SortOrder:    c.Query("sort_order"),
	}

	accounts, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, accounts, pagination)
}

// Get godoc
// @Summary Get account
// @Tags Accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /accounts/{id} [get]
func (h *AccountHandler) Get(c *gin.Context) {
	account, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}

// Create godoc
// @Summary Create account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param payload body models.AccountRequest true "Account payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /accounts [post]
func (h *AccountHandler) Create(c *gin.Context) {
	var req models.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}

	account, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, account)
}

// Update godoc
// @Summary Update account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param payload body models.AccountRequest true "Account payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /accounts/{id} [put]
func (h *AccountHandler) Update(c *gin.Context) {
	var req models.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}

	account, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}

// Delete godoc
// @Summary Delete account
// @Description Refused while evaluations still reference the account
// @Tags Accounts
// @Param id path string true "Account ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /accounts/{id} [delete]
func (h *AccountHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkImport godoc
// @Summary Bulk import accounts
// @Description Rows matching an existing name and UCN are skipped
// @Tags Accounts
// @Accept json
// @Produce json
// @Param payload body []models.AccountRequest true "Accounts"
// @Success 201 {object} response.Envelope
// @Router /accounts/bulk [post]
func (h *AccountHandler) BulkImport(c *gin.Context) {
	var reqs []models.AccountRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}

	result, err := h.service.BulkImport(c.Request.Context(), reqs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Deduplicate godoc
// @Summary Merge duplicate accounts
// @Tags Accounts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /accounts/deduplicate [post]
func (h *AccountHandler) Deduplicate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.service.Deduplicate(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RecoverOrphans godoc
// @Summary Recreate accounts referenced by evaluations but missing
// @Tags Accounts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /accounts/recover-orphans [post]
func (h *AccountHandler) RecoverOrphans(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.service.RecoverOrphans(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
