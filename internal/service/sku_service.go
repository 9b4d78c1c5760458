package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
)

const skuCachePrefix = "skus"

type skuRepository interface {
	List(ctx context.Context, filter models.SKUFilter) ([]models.SKU, int, error)
	GetByID(ctx context.Context, id string) (*models.SKU, error)
	ListByCodes(ctx context.Context, codes []string) ([]models.SKU, error)
	Create(ctx context.Context, sku *models.SKU) error
	BulkCreate(ctx context.Context, skus []models.SKU) (int, error)
	Update(ctx context.Context, sku *models.SKU) error
	Delete(ctx context.Context, id string) error
}

type skuListPage struct {
	Items []models.SKU `json:"items"`
	Total int          `json:"total"`
}

// SKUService manages the product catalog and resolves product names.
type SKUService struct {
	repo      skuRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSKUService constructs the service. cache may be nil.
func NewSKUService(repo skuRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SKUService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SKUService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns catalog entries. The bool reports whether the page came from cache.
func (s *SKUService) List(ctx context.Context, filter models.SKUFilter) ([]models.SKU, *models.Pagination, bool, error) {
	pagination := newPagination(filter.Page, filter.PageSize, 0)
	filter.Page, filter.PageSize = pagination.Page, pagination.PageSize

	key := makeCacheKey(skuCachePrefix+":list", strings.ToLower(filter.Search), filter.Category, boolKey(filter.Active),
		strconv.Itoa(filter.Page), strconv.Itoa(filter.PageSize))
	var cached skuListPage
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		pagination.TotalCount = cached.Total
		return cached.Items, pagination, true, nil
	}

	skus, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, false, internalError(err, "failed to list skus")
	}
	if skus == nil {
		skus = []models.SKU{}
	}
	if err := s.cache.Set(ctx, key, skuListPage{Items: skus, Total: total}, 0); err != nil {
		s.logger.Warn("cache sku list", zap.Error(err))
	}
	pagination.TotalCount = total
	return skus, pagination, false, nil
}

// Get returns a single catalog entry.
func (s *SKUService) Get(ctx context.Context, id string) (*models.SKU, error) {
	sku, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "sku", "load sku")
	}
	return sku, nil
}

// Create adds a product to the catalog.
func (s *SKUService) Create(ctx context.Context, req models.SKURequest) (*models.SKU, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid sku payload")
	}
	sku := skuFromRequest(req)
	if err := s.repo.Create(ctx, sku); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "sku code already exists")
		}
		return nil, internalError(err, "failed to create sku")
	}
	s.invalidate(ctx)
	return sku, nil
}

// BulkCreate inserts many products, skipping codes already in the catalog.
func (s *SKUService) BulkCreate(ctx context.Context, reqs []models.SKURequest) (*models.BulkImportResult, error) {
	seen := make(map[string]struct{}, len(reqs))
	skus := make([]models.SKU, 0, len(reqs))
	skipped := 0
	for i, req := range reqs {
		if err := s.validator.Struct(req); err != nil {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid sku payload"), map[string]interface{}{"index": i, "error": err.Error()})
		}
		code := strings.TrimSpace(req.Code)
		if _, dup := seen[code]; dup {
			skipped++
			continue
		}
		seen[code] = struct{}{}
		skus = append(skus, *skuFromRequest(req))
	}
	inserted, err := s.repo.BulkCreate(ctx, skus)
	if err != nil {
		return nil, internalError(err, "failed to import skus")
	}
	s.invalidate(ctx)
	return &models.BulkImportResult{Created: inserted, Skipped: skipped + len(skus) - inserted}, nil
}

// Update modifies a catalog entry.
func (s *SKUService) Update(ctx context.Context, id string, req models.SKURequest) (*models.SKU, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid sku payload")
	}
	sku, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "sku", "load sku")
	}
	sku.Code = strings.TrimSpace(req.Code)
	sku.Name = strings.TrimSpace(req.Name)
	sku.Description = req.Description
	sku.Category = req.Category
	if req.Active != nil {
		sku.Active = *req.Active
	}
	if err := s.repo.Update(ctx, sku); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "sku code already exists")
		}
		return nil, notFoundOr(err, "sku", "update sku")
	}
	s.invalidate(ctx)
	return sku, nil
}

// Delete removes a catalog entry.
func (s *SKUService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "sku", "delete sku")
	}
	s.invalidate(ctx)
	return nil
}

// CodesToNames maps SKU codes to product names. Unknown codes are absent from the result.
func (s *SKUService) CodesToNames(ctx context.Context, codes []string) (map[string]string, error) {
	names := make(map[string]string, len(codes))
	if len(codes) == 0 {
		return names, nil
	}
	skus, err := s.repo.ListByCodes(ctx, uniqueStrings(codes))
	if err != nil {
		return nil, err
	}
	for _, sku := range skus {
		names[sku.Code] = sku.Name
	}
	return names, nil
}

func (s *SKUService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, skuCachePrefix+":*"); err != nil {
		s.logger.Warn("invalidate sku cache", zap.Error(err))
	}
}

func skuFromRequest(req models.SKURequest) *models.SKU {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &models.SKU{
		Code:        strings.TrimSpace(req.Code),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    req.Category,
		Active:      active,
	}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
