package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sales-eval-api/internal/models"
)

const skuColumns = `id, code, name, description, category, active, created_at, updated_at`

// SKURepository provides persistence for the product catalog.
type SKURepository struct {
	db *sqlx.DB
}

// NewSKURepository creates the repository.
func NewSKURepository(db *sqlx.DB) *SKURepository {
	return &SKURepository{db: db}
}

// List returns catalog entries matching the filter with the total count.
func (r *SKURepository) List(ctx context.Context, filter models.SKUFilter) ([]models.SKU, int, error) {
	baseQuery := `FROM skus WHERE 1=1`
	var conditions []string
	var args []interface{}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY code ASC LIMIT %d OFFSET %d", skuColumns, baseQuery, pageSize, offset)

	var skus []models.SKU
	if err := r.db.SelectContext(ctx, &skus, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list skus: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count skus: %w", err)
	}
	return skus, total, nil
}

// GetByID returns a catalog entry.
func (r *SKURepository) GetByID(ctx context.Context, id string) (*models.SKU, error) {
	var sku models.SKU
	if err := r.db.GetContext(ctx, &sku, `SELECT `+skuColumns+` FROM skus WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get sku: %w", err)
	}
	return &sku, nil
}

// ListByCodes returns the catalog entries whose code is in codes.
func (r *SKURepository) ListByCodes(ctx context.Context, codes []string) ([]models.SKU, error) {
	if len(codes) == 0 {
		return []models.SKU{}, nil
	}
	var skus []models.SKU
	if err := r.db.SelectContext(ctx, &skus, `SELECT `+skuColumns+` FROM skus WHERE code = ANY($1)`, pq.Array(codes)); err != nil {
		return nil, fmt.Errorf("list skus by code: %w", err)
	}
	return skus, nil
}

const insertSKUQuery = `INSERT INTO skus (` + skuColumns + `) VALUES (:id, :code, :name, :description, :category, :active, :created_at, :updated_at)`

// Create inserts a catalog entry.
func (r *SKURepository) Create(ctx context.Context, sku *models.SKU) error {
	prepareSKU(sku)
	if _, err := r.db.NamedExecContext(ctx, insertSKUQuery, sku); err != nil {
		return fmt.Errorf("create sku: %w", err)
	}
	return nil
}

// BulkCreate inserts entries in one transaction, skipping codes that already exist.
// It returns how many rows were inserted.
func (r *SKURepository) BulkCreate(ctx context.Context, skus []models.SKU) (int, error) {
	if len(skus) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk sku tx: %w", err)
	}
	inserted := 0
	for i := range skus {
		prepareSKU(&skus[i])
		result, err := tx.NamedExecContext(ctx, insertSKUQuery+` ON CONFLICT (code) DO NOTHING`, skus[i])
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("bulk create sku: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk sku tx: %w", err)
	}
	return inserted, nil
}

// Update modifies a catalog entry.
func (r *SKURepository) Update(ctx context.Context, sku *models.SKU) error {
	sku.UpdatedAt = time.Now().UTC()
	const query = `UPDATE skus SET code = :code, name = :name, description = :description, category = :category, active = :active, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, sku)
	if err != nil {
		return fmt.Errorf("update sku: %w", err)
	}
	return expectRows(result, "update sku")
}

// Delete removes a catalog entry.
func (r *SKURepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM skus WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sku: %w", err)
	}
	return expectRows(result, "delete sku")
}

func prepareSKU(sku *models.SKU) {
	if sku.ID == "" {
		sku.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sku.CreatedAt.IsZero() {
		sku.CreatedAt = now
	}
	sku.UpdatedAt = now
}
