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

const accountColumns = `id, name, ucn, address, city, state, zip, contact_name, contact_email, contact_phone, is_government, purchased_skus, last_purchase_date, created_at, updated_at`

// AccountRepository provides persistence for customer accounts.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates the repository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// List returns accounts matching the filter along with the total count.
func (r *AccountRepository) List(ctx context.Context, filter models.AccountFilter) ([]models.Account, int, error) {
	baseQuery := `FROM accounts WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(ucn) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.IsGovernment != nil {
		conditions = append(conditions, fmt.Sprintf("is_government = $%d", len(args)+1))
		args = append(args, *filter.IsGovernment)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"name": true, "ucn": true, "created_at": true, "updated_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "name"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}
	page, pageSize := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", accountColumns, baseQuery, sortBy, sortOrder, pageSize, offset)
	var accounts []models.Account
	if err := r.db.SelectContext(ctx, &accounts, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}
	return accounts, total, nil
}

// GetByID returns an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

// ListByIDs returns the accounts whose id is in ids.
func (r *AccountRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Account, error) {
	if len(ids) == 0 {
		return []models.Account{}, nil
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id::text = ANY($1)`
	var accounts []models.Account
	if err := r.db.SelectContext(ctx, &accounts, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list accounts by id: %w", err)
	}
	return accounts, nil
}

// FindByNameUCN looks up an account by case-insensitive name and UCN.
func (r *AccountRepository) FindByNameUCN(ctx context.Context, name, ucn string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(name) = LOWER($1) AND LOWER(ucn) = LOWER($2) ORDER BY created_at ASC LIMIT 1`
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, strings.TrimSpace(name), strings.TrimSpace(ucn)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find account by name and ucn: %w", err)
	}
	return &account, nil
}

// ListNameUCNKeys returns every lower(name)|lower(ucn) pair currently stored.
func (r *AccountRepository) ListNameUCNKeys(ctx context.Context) (map[string]struct{}, error) {
	var keys []string
	if err := r.db.SelectContext(ctx, &keys, `SELECT LOWER(name) || '|' || LOWER(ucn) FROM accounts`); err != nil {
		return nil, fmt.Errorf("list account keys: %w", err)
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

// ListForDeduplication returns all accounts ordered so duplicates are adjacent and the oldest comes first.
func (r *AccountRepository) ListForDeduplication(ctx context.Context) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY LOWER(name), LOWER(ucn), created_at ASC, id ASC`
	var accounts []models.Account
	if err := r.db.SelectContext(ctx, &accounts, query); err != nil {
		return nil, fmt.Errorf("list accounts for deduplication: %w", err)
	}
	return accounts, nil
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	prepareAccount(account)
	if _, err := r.db.NamedExecContext(ctx, insertAccountQuery, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

const insertAccountQuery = `INSERT INTO accounts (` + accountColumns + `)
VALUES (:id, :name, :ucn, :address, :city, :state, :zip, :contact_name, :contact_email, :contact_phone, :is_government, :purchased_skus, :last_purchase_date, :created_at, :updated_at)`

// BulkCreate inserts accounts within a single transaction.
func (r *AccountRepository) BulkCreate(ctx context.Context, accounts []models.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk account tx: %w", err)
	}
	for i := range accounts {
		prepareAccount(&accounts[i])
		if _, err := tx.NamedExecContext(ctx, insertAccountQuery, accounts[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("bulk create account: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk account tx: %w", err)
	}
	return nil
}

// Update modifies mutable account fields.
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now().UTC()
	if account.PurchasedSKUs == nil {
		account.PurchasedSKUs = pq.StringArray{}
	}
	const query = `UPDATE accounts SET name = :name, ucn = :ucn, address = :address, city = :city, state = :state, zip = :zip,
contact_name = :contact_name, contact_email = :contact_email, contact_phone = :contact_phone, is_government = :is_government,
purchased_skus = :purchased_skus, last_purchase_date = :last_purchase_date, updated_at = :updated_at
WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, account)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return expectRows(result, "update account")
}

// Delete removes an account.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return expectRows(result, "delete account")
}

// MergeInto re-points evaluations of duplicates to survivorID and deletes the duplicates.
// It returns the number of evaluations moved.
func (r *AccountRepository) MergeInto(ctx context.Context, survivorID string, duplicateIDs []string) (int, error) {
	if len(duplicateIDs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin merge accounts tx: %w", err)
	}
	result, err := tx.ExecContext(ctx, `UPDATE evaluations SET account_id = $1, updated_at = NOW() WHERE account_id = ANY($2)`, survivorID, pq.Array(duplicateIDs))
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("repoint evaluations: %w", err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("check repointed rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ANY($1)`, pq.Array(duplicateIDs)); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("delete duplicate accounts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit merge accounts tx: %w", err)
	}
	return int(moved), nil
}

func prepareAccount(account *models.Account) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	if account.PurchasedSKUs == nil {
		account.PurchasedSKUs = pq.StringArray{}
	}
}
