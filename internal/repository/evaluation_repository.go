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

	"github.com/noah-isme/sales-eval-api/internal/models"
)

const evaluationColumns = `id, evaluation_number, account_id, sales_consultant_id, sales_consultant_name, sales_consultant_email, line_items, status,
start_date, end_date, notes, signature_status, signature_token, signature_request_sent_at, signed_at, signed_by_name, signed_by_email,
signed_by_title, customer_po_number, signature_data_url, created_at, updated_at`

// maxExportRows caps unpaginated listings used for CSV export.
const maxExportRows = 10000

// EvaluationRepository provides persistence for evaluations and their signature state.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository creates the repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func evaluationWhere(filter models.EvaluationFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter.AccountID != "" {
		conditions = append(conditions, fmt.Sprintf("account_id = $%d", len(args)+1))
		args = append(args, filter.AccountID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.SalesConsultantID != "" {
		conditions = append(conditions, fmt.Sprintf("sales_consultant_id = $%d", len(args)+1))
		args = append(args, filter.SalesConsultantID)
	}
	if filter.SignatureStatus != "" {
		conditions = append(conditions, fmt.Sprintf("signature_status = $%d", len(args)+1))
		args = append(args, filter.SignatureStatus)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(evaluation_number) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	where := "FROM evaluations WHERE 1=1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func evaluationOrder(filter models.EvaluationFilter) string {
	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"created_at": true, "updated_at": true, "evaluation_number": true, "status": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, id ASC", sortBy, sortOrder)
}

// List returns evaluations matching the filter along with the total count.
func (r *EvaluationRepository) List(ctx context.Context, filter models.EvaluationFilter) ([]models.Evaluation, int, error) {
	where, args := evaluationWhere(filter)
	page, pageSize := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s %s LIMIT %d OFFSET %d", evaluationColumns, where, evaluationOrder(filter), pageSize, offset)
	var evaluations []models.Evaluation
	if err := r.db.SelectContext(ctx, &evaluations, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list evaluations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count evaluations: %w", err)
	}
	return evaluations, total, nil
}

// ListAll returns every evaluation matching the filter, up to the export cap, ignoring pagination.
func (r *EvaluationRepository) ListAll(ctx context.Context, filter models.EvaluationFilter) ([]models.Evaluation, error) {
	where, args := evaluationWhere(filter)
	query := fmt.Sprintf("SELECT %s %s %s LIMIT %d", evaluationColumns, where, evaluationOrder(filter), maxExportRows)
	var evaluations []models.Evaluation
	if err := r.db.SelectContext(ctx, &evaluations, query, args...); err != nil {
		return nil, fmt.Errorf("list all evaluations: %w", err)
	}
	return evaluations, nil
}

// ListByAccount returns the account's evaluations except excludeID, newest first.
func (r *EvaluationRepository) ListByAccount(ctx context.Context, accountID, excludeID string) ([]models.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE account_id = $1 AND id::text <> $2 ORDER BY created_at DESC`
	var evaluations []models.Evaluation
	if err := r.db.SelectContext(ctx, &evaluations, query, accountID, excludeID); err != nil {
		return nil, fmt.Errorf("list evaluations by account: %w", err)
	}
	return evaluations, nil
}

// GetByID returns an evaluation by identifier.
func (r *EvaluationRepository) GetByID(ctx context.Context, id string) (*models.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE id = $1`
	var evaluation models.Evaluation
	if err := r.db.GetContext(ctx, &evaluation, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	return &evaluation, nil
}

// GetSentByToken returns the evaluation holding token only while its signature is awaited.
func (r *EvaluationRepository) GetSentByToken(ctx context.Context, token string) (*models.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE signature_token = $1 AND signature_status = 'sent'`
	var evaluation models.Evaluation
	if err := r.db.GetContext(ctx, &evaluation, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get evaluation by token: %w", err)
	}
	return &evaluation, nil
}

// Create inserts a new evaluation in the not_sent signature state.
func (r *EvaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	if evaluation.ID == "" {
		evaluation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if evaluation.CreatedAt.IsZero() {
		evaluation.CreatedAt = now
	}
	evaluation.UpdatedAt = now
	if evaluation.Status == "" {
		evaluation.Status = models.EvaluationStatusDraft
	}
	evaluation.SignatureStatus = models.SignatureStatusNotSent
	if evaluation.LineItems == nil {
		evaluation.LineItems = models.LineItems{}
	}

	const query = `INSERT INTO evaluations (id, evaluation_number, account_id, sales_consultant_id, sales_consultant_name, sales_consultant_email,
line_items, status, start_date, end_date, notes, signature_status, created_at, updated_at)
VALUES (:id, :evaluation_number, :account_id, :sales_consultant_id, :sales_consultant_name, :sales_consultant_email,
:line_items, :status, :start_date, :end_date, :notes, :signature_status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, evaluation); err != nil {
		return fmt.Errorf("create evaluation: %w", err)
	}
	return nil
}

// Update writes editable content fields. The write only lands while the row
// still has the status that was read and no signature has been requested;
// otherwise it fails with sql.ErrNoRows.
func (r *EvaluationRepository) Update(ctx context.Context, evaluation *models.Evaluation) error {
	evaluation.UpdatedAt = time.Now().UTC()
	const query = `UPDATE evaluations SET account_id = :account_id, line_items = :line_items, start_date = :start_date,
end_date = :end_date, notes = :notes, updated_at = :updated_at
WHERE id = :id AND status = :status AND signature_status = 'not_sent'`
	result, err := r.db.NamedExecContext(ctx, query, evaluation)
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	return expectRows(result, "update evaluation")
}

// UpdateStatus moves an evaluation from one status to another, failing with
// sql.ErrNoRows when the stored status no longer equals from.
func (r *EvaluationRepository) UpdateStatus(ctx context.Context, id string, from, to models.EvaluationStatus) error {
	const query = `UPDATE evaluations SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update evaluation status: %w", err)
	}
	return expectRows(result, "update evaluation status")
}

// Delete removes an evaluation.
func (r *EvaluationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM evaluations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete evaluation: %w", err)
	}
	return expectRows(result, "delete evaluation")
}

// MarkSignatureSent performs the not_sent to sent transition. It returns
// sql.ErrNoRows when the evaluation is no longer not_sent.
func (r *EvaluationRepository) MarkSignatureSent(ctx context.Context, id, token string, sentAt time.Time) error {
	const query = `UPDATE evaluations SET signature_status = 'sent', signature_token = $2, signature_request_sent_at = $3, updated_at = $3
WHERE id = $1 AND signature_status = 'not_sent'`
	result, err := r.db.ExecContext(ctx, query, id, token, sentAt)
	if err != nil {
		return fmt.Errorf("mark signature sent: %w", err)
	}
	return expectRows(result, "mark signature sent")
}

// TouchSignatureRequest refreshes the sent timestamp of a pending request.
func (r *EvaluationRepository) TouchSignatureRequest(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE evaluations SET signature_request_sent_at = $2, updated_at = $2 WHERE id = $1 AND signature_status = 'sent'`
	result, err := r.db.ExecContext(ctx, query, id, sentAt)
	if err != nil {
		return fmt.Errorf("touch signature request: %w", err)
	}
	return expectRows(result, "touch signature request")
}

// CompleteSignature performs the sent to signed transition keyed on the token.
// The status predicate makes concurrent submissions race safely: exactly one
// caller gets the row back, the rest get sql.ErrNoRows.
func (r *EvaluationRepository) CompleteSignature(ctx context.Context, sig models.CompletedSignature) (*models.Evaluation, error) {
	query := `UPDATE evaluations SET signature_status = 'signed', signed_at = $2, signed_by_name = $3, signed_by_email = $4,
signed_by_title = $5, customer_po_number = $6, signature_data_url = $7, updated_at = $2
WHERE signature_token = $1 AND signature_status = 'sent'
RETURNING ` + evaluationColumns
	var evaluation models.Evaluation
	err := r.db.GetContext(ctx, &evaluation, query, sig.Token, sig.SignedAt, sig.Name, sig.Email, sig.Title, sig.PONumber, sig.SignatureDataURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("complete signature: %w", err)
	}
	return &evaluation, nil
}

// ListOrphanAccountIDs returns account ids referenced by evaluations that have no account row.
func (r *EvaluationRepository) ListOrphanAccountIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT e.account_id::text FROM evaluations e LEFT JOIN accounts a ON a.id = e.account_id WHERE a.id IS NULL ORDER BY 1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list orphan account ids: %w", err)
	}
	return ids, nil
}
