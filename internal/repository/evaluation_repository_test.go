package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sales-eval-api/internal/models"
)

var evaluationRowColumns = []string{
	"id", "evaluation_number", "account_id", "sales_consultant_id", "sales_consultant_name", "sales_consultant_email", "line_items", "status",
	"start_date", "end_date", "notes", "signature_status", "signature_token", "signature_request_sent_at", "signed_at", "signed_by_name",
	"signed_by_email", "signed_by_title", "customer_po_number", "signature_data_url", "created_at", "updated_at",
}

func evaluationRow(rows *sqlmock.Rows, id, status string, signature models.SignatureStatus, token interface{}, createdAt time.Time) *sqlmock.Rows {
	return rows.AddRow(id, "EV-20261015-AAAAAA", "acct-1", "user-1", "Dana Reyes", "dana@example.com",
		[]byte(`[{"sku_code":"225028","quantity":1}]`), status, nil, nil, "", string(signature), token, nil, nil, nil,
		nil, nil, nil, nil, createdAt, createdAt)
}

func TestEvaluationListByAccountExcludesID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	created := time.Date(2026, 7, 7, 12, 0, 0, 0, time.UTC)
	rows := evaluationRow(sqlmock.NewRows(evaluationRowColumns), "ev-1", "approved", models.SignatureStatusNotSent, nil, created)
	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluations WHERE account_id = $1 AND id::text <> $2 ORDER BY created_at DESC")).
		WithArgs("acct-1", "ev-2").
		WillReturnRows(rows)

	evaluations, err := repo.ListByAccount(context.Background(), "acct-1", "ev-2")
	require.NoError(t, err)
	require.Len(t, evaluations, 1)
	assert.Equal(t, "225028", evaluations[0].LineItems[0].SKUCode)
	assert.Equal(t, created, evaluations[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationGetSentByTokenFiltersStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE signature_token = $1 AND signature_status = 'sent'")).
		WithArgs("tok").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetSentByToken(context.Background(), "tok")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationMarkSignatureSent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)
	sentAt := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	query := regexp.QuoteMeta("WHERE id = $1 AND signature_status = 'not_sent'")
	mock.ExpectExec(query).WithArgs("ev-1", "tok", sentAt).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("ev-1", "tok2", sentAt).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkSignatureSent(context.Background(), "ev-1", "tok", sentAt))
	err := repo.MarkSignatureSent(context.Background(), "ev-1", "tok2", sentAt)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationCompleteSignatureIsConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	signedAt := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	sig := models.CompletedSignature{
		Token:            "tok",
		SignedAt:         signedAt,
		Name:             "Pat Buyer",
		Email:            "pat@hospital.org",
		Title:            "Director",
		PONumber:         "PO-77",
		SignatureDataURL: "data:image/png;base64,AAAA",
	}
	query := regexp.QuoteMeta("WHERE signature_token = $1 AND signature_status = 'sent'\nRETURNING")

	rows := evaluationRow(sqlmock.NewRows(evaluationRowColumns), "ev-1", "approved", models.SignatureStatusSigned, "tok", signedAt)
	mock.ExpectQuery(query).
		WithArgs("tok", signedAt, "Pat Buyer", "pat@hospital.org", "Director", "PO-77", "data:image/png;base64,AAAA").
		WillReturnRows(rows)
	mock.ExpectQuery(query).
		WithArgs("tok", signedAt, "Pat Buyer", "pat@hospital.org", "Director", "PO-77", "data:image/png;base64,AAAA").
		WillReturnRows(sqlmock.NewRows(evaluationRowColumns))

	evaluation, err := repo.CompleteSignature(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, models.SignatureStatusSigned, evaluation.SignatureStatus)

	_, err = repo.CompleteSignature(context.Background(), sig)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationUpdateRequiresUnsignedReadStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	evaluation := &models.Evaluation{
		ID:        "ev-1",
		AccountID: "acct-1",
		LineItems: models.LineItems{{SKUCode: "225028", Quantity: 2}},
		Status:    models.EvaluationStatusDraft,
	}
	query := regexp.QuoteMeta("WHERE id = $7 AND status = $8 AND signature_status = 'not_sent'")
	anyArg := sqlmock.AnyArg()
	mock.ExpectExec(query).WithArgs(anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, "ev-1", "draft").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, "ev-1", "draft").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Update(context.Background(), evaluation))
	err := repo.Update(context.Background(), evaluation)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationUpdateStatusConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluations SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("ev-1", "draft", "submitted", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "ev-1", models.EvaluationStatusDraft, models.EvaluationStatusSubmitted)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluations WHERE 1=1 AND sales_consultant_id = $1 AND signature_status = $2 ORDER BY created_at DESC, id ASC LIMIT 20 OFFSET 0")).
		WithArgs("user-1", "sent").
		WillReturnRows(sqlmock.NewRows(evaluationRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM evaluations WHERE 1=1 AND sales_consultant_id = $1 AND signature_status = $2")).
		WithArgs("user-1", "sent").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	list, total, err := repo.List(context.Background(), models.EvaluationFilter{SalesConsultantID: "user-1", SignatureStatus: models.SignatureStatusSent})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationListOrphanAccountIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN accounts a ON a.id = e.account_id WHERE a.id IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("dead-1").AddRow("dead-2"))

	ids, err := repo.ListOrphanAccountIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"dead-1", "dead-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
