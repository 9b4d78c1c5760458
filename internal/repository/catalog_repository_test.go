package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sales-eval-api/internal/models"
)

func TestSKUListByCodes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSKURepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM skus WHERE code = ANY($1)")).
		WithArgs(pq.Array([]string{"225028"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "description", "category", "active", "created_at", "updated_at"}).
			AddRow("s-1", "225028", "Infusion Pump", "", "pumps", true, now, now))

	skus, err := repo.ListByCodes(context.Background(), []string{"225028"})
	require.NoError(t, err)
	require.Len(t, skus, 1)
	assert.Equal(t, "Infusion Pump", skus[0].Name)

	empty, err := repo.ListByCodes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSKUBulkCreateSkipsExistingCodes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSKURepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (code) DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (code) DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := repo.BulkCreate(context.Background(), []models.SKU{{Code: "1", Name: "A"}, {Code: "2", Name: "B"}})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementListActiveExcludesDismissed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("NOT EXISTS (SELECT 1 FROM announcement_dismissals d WHERE d.announcement_id = a.id AND d.user_id = $1)")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("an-1", "Quarter close"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM announcements a WHERE 1=1 AND a.active = TRUE")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.AnnouncementFilter{ActiveOnly: true, ExcludeDismissedBy: "user-1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementDismissIsIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (announcement_id, user_id) DO NOTHING")).
		WithArgs("an-1", "user-1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Dismiss(context.Background(), "an-1", "user-1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM posts WHERE id = $1")).WithArgs("p-1").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "p-1"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
