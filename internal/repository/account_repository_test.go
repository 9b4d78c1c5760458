package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sales-eval-api/internal/models"
)

func TestAccountBulkCreateRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO accounts").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.BulkCreate(context.Background(), []models.Account{{Name: "A"}, {Name: "B"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountBulkCreateCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	accounts := []models.Account{{Name: "General Hospital", UCN: "100"}}
	require.NoError(t, repo.BulkCreate(context.Background(), accounts))
	assert.NotEmpty(t, accounts[0].ID)
	assert.NotNil(t, accounts[0].PurchasedSKUs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountMergeInto(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluations SET account_id = $1, updated_at = NOW() WHERE account_id = ANY($2)")).
		WithArgs("keep", pq.Array([]string{"dup-1", "dup-2"})).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM accounts WHERE id = ANY($1)")).
		WithArgs(pq.Array([]string{"dup-1", "dup-2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	moved, err := repo.MergeInto(context.Background(), "keep", []string{"dup-1", "dup-2"})
	require.NoError(t, err)
	assert.Equal(t, 3, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountListNameUCNKeys(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT LOWER(name) || '|' || LOWER(ucn) FROM accounts")).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("general hospital|100"))

	keys, err := repo.ListNameUCNKeys(context.Background())
	require.NoError(t, err)
	_, ok := keys["general hospital|100"]
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountListSearch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE 1=1 AND (LOWER(name) LIKE $1 OR LOWER(ucn) LIKE $1) ORDER BY name ASC LIMIT 20 OFFSET 0")).
		WithArgs("%general%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("a-1", "General Hospital"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM accounts WHERE 1=1 AND (LOWER(name) LIKE $1 OR LOWER(ucn) LIKE $1)")).
		WithArgs("%general%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	accounts, total, err := repo.List(context.Background(), models.AccountFilter{Search: "General"})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountListByIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id::text = ANY($1)")).
		WithArgs(pq.Array([]string{"a-1", "a-2"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "ucn"}).AddRow("a-1", "General Hospital", "100"))

	accounts, err := repo.ListByIDs(context.Background(), []string{"a-1", "a-2"})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "100", accounts[0].UCN)

	none, err := repo.ListByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NoError(t, mock.ExpectationsWereMet())
}
