package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
)

type accountStoreStub struct {
	accounts    map[string]models.Account
	evaluations []models.Evaluation
	merged      map[string][]string
	bulkErr     error
	audits      []*models.AuditLog
}

func newAccountStoreStub(accounts ...models.Account) *accountStoreStub {
	s := &accountStoreStub{accounts: map[string]models.Account{}, merged: map[string][]string{}}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *accountStoreStub) List(ctx context.Context, filter models.AccountFilter) ([]models.Account, int, error) {
	out := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, len(out), nil
}

func (s *accountStoreStub) GetByID(ctx context.Context, id string) (*models.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (s *accountStoreStub) ListNameUCNKeys(ctx context.Context) (map[string]struct{}, error) {
	keys := map[string]struct{}{}
	for _, a := range s.accounts {
		keys[accountKey(a.Name, a.UCN)] = struct{}{}
	}
	return keys, nil
}

func (s *accountStoreStub) ListForDeduplication(ctx context.Context) ([]models.Account, error) {
	out := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := accountKey(out[i].Name, out[i].UCN), accountKey(out[j].Name, out[j].UCN)
		if ki != kj {
			return ki < kj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *accountStoreStub) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if _, exists := s.accounts[account.ID]; exists {
		return &pq.Error{Code: "23505"}
	}
	s.accounts[account.ID] = *account
	return nil
}

func (s *accountStoreStub) BulkCreate(ctx context.Context, accounts []models.Account) error {
	if s.bulkErr != nil {
		return s.bulkErr
	}
	for i := range accounts {
		if err := s.Create(ctx, &accounts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *accountStoreStub) Update(ctx context.Context, account *models.Account) error {
	if _, ok := s.accounts[account.ID]; !ok {
		return sql.ErrNoRows
	}
	s.accounts[account.ID] = *account
	return nil
}

func (s *accountStoreStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.accounts[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.accounts, id)
	return nil
}

func (s *accountStoreStub) MergeInto(ctx context.Context, survivorID string, duplicateIDs []string) (int, error) {
	moved := 0
	for i := range s.evaluations {
		for _, dup := range duplicateIDs {
			if s.evaluations[i].AccountID == dup {
				s.evaluations[i].AccountID = survivorID
				moved++
			}
		}
	}
	for _, dup := range duplicateIDs {
		delete(s.accounts, dup)
	}
	s.merged[survivorID] = duplicateIDs
	return moved, nil
}

func (s *accountStoreStub) ListByAccount(ctx context.Context, accountID, excludeID string) ([]models.Evaluation, error) {
	var out []models.Evaluation
	for _, e := range s.evaluations {
		if e.AccountID == accountID && e.ID != excludeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *accountStoreStub) ListOrphanAccountIDs(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	for _, e := range s.evaluations {
		if _, ok := s.accounts[e.AccountID]; !ok && !seen[e.AccountID] {
			seen[e.AccountID] = true
			ids = append(ids, e.AccountID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *accountStoreStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.audits = append(s.audits, log)
	return nil
}

func newAccountServiceWithStub(store *accountStoreStub) *AccountService {
	return NewAccountService(store, store, store, nil, zap.NewNop())
}

func TestAccountCreateValidatesAndTrims(t *testing.T) {
	store := newAccountStoreStub()
	svc := newAccountServiceWithStub(store)

	_, err := svc.Create(context.Background(), models.AccountRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), models.AccountRequest{Name: "Clinic", ContactEmail: "not-an-email"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	account, err := svc.Create(context.Background(), models.AccountRequest{Name: "  General Hospital ", UCN: " 100200", PurchasedSKUs: []string{" 225028 ", ""}})
	require.NoError(t, err)
	assert.Equal(t, "General Hospital", account.Name)
	assert.Equal(t, "100200", account.UCN)
	assert.Equal(t, pq.StringArray{"225028"}, account.PurchasedSKUs)
}

func TestAccountUpdateMissing(t *testing.T) {
	svc := newAccountServiceWithStub(newAccountStoreStub())

	_, err := svc.Update(context.Background(), "missing", models.AccountRequest{Name: "X"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAccountDeleteRefusesReferencedAccount(t *testing.T) {
	store := newAccountStoreStub(models.Account{ID: "a1", Name: "General Hospital"})
	store.evaluations = []models.Evaluation{{ID: "e1", AccountID: "a1"}}
	svc := newAccountServiceWithStub(store)

	err := svc.Delete(context.Background(), "a1")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	store.evaluations = nil
	require.NoError(t, svc.Delete(context.Background(), "a1"))
	assert.ErrorIs(t, svc.Delete(context.Background(), "a1"), appErrors.ErrNotFound)
}

func TestAccountBulkImportSkipsKnownPairs(t *testing.T) {
	store := newAccountStoreStub(models.Account{ID: "a1", Name: "General Hospital", UCN: "100200"})
	svc := newAccountServiceWithStub(store)

	result, err := svc.BulkImport(context.Background(), []models.AccountRequest{
		{Name: "GENERAL HOSPITAL", UCN: "100200"},
		{Name: "Mercy Clinic", UCN: "300400"},
		{Name: "mercy clinic ", UCN: "300400"},
		{Name: "Mercy Clinic", UCN: "300401"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 2, result.Skipped)
	assert.Len(t, store.accounts, 3)
}

func TestAccountBulkImportRejectsInvalidRow(t *testing.T) {
	svc := newAccountServiceWithStub(newAccountStoreStub())

	_, err := svc.BulkImport(context.Background(), []models.AccountRequest{{Name: "ok"}, {Name: ""}})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, 1, appErr.Details.(map[string]interface{})["index"])
}

func TestAccountDeduplicateKeepsOldest(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newAccountStoreStub(
		models.Account{ID: "old", Name: "General Hospital", UCN: "100200", CreatedAt: base},
		models.Account{ID: "dup1", Name: "general hospital", UCN: "100200", CreatedAt: base.Add(time.Hour)},
		models.Account{ID: "dup2", Name: "General Hospital", UCN: "100200", CreatedAt: base.Add(2 * time.Hour)},
		models.Account{ID: "solo", Name: "Mercy Clinic", UCN: "300400", CreatedAt: base},
	)
	store.evaluations = []models.Evaluation{
		{ID: "e1", AccountID: "dup1"},
		{ID: "e2", AccountID: "dup2"},
		{ID: "e3", AccountID: "old"},
	}
	svc := newAccountServiceWithStub(store)

	result, err := svc.Deduplicate(context.Background(), adminActor)
	require.NoError(t, err)
	assert.Equal(t, &models.DeduplicateResult{Groups: 1, Removed: 2, EvaluationsRepointed: 2}, result)
	assert.ElementsMatch(t, []string{"dup1", "dup2"}, store.merged["old"])
	for _, e := range store.evaluations {
		assert.Equal(t, "old", e.AccountID)
	}
	assert.Contains(t, store.accounts, "solo")
	require.Len(t, store.audits, 1)
	assert.Equal(t, models.AuditActionAccountDeduplicate, store.audits[0].Action)
}

func TestAccountRecoverOrphans(t *testing.T) {
	orphan := "9f3c2a10-0000-4000-8000-000000000001"
	store := newAccountStoreStub(models.Account{ID: "a1", Name: "General Hospital"})
	store.evaluations = []models.Evaluation{
		{ID: "e1", AccountID: "a1"},
		{ID: "e2", AccountID: orphan},
		{ID: "e3", AccountID: orphan},
	}
	svc := newAccountServiceWithStub(store)

	result, err := svc.RecoverOrphans(context.Background(), adminActor)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, orphan, result.Created[0].ID)
	assert.Equal(t, "Recovered Account 9f3c2a10", result.Created[0].Name)

	again, err := svc.RecoverOrphans(context.Background(), adminActor)
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Len(t, store.audits, 1)
}
