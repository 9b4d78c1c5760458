package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
)

type accountRepository interface {
	List(ctx context.Context, filter models.AccountFilter) ([]models.Account, int, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	ListNameUCNKeys(ctx context.Context) (map[string]struct{}, error)
	ListForDeduplication(ctx context.Context) ([]models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	BulkCreate(ctx context.Context, accounts []models.Account) error
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id string) error
	MergeInto(ctx context.Context, survivorID string, duplicateIDs []string) (int, error)
}

type accountEvaluationRepository interface {
	ListByAccount(ctx context.Context, accountID, excludeID string) ([]models.Evaluation, error)
	ListOrphanAccountIDs(ctx context.Context) ([]string, error)
}

// AccountService manages customer accounts and their maintenance jobs.
type AccountService struct {
	repo        accountRepository
	evaluations accountEvaluationRepository
	audit       auditLogWriter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAccountService constructs the service. audit may be nil.
func NewAccountService(repo accountRepository, evaluations accountEvaluationRepository, audit auditLogWriter, validate *validator.Validate, logger *zap.Logger) *AccountService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{repo: repo, evaluations: evaluations, audit: audit, validator: validate, logger: logger}
}

// List returns accounts matching filter.
func (s *AccountService) List(ctx context.Context, filter models.AccountFilter) ([]models.Account, *models.Pagination, error) {
	pagination := newPagination(filter.Page, filter.PageSize, 0)
	filter.Page, filter.PageSize = pagination.Page, pagination.PageSize
	accounts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list accounts")
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	pagination.TotalCount = total
	return accounts, pagination, nil
}

// Get returns an account by id.
func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "account", "load account")
	}
	return account, nil
}

// Create stores a new account.
func (s *AccountService) Create(ctx context.Context, req models.AccountRequest) (*models.Account, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid account payload")
	}
	account := accountFromRequest(req)
	if err := s.repo.Create(ctx, account); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "account already exists")
		}
		return nil, internalError(err, "failed to create account")
	}
	return account, nil
}

// Update replaces the mutable fields of an account.
func (s *AccountService) Update(ctx context.Context, id string, req models.AccountRequest) (*models.Account, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid account payload")
	}
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "account", "load account")
	}
	account := accountFromRequest(req)
	account.ID = existing.ID
	account.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, account); err != nil {
		return nil, notFoundOr(err, "account", "update account")
	}
	return account, nil
}

// Delete removes an account that no evaluation references.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	if s.evaluations != nil {
		refs, err := s.evaluations.ListByAccount(ctx, id, "")
		if err != nil {
			return internalError(err, "failed to check account references")
		}
		if len(refs) > 0 {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("account is referenced by %d evaluations", len(refs)))
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "account", "delete account")
	}
	return nil
}

// BulkImport inserts records whose name and UCN pair is not already stored.
// Duplicates within the payload are skipped after the first occurrence.
func (s *AccountService) BulkImport(ctx context.Context, reqs []models.AccountRequest) (*models.BulkImportResult, error) {
	for i, req := range reqs {
		if err := s.validator.Struct(req); err != nil {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid account payload"), map[string]interface{}{"index": i, "error": err.Error()})
		}
	}
	existing, err := s.repo.ListNameUCNKeys(ctx)
	if err != nil {
		return nil, internalError(err, "failed to load existing accounts")
	}

	result := &models.BulkImportResult{}
	accounts := make([]models.Account, 0, len(reqs))
	for _, req := range reqs {
		key := accountKey(req.Name, req.UCN)
		if _, dup := existing[key]; dup {
			result.Skipped++
			continue
		}
		existing[key] = struct{}{}
		accounts = append(accounts, *accountFromRequest(req))
	}
	if err := s.repo.BulkCreate(ctx, accounts); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "account import collided with a concurrent write")
		}
		return nil, internalError(err, "failed to import accounts")
	}
	result.Created = len(accounts)
	s.logger.Info("accounts imported", zap.Int("created", result.Created), zap.Int("skipped", result.Skipped))
	return result, nil
}

// Deduplicate keeps the oldest account per name and UCN pair, re-pointing the
// evaluations of the others to it before deleting them.
func (s *AccountService) Deduplicate(ctx context.Context, actor *models.JWTClaims) (*models.DeduplicateResult, error) {
	accounts, err := s.repo.ListForDeduplication(ctx)
	if err != nil {
		return nil, internalError(err, "failed to load accounts")
	}

	result := &models.DeduplicateResult{}
	for _, group := range groupDuplicates(accounts) {
		survivor := group[0]
		duplicates := make([]string, 0, len(group)-1)
		for _, dup := range group[1:] {
			duplicates = append(duplicates, dup.ID)
		}
		moved, err := s.repo.MergeInto(ctx, survivor.ID, duplicates)
		if err != nil {
			return nil, internalError(err, "failed to merge duplicate accounts")
		}
		result.Groups++
		result.Removed += len(duplicates)
		result.EvaluationsRepointed += moved
		s.logger.Info("merged duplicate accounts",
			zap.String("survivor_id", survivor.ID),
			zap.Strings("removed_ids", duplicates),
			zap.Int("evaluations_repointed", moved),
		)
	}

	s.recordAudit(ctx, actor, models.AuditActionAccountDeduplicate, result)
	return result, nil
}

// RecoverOrphans creates placeholder accounts for evaluations whose account row is missing.
func (s *AccountService) RecoverOrphans(ctx context.Context, actor *models.JWTClaims) (*models.RecoverOrphansResult, error) {
	ids, err := s.evaluations.ListOrphanAccountIDs(ctx)
	if err != nil {
		return nil, internalError(err, "failed to find orphaned evaluations")
	}
	result := &models.RecoverOrphansResult{Created: []models.Account{}}
	for _, id := range ids {
		short := id
		if len(short) > 8 {
			short = short[:8]
		}
		account := &models.Account{
			ID:            id,
			Name:          "Recovered Account " + short,
			PurchasedSKUs: pq.StringArray{},
		}
		if err := s.repo.Create(ctx, account); err != nil {
			if appErrors.IsUniqueViolation(err) {
				continue
			}
			return nil, internalError(err, "failed to create recovered account")
		}
		result.Created = append(result.Created, *account)
	}
	if len(result.Created) > 0 {
		s.recordAudit(ctx, actor, models.AuditActionAccountRecover, result)
	}
	return result, nil
}

func (s *AccountService) recordAudit(ctx context.Context, actor *models.JWTClaims, action string, payload interface{}) {
	if s.audit == nil {
		return
	}
	body, _ := json.Marshal(payload)
	log := &models.AuditLog{Action: action, Resource: "accounts", NewValues: body}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record account audit log", zap.String("action", action), zap.Error(err))
	}
}

// groupDuplicates expects accounts ordered by key then age and returns groups of two or more.
func groupDuplicates(accounts []models.Account) [][]models.Account {
	var groups [][]models.Account
	for start := 0; start < len(accounts); {
		key := accountKey(accounts[start].Name, accounts[start].UCN)
		end := start + 1
		for end < len(accounts) && accountKey(accounts[end].Name, accounts[end].UCN) == key {
			end++
		}
		if end-start > 1 {
			groups = append(groups, accounts[start:end])
		}
		start = end
	}
	return groups
}

func accountKey(name, ucn string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(ucn))
}

func accountFromRequest(req models.AccountRequest) *models.Account {
	skus := pq.StringArray{}
	for _, code := range req.PurchasedSKUs {
		if code = strings.TrimSpace(code); code != "" {
			skus = append(skus, code)
		}
	}
	return &models.Account{
		Name:             strings.TrimSpace(req.Name),
		UCN:              strings.TrimSpace(req.UCN),
		Address:          strings.TrimSpace(req.Address),
		City:             strings.TrimSpace(req.City),
		State:            strings.TrimSpace(req.State),
		Zip:              strings.TrimSpace(req.Zip),
		ContactName:      strings.TrimSpace(req.ContactName),
		ContactEmail:     strings.TrimSpace(req.ContactEmail),
		ContactPhone:     strings.TrimSpace(req.ContactPhone),
		IsGovernment:     req.IsGovernment,
		PurchasedSKUs:    skus,
		LastPurchaseDate: req.LastPurchaseDate,
	}
}
