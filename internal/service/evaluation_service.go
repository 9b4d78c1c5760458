package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
	"github.com/noah-isme/sales-eval-api/pkg/export"
)

const (
	evaluationNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	evaluationNumberSuffix   = 6
	evaluationNumberAttempts = 5
)

// CSVExportHeaders are the columns of the evaluation CSV export, in order.
var CSVExportHeaders = []string{
	"Evaluation Number", "Account", "UCN", "Sales Consultant", "Status", "Signature Status", "SKUs", "Created At", "Signed At",
}

type evaluationRepository interface {
	List(ctx context.Context, filter models.EvaluationFilter) ([]models.Evaluation, int, error)
	ListAll(ctx context.Context, filter models.EvaluationFilter) ([]models.Evaluation, error)
	GetByID(ctx context.Context, id string) (*models.Evaluation, error)
	Create(ctx context.Context, evaluation *models.Evaluation) error
	Update(ctx context.Context, evaluation *models.Evaluation) error
	UpdateStatus(ctx context.Context, id string, from, to models.EvaluationStatus) error
	Delete(ctx context.Context, id string) error
}

type evaluationAccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Account, error)
}

type complianceChecker interface {
	Check(ctx context.Context, accountID string, items []models.ComplianceItem, excludeEvaluationID string) ([]models.ComplianceViolation, error)
}

// EvaluationService owns evaluation CRUD, lifecycle and documents.
type EvaluationService struct {
	repo       evaluationRepository
	accounts   evaluationAccountRepository
	compliance complianceChecker
	products   productNameResolver
	audit      auditLogWriter
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	agreements *export.AgreementRenderer
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewEvaluationService constructs the service. audit may be nil.
func NewEvaluationService(
	repo evaluationRepository,
	accounts evaluationAccountRepository,
	compliance complianceChecker,
	products productNameResolver,
	audit auditLogWriter,
	validate *validator.Validate,
	logger *zap.Logger,
) *EvaluationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationService{
		repo:       repo,
		accounts:   accounts,
		compliance: compliance,
		products:   products,
		audit:      audit,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		agreements: export.NewAgreementRenderer(),
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns evaluations visible to actor.
func (s *EvaluationService) List(ctx context.Context, filter models.EvaluationFilter, actor *models.JWTClaims) ([]models.Evaluation, *models.Pagination, error) {
	filter = scopeFilter(filter, actor)
	evaluations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list evaluations")
	}
	if evaluations == nil {
		evaluations = []models.Evaluation{}
	}
	return evaluations, newPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns an evaluation visible to actor.
func (s *EvaluationService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Evaluation, error) {
	evaluation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "evaluation", "load evaluation")
	}
	if !canAccessEvaluation(actor, evaluation) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "evaluation not found")
	}
	return evaluation, nil
}

// CheckCompliance runs the compliance checker for a prospective save.
func (s *EvaluationService) CheckCompliance(ctx context.Context, req models.ComplianceCheckRequest) (*models.ComplianceCheckResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid compliance check payload")
	}
	violations, err := s.compliance.Check(ctx, req.AccountID, req.Items, req.ExcludeEvaluationID)
	if err != nil {
		return nil, err
	}
	return &models.ComplianceCheckResponse{Compliant: len(Blocking(violations)) == 0, Violations: violations}, nil
}

// Create stores a new draft evaluation owned by actor.
func (s *EvaluationService) Create(ctx context.Context, req models.EvaluationRequest, actor *models.JWTClaims) (*models.Evaluation, error) {
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}
	if err := s.guardCompliance(ctx, req, ""); err != nil {
		return nil, err
	}

	evaluation := &models.Evaluation{
		AccountID: req.AccountID,
		LineItems: normaliseLineItems(req.LineItems),
		Status:    models.EvaluationStatusDraft,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Notes:     strings.TrimSpace(req.Notes),
	}
	if actor != nil {
		evaluation.SalesConsultantID = actor.UserID
		evaluation.SalesConsultantName = actor.FullName
		evaluation.SalesConsultantEmail = actor.Email
	}

	for attempt := 1; ; attempt++ {
		number, err := s.newEvaluationNumber()
		if err != nil {
			return nil, internalError(err, "failed to generate evaluation number")
		}
		evaluation.ID = ""
		evaluation.EvaluationNumber = number
		err = s.repo.Create(ctx, evaluation)
		if err == nil {
			return evaluation, nil
		}
		if !appErrors.IsUniqueViolation(err) || attempt >= evaluationNumberAttempts {
			return nil, internalError(err, "failed to create evaluation")
		}
		s.logger.Info("evaluation number collision, retrying", zap.String("number", number))
	}
}

// Update edits content of an evaluation whose signature has not been requested.
func (s *EvaluationService) Update(ctx context.Context, id string, req models.EvaluationRequest, actor *models.JWTClaims) (*models.Evaluation, error) {
	evaluation, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if evaluation.SignatureStatus != models.SignatureStatusNotSent {
		return nil, appErrors.Clone(appErrors.ErrSignatureState, "evaluation cannot be edited after a signature was requested")
	}
	if evaluation.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("evaluation is %s", evaluation.Status))
	}
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}
	if err := s.guardCompliance(ctx, req, evaluation.ID); err != nil {
		return nil, err
	}

	evaluation.AccountID = req.AccountID
	evaluation.LineItems = normaliseLineItems(req.LineItems)
	evaluation.StartDate = req.StartDate
	evaluation.EndDate = req.EndDate
	evaluation.Notes = strings.TrimSpace(req.Notes)
	if err := s.repo.Update(ctx, evaluation); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSignatureState, "evaluation changed or its signature was requested while editing")
		}
		return nil, internalError(err, "failed to update evaluation")
	}
	return evaluation, nil
}

// UpdateStatus moves the evaluation along its lifecycle.
func (s *EvaluationService) UpdateStatus(ctx context.Context, id string, req models.EvaluationStatusRequest, actor *models.JWTClaims) (*models.Evaluation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid status payload")
	}
	evaluation, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !evaluation.Status.CanTransitionTo(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot move evaluation from %s to %s", evaluation.Status, req.Status))
	}
	if err := s.repo.UpdateStatus(ctx, evaluation.ID, evaluation.Status, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "evaluation status changed concurrently")
		}
		return nil, internalError(err, "failed to update evaluation status")
	}
	evaluation.Status = req.Status
	evaluation.UpdatedAt = s.now()
	return evaluation, nil
}

// Delete removes an evaluation. Only admins may delete.
func (s *EvaluationService) Delete(ctx context.Context, id string, actor *models.JWTClaims, meta models.LoginRequest) error {
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins can delete evaluations")
	}
	evaluation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "evaluation", "load evaluation")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "evaluation", "delete evaluation")
	}
	if s.audit != nil {
		oldPayload, _ := json.Marshal(map[string]interface{}{
			"evaluation_number": evaluation.EvaluationNumber,
			"account_id":        evaluation.AccountID,
			"status":            evaluation.Status,
		})
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionEvaluationDelete,
			Resource:   "evaluations",
			ResourceID: &evaluation.ID,
			OldValues:  oldPayload,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		}); err != nil {
			s.logger.Warn("failed to record evaluation delete audit log", zap.Error(err))
		}
	}
	return nil
}

// ExportCSV renders every evaluation visible to actor that matches filter.
func (s *EvaluationService) ExportCSV(ctx context.Context, filter models.EvaluationFilter, actor *models.JWTClaims) ([]byte, error) {
	dataset, err := s.exportDataset(ctx, filter, actor)
	if err != nil {
		return nil, err
	}
	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, internalError(err, "failed to render csv")
	}
	return data, nil
}

// ExportPDF renders the same rows as ExportCSV as a printable table.
func (s *EvaluationService) ExportPDF(ctx context.Context, filter models.EvaluationFilter, actor *models.JWTClaims) ([]byte, error) {
	dataset, err := s.exportDataset(ctx, filter, actor)
	if err != nil {
		return nil, err
	}
	data, err := s.pdf.Render(dataset, "Evaluations")
	if err != nil {
		return nil, internalError(err, "failed to render pdf")
	}
	return data, nil
}

func (s *EvaluationService) exportDataset(ctx context.Context, filter models.EvaluationFilter, actor *models.JWTClaims) (export.Dataset, error) {
	filter = scopeFilter(filter, actor)
	evaluations, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return export.Dataset{}, internalError(err, "failed to load evaluations for export")
	}
	accounts, err := s.accountIndex(ctx, evaluations)
	if err != nil {
		return export.Dataset{}, internalError(err, "failed to load accounts for export")
	}

	rows := make([]map[string]string, 0, len(evaluations))
	for _, e := range evaluations {
		account := accounts[e.AccountID]
		row := map[string]string{
			"Evaluation Number": e.EvaluationNumber,
			"Account":           account.Name,
			"UCN":               account.UCN,
			"Sales Consultant":  e.SalesConsultantName,
			"Status":            string(e.Status),
			"Signature Status":  string(e.SignatureStatus),
			"SKUs":              strings.Join(e.LineItems.Codes(), "; "),
			"Created At":        e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if e.SignedAt != nil {
			row["Signed At"] = e.SignedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: CSVExportHeaders, Rows: rows}, nil
}

// RenderAgreement produces the printable PDF agreement for an evaluation.
func (s *EvaluationService) RenderAgreement(ctx context.Context, id string, actor *models.JWTClaims) ([]byte, string, error) {
	evaluation, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, "", err
	}
	account, err := s.accounts.GetByID(ctx, evaluation.AccountID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, "", internalError(err, "failed to load account")
		}
		account = &models.Account{Name: "Unknown account"}
	}
	names := map[string]string{}
	if s.products != nil {
		if resolved, err := s.products.CodesToNames(ctx, evaluation.LineItems.Codes()); err == nil {
			names = resolved
		} else {
			s.logger.Warn("resolve product names", zap.Error(err))
		}
	}

	doc := export.Agreement{
		EvaluationNumber: evaluation.EvaluationNumber,
		Status:           string(evaluation.Status),
		CreatedAt:        evaluation.CreatedAt,
		StartDate:        evaluation.StartDate,
		EndDate:          evaluation.EndDate,
		ConsultantName:   evaluation.SalesConsultantName,
		ConsultantEmail:  evaluation.SalesConsultantEmail,
		Notes:            evaluation.Notes,
		Account: export.AgreementParty{
			Name:         account.Name,
			UCN:          account.UCN,
			Address:      formatAddress(account),
			ContactName:  account.ContactName,
			ContactEmail: account.ContactEmail,
			ContactPhone: account.ContactPhone,
		},
	}
	for _, item := range evaluation.LineItems {
		name := names[item.SKUCode]
		if name == "" {
			name = item.SKUCode
		}
		doc.Items = append(doc.Items, export.AgreementItem{SKUCode: item.SKUCode, ProductName: name, Quantity: item.Quantity, Notes: item.Notes})
	}
	if evaluation.SignatureStatus == models.SignatureStatusSigned && evaluation.SignedAt != nil {
		sig := &export.AgreementSignature{
			Name:     deref(evaluation.SignedByName),
			Title:    deref(evaluation.SignedByTitle),
			Email:    deref(evaluation.SignedByEmail),
			PONumber: deref(evaluation.CustomerPONumber),
			SignedAt: *evaluation.SignedAt,
		}
		if raw, err := SignaturePNG(deref(evaluation.SignatureDataURL)); err == nil {
			sig.ImagePNG = raw
		} else {
			s.logger.Warn("stored signature image unreadable", zap.String("evaluation_id", evaluation.ID), zap.Error(err))
		}
		doc.Signature = sig
	}

	pdf, err := s.agreements.Render(doc)
	if err != nil {
		return nil, "", internalError(err, "failed to render agreement")
	}
	return pdf, fmt.Sprintf("%s.pdf", evaluation.EvaluationNumber), nil
}

func (s *EvaluationService) validateRequest(ctx context.Context, req models.EvaluationRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid evaluation payload")
	}
	seen := make(map[string]struct{}, len(req.LineItems))
	for _, item := range req.LineItems {
		code := strings.TrimSpace(item.SKUCode)
		if _, dup := seen[code]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("sku %s appears on more than one line", code))
		}
		seen[code] = struct{}{}
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	if _, err := s.accounts.GetByID(ctx, req.AccountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "account does not exist")
		}
		return internalError(err, "failed to load account")
	}
	return nil
}

func (s *EvaluationService) guardCompliance(ctx context.Context, req models.EvaluationRequest, excludeID string) error {
	items := make([]models.ComplianceItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		items = append(items, models.ComplianceItem{SKUCode: strings.TrimSpace(item.SKUCode), Quantity: item.Quantity})
	}
	violations, err := s.compliance.Check(ctx, req.AccountID, items, excludeID)
	if err != nil {
		return err
	}
	if blocking := Blocking(violations); len(blocking) > 0 {
		return appErrors.WithDetails(appErrors.ErrComplianceViolation, map[string]interface{}{"violations": blocking})
	}
	return nil
}

func (s *EvaluationService) accountIndex(ctx context.Context, evaluations []models.Evaluation) (map[string]models.Account, error) {
	ids := make([]string, 0, len(evaluations))
	for _, e := range evaluations {
		ids = append(ids, e.AccountID)
	}
	accounts, err := s.accounts.ListByIDs(ctx, uniqueStrings(ids))
	if err != nil {
		return nil, err
	}
	index := make(map[string]models.Account, len(accounts))
	for _, a := range accounts {
		index[a.ID] = a
	}
	return index, nil
}

func (s *EvaluationService) newEvaluationNumber() (string, error) {
	suffix := make([]byte, evaluationNumberSuffix)
	limit := big.NewInt(int64(len(evaluationNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		suffix[i] = evaluationNumberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("EV-%s-%s", s.now().Format("20060102"), suffix), nil
}

func normaliseLineItems(items models.LineItems) models.LineItems {
	out := make(models.LineItems, 0, len(items))
	for _, item := range items {
		item.SKUCode = strings.TrimSpace(item.SKUCode)
		item.Notes = strings.TrimSpace(item.Notes)
		out = append(out, item)
	}
	return out
}

func scopeFilter(filter models.EvaluationFilter, actor *models.JWTClaims) models.EvaluationFilter {
	if actor != nil && !actor.IsAdmin() {
		filter.SalesConsultantID = actor.UserID
	}
	return filter
}
