package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
	"github.com/noah-isme/sales-eval-api/pkg/extract"
)

const (
	evaluationInstructions = "You read equipment evaluation request forms. Return the customer institution, its customer number (UCN) " +
		"and every requested product line with its SKU code exactly as printed and quantity. Use 1 when a quantity is missing. " +
		"Do not invent products that are not on the document."
	accountsInstructions = "You read customer account lists. Return one entry per customer institution with its name, customer number (UCN), " +
		"postal address split into address, city, state and zip, and the primary contact. Use empty strings for missing values. " +
		"Set is_government when the customer is a government or public agency."
)

type documentLoader interface {
	Load(ctx context.Context, fileURL string) (*extract.Document, error)
}

type documentExtractor interface {
	Extract(ctx context.Context, doc extract.Document, schemaName, instructions string, target interface{}) (*extract.Result, error)
}

// ExtractionService turns uploaded documents into evaluation or account drafts.
type ExtractionService struct {
	enabled   bool
	files     documentLoader
	extractor documentExtractor
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExtractionService constructs the service. When enabled is false every call
// reports the feature as disabled.
func NewExtractionService(enabled bool, files documentLoader, extractor documentExtractor, validate *validator.Validate, logger *zap.Logger) *ExtractionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractionService{enabled: enabled, files: files, extractor: extractor, validator: validate, logger: logger}
}

// Extract loads the file behind req.FileURL and asks the model for the target shape.
func (s *ExtractionService) Extract(ctx context.Context, req models.ExtractionRequest) (*extract.Result, error) {
	if !s.enabled || s.extractor == nil {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "document extraction is disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid extraction payload")
	}
	doc, err := s.files.Load(ctx, req.FileURL)
	if err != nil {
		return nil, err
	}

	var (
		target       interface{}
		instructions string
	)
	switch req.Target {
	case models.ExtractionTargetAccounts:
		target, instructions = &models.ExtractedAccounts{}, accountsInstructions
	default:
		target, instructions = &models.ExtractedEvaluation{}, evaluationInstructions
	}

	result, err := s.extractor.Extract(ctx, *doc, req.Target, instructions, target)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExtractionFailed.Code, appErrors.ErrExtractionFailed.Status, "document extraction failed")
	}
	s.logger.Info("document extracted",
		zap.String("target", req.Target),
		zap.String("file", doc.Filename),
		zap.String("status", result.Status),
	)
	return result, nil
}
