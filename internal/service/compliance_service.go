package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
)

const (
	defaultLookbackDays    = 365
	defaultEligibilityDays = 366
)

type evaluationHistoryRepository interface {
	ListByAccount(ctx context.Context, accountID, excludeID string) ([]models.Evaluation, error)
}

type productNameResolver interface {
	CodesToNames(ctx context.Context, codes []string) (map[string]string, error)
}

// ComplianceConfig tunes the re-evaluation window.
type ComplianceConfig struct {
	LookbackDays    int
	EligibilityDays int
}

// ComplianceService enforces the rule that a product may be evaluated at an
// account at most once in a rolling twelve months.
type ComplianceService struct {
	history  evaluationHistoryRepository
	products productNameResolver
	metrics  *MetricsService
	logger   *zap.Logger
	config   ComplianceConfig
	now      func() time.Time
}

// NewComplianceService constructs the checker. products and metrics may be nil.
func NewComplianceService(history evaluationHistoryRepository, products productNameResolver, metrics *MetricsService, logger *zap.Logger, config ComplianceConfig) *ComplianceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.LookbackDays <= 0 {
		config.LookbackDays = defaultLookbackDays
	}
	if config.EligibilityDays <= 0 {
		config.EligibilityDays = defaultEligibilityDays
	}
	return &ComplianceService{
		history:  history,
		products: products,
		metrics:  metrics,
		logger:   logger,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Check returns one violation per candidate SKU that was evaluated at the
// account inside the lookback window, ignoring excludeEvaluationID. History
// lookup failures are logged and treated as no violations.
func (s *ComplianceService) Check(ctx context.Context, accountID string, items []models.ComplianceItem, excludeEvaluationID string) ([]models.ComplianceViolation, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "account_id is required")
	}
	violations := []models.ComplianceViolation{}
	candidates := candidateCodes(items)
	if len(candidates) == 0 {
		return violations, nil
	}

	history, err := s.history.ListByAccount(ctx, accountID, excludeEvaluationID)
	if err != nil {
		s.logger.Warn("compliance history unavailable, allowing save",
			zap.String("account_id", accountID),
			zap.Error(err))
		s.metrics.RecordComplianceCheck(ComplianceResultFailOpen)
		return violations, nil
	}

	filtered := history[:0:0]
	for _, evaluation := range history {
		if excludeEvaluationID != "" && evaluation.ID == excludeEvaluationID {
			continue
		}
		filtered = append(filtered, evaluation)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	now := s.now()
	cutoff := lookbackCutoff(now, s.config.LookbackDays)
	eligibility := time.Duration(s.config.EligibilityDays) * 24 * time.Hour

	for _, code := range candidates {
		for _, evaluation := range filtered {
			if !evaluation.CreatedAt.After(cutoff) {
				// history is newest first so nothing older can match
				break
			}
			if !evaluation.LineItems.Contains(code) {
				continue
			}
			canEvaluate := evaluation.CreatedAt.Add(eligibility)
			violations = append(violations, models.ComplianceViolation{
				SKUCode:            code,
				ProductName:        code,
				LastEvaluationDate: evaluation.CreatedAt,
				CanEvaluateDate:    canEvaluate,
				DaysUntilEligible:  daysUntil(now, canEvaluate),
				EvaluationNumber:   evaluation.EvaluationNumber,
			})
			break
		}
	}

	s.resolveNames(ctx, violations)
	if len(violations) > 0 {
		s.metrics.RecordComplianceCheck(ComplianceResultViolation)
	} else {
		s.metrics.RecordComplianceCheck(ComplianceResultClear)
	}
	return violations, nil
}

// Blocking filters violations down to those still preventing a save.
func Blocking(violations []models.ComplianceViolation) []models.ComplianceViolation {
	blocking := make([]models.ComplianceViolation, 0, len(violations))
	for _, v := range violations {
		if v.Blocking() {
			blocking = append(blocking, v)
		}
	}
	return blocking
}

func (s *ComplianceService) resolveNames(ctx context.Context, violations []models.ComplianceViolation) {
	if len(violations) == 0 || s.products == nil {
		return
	}
	codes := make([]string, 0, len(violations))
	for _, v := range violations {
		codes = append(codes, v.SKUCode)
	}
	names, err := s.products.CodesToNames(ctx, codes)
	if err != nil {
		s.logger.Warn("resolve product names", zap.Error(err))
		return
	}
	for i := range violations {
		if name := names[violations[i].SKUCode]; name != "" {
			violations[i].ProductName = name
		}
	}
}

func candidateCodes(items []models.ComplianceItem) []string {
	seen := make(map[string]struct{}, len(items))
	codes := make([]string, 0, len(items))
	for _, item := range items {
		code := strings.TrimSpace(item.SKUCode)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// lookbackCutoff is the start of the UTC day that lies days before now.
func lookbackCutoff(now time.Time, days int) time.Time {
	y, m, d := now.UTC().AddDate(0, 0, -days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysUntil(now, target time.Time) int {
	return int(math.Ceil(target.Sub(now).Hours() / 24))
}
