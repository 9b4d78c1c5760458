package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
)

var complianceNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type historyRepoStub struct {
	evaluations []models.Evaluation
	err         error
	calls       int
	lastExclude string
}

func (s *historyRepoStub) ListByAccount(ctx context.Context, accountID, excludeID string) ([]models.Evaluation, error) {
	s.calls++
	s.lastExclude = excludeID
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Evaluation, 0, len(s.evaluations))
	for _, e := range s.evaluations {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

type namesStub map[string]string

func (n namesStub) CodesToNames(ctx context.Context, codes []string) (map[string]string, error) {
	out := map[string]string{}
	for _, c := range codes {
		if name, ok := n[c]; ok {
			out[c] = name
		}
	}
	return out, nil
}

func newComplianceForTest(repo *historyRepoStub, names namesStub, logger *zap.Logger) *ComplianceService {
	svc := NewComplianceService(repo, names, NewMetricsService(), logger, ComplianceConfig{})
	svc.now = func() time.Time { return complianceNow }
	return svc
}

func pastEvaluation(id, number string, age time.Duration, codes ...string) models.Evaluation {
	items := make(models.LineItems, 0, len(codes))
	for _, c := range codes {
		items = append(items, models.LineItem{SKUCode: c, Quantity: 1})
	}
	return models.Evaluation{ID: id, EvaluationNumber: number, AccountID: "acct-1", LineItems: items, CreatedAt: complianceNow.Add(-age)}
}

func TestComplianceEmptyItems(t *testing.T) {
	repo := &historyRepoStub{}
	svc := newComplianceForTest(repo, nil, nil)

	violations, err := svc.Check(context.Background(), "acct-1", nil, "")
	require.NoError(t, err)
	assert.NotNil(t, violations)
	assert.Empty(t, violations)
	assert.Zero(t, repo.calls)
}

func TestComplianceRequiresAccount(t *testing.T) {
	svc := newComplianceForTest(&historyRepoStub{}, nil, nil)

	_, err := svc.Check(context.Background(), " ", []models.ComplianceItem{{SKUCode: "A"}}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestComplianceWindowBoundary(t *testing.T) {
	day := 24 * time.Hour
	repo := &historyRepoStub{evaluations: []models.Evaluation{
		pastEvaluation("e-1", "EV-1", 365*day+time.Second, "inside"),
		pastEvaluation("e-2", "EV-2", 367*day, "outside"),
	}}
	svc := newComplianceForTest(repo, nil, nil)

	violations, err := svc.Check(context.Background(), "acct-1", []models.ComplianceItem{{SKUCode: "inside"}, {SKUCode: "outside"}}, "")
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "inside", violations[0].SKUCode)
	assert.Equal(t, 1, violations[0].DaysUntilEligible)
	assert.True(t, violations[0].Blocking())
}

// The lookback starts at midnight UTC of the day 365 days back, so history
// from earlier that day still counts even if it is more than 365x24h old.
func TestComplianceLookbackUsesCalendarDay(t *testing.T) {
	day := 24 * time.Hour

	lateNow := time.Date(2026, 10, 15, 23, 30, 0, 0, time.UTC)
	repo := &historyRepoStub{evaluations: []models.Evaluation{{
		ID: "e-1", EvaluationNumber: "EV-1", AccountID: "acct-1",
		LineItems: models.LineItems{{SKUCode: "225028", Quantity: 1}},
		CreatedAt: lateNow.Add(-(365*day + 23*time.Hour)),
	}}}
	svc := newComplianceForTest(repo, nil, nil)
	svc.now = func() time.Time { return lateNow }

	violations, err := svc.Check(context.Background(), "acct-1", []models.ComplianceItem{{SKUCode: "225028"}}, "")
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, 1, violations[0].DaysUntilEligible)
	assert.True(t, violations[0].Blocking())

	repo = &historyRepoStub{evaluations: []models.Evaluation{
		pastEvaluation("e-2", "EV-2", 365*day+11*time.Hour, "same-day"),
		pastEvaluation("e-3", "EV-3", 365*day+23*time.Hour, "day-before"),
	}}
	svc = newComplianceForTest(repo, nil, nil)

	violations, err = svc.Check(context.Background(), "acct-1", []models.ComplianceItem{{SKUCode: "same-day"}, {SKUCode: "day-before"}}, "")
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "same-day", violations[0].SKUCode)
	assert.Equal(t, 1, violations[0].DaysUntilEligible)
	assert.True(t, violations[0].Blocking())
}

func TestComplianceMostRecentWins(t *testing.T) {
	day := 24 * time.Hour
	// deliberately stored oldest first
	repo := &historyRepoStub{evaluations: []models.Evaluation{
		pastEvaluation("old", "EV-OLD", 300*day, "225028"),
		pastEvaluation("new", "EV-NEW", 100*day, "225028"),
	}}
	svc := newComplianceForTest(repo, namesStub{"225028": "Infusion Pump"}, nil)

	violations, err := svc.Check(context.Background(), "acct-1", []models.ComplianceItem{{SKUCode: "225028"}, {SKUCode: "225028"}}, "")
	require.NoError(t, err)
	require.Len(t, violations, 1)
	v := violations[0]
	assert.Equal(t, "EV-NEW", v.EvaluationNumber)
	assert.Equal(t, "Infusion Pump", v.ProductName)
	assert.Equal(t, 266, v.DaysUntilEligible)
	assert.Equal(t, v.LastEvaluationDate.Add(366*day), v.CanEvaluateDate)
}

func TestComplianceSelfExclusion(t *testing.T) {
	repo := &historyRepoStub{evaluations: []models.Evaluation{
		pastEvaluation("self", "EV-SELF", 24*time.Hour, "X1"),
	}}
	svc := newComplianceForTest(repo, nil, nil)

	violations, err := svc.Check(context.Background(), "acct-1", []models.ComplianceItem{{SKUCode: "X1"}}, "self")
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.Equal(t, "self", repo.lastExclude)
}

func TestComplianceUnknownProductFallsBackToCode(t *testing.T) {
	repo := &historyRepoStub{evaluations: []models.Evaluation{
		pastEvaluation("e-1", "EV-1", 10*24*time.Hour, "ZZZ"),
	}}
	svc := newComplianceForTest(repo, namesStub{}, nil)

	violations, err := svc.Check(context.Background(), "acct-1", []models.ComplianceItem{{SKUCode: "ZZZ"}}, "")
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "ZZZ", violations[0].ProductName)
}

func TestComplianceFailsOpen(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	repo := &historyRepoStub{err: errors.New("connection refused")}
	svc := newComplianceForTest(repo, nil, zap.New(core))

	violations, err := svc.Check(context.Background(), "acct-1", []models.ComplianceItem{{SKUCode: "A"}}, "")
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, uint64(1), svc.metrics.Snapshot().ComplianceFailOpen)
}

func TestComplianceOtherAccountIgnored(t *testing.T) {
	other := pastEvaluation("e-9", "EV-9", 24*time.Hour, "A")
	other.AccountID = "acct-2"
	svc := newComplianceForTest(&historyRepoStub{evaluations: []models.Evaluation{other}}, nil, nil)

	violations, err := svc.Check(context.Background(), "acct-1", []models.ComplianceItem{{SKUCode: "A"}}, "")
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestBlockingFiltersEligible(t *testing.T) {
	violations := []models.ComplianceViolation{{SKUCode: "A", DaysUntilEligible: 3}, {SKUCode: "B", DaysUntilEligible: 0}}
	blocking := Blocking(violations)
	require.Len(t, blocking, 1)
	assert.Equal(t, "A", blocking[0].SKUCode)
}
