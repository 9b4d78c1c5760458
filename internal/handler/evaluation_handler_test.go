package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sales-eval-api/internal/middleware"
	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
)

type envelopeBody struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var body envelopeBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func newTestContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

type fakeEvaluationSrv struct {
	evaluationService

	lastFilter models.EvaluationFilter
	lastActor  *models.JWTClaims
	createErr  error
	csv        []byte
}

func (f *fakeEvaluationSrv) List(ctx context.Context, filter models.EvaluationFilter, actor *models.JWTClaims) ([]models.Evaluation, *models.Pagination, error) {
	f.lastFilter = filter
	f.lastActor = actor
	return []models.Evaluation{{ID: "ev-1", EvaluationNumber: "EV-20261015-ABC123"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (f *fakeEvaluationSrv) Create(ctx context.Context, req models.EvaluationRequest, actor *models.JWTClaims) (*models.Evaluation, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.Evaluation{ID: "ev-2", AccountID: req.AccountID, LineItems: req.LineItems}, nil
}

func (f *fakeEvaluationSrv) ExportCSV(ctx context.Context, filter models.EvaluationFilter, actor *models.JWTClaims) ([]byte, error) {
	f.lastFilter = filter
	return f.csv, nil
}

func (f *fakeEvaluationSrv) CheckCompliance(ctx context.Context, req models.ComplianceCheckRequest) (*models.ComplianceCheckResponse, error) {
	return &models.ComplianceCheckResponse{
		Compliant:  false,
		Violations: []models.ComplianceViolation{{SKUCode: "225028", DaysUntilEligible: 266}},
	}, nil
}

func TestEvaluationCheckComplianceReportsOutcomeInMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewEvaluationHandler(&fakeEvaluationSrv{})
	r.POST("/evaluations/compliance-check", middleware.WithResponseMeta(), h.CheckCompliance)

	payload := []byte(`{"account_id":"0b5f0a53-8c55-4a3f-9c1e-2f0f4c1d7a10","items":[{"sku_code":"225028"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/evaluations/compliance-check", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeEnvelope(t, rec)
	assert.Equal(t, false, body.Meta["compliant"])
	assert.Equal(t, float64(1), body.Meta["blocking_violations"])
}

func TestEvaluationListPassesFilterAndCaller(t *testing.T) {
	srv := &fakeEvaluationSrv{}
	h := NewEvaluationHandler(srv)
	caller := &models.JWTClaims{UserID: "sales-1", Role: models.RoleSales}
	c, rec := newTestContext(http.MethodGet, "/evaluations?status=draft&signature_status=sent&page=2&page_size=5", nil, caller)

	h.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.EvaluationStatusDraft, srv.lastFilter.Status)
	assert.Equal(t, models.SignatureStatusSent, srv.lastFilter.SignatureStatus)
	assert.Equal(t, 2, srv.lastFilter.Page)
	assert.Equal(t, 5, srv.lastFilter.PageSize)
	assert.Same(t, caller, srv.lastActor)
	body := decodeEnvelope(t, rec)
	require.NotNil(t, body.Pagination)
	assert.Equal(t, 1, body.Pagination.TotalCount)
}

func TestEvaluationListRequiresClaims(t *testing.T) {
	h := NewEvaluationHandler(&fakeEvaluationSrv{})
	c, rec := newTestContext(http.MethodGet, "/evaluations", nil, nil)

	h.List(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEvaluationCreateSurfacesComplianceViolation(t *testing.T) {
	violations := []models.ComplianceViolation{{
		SKUCode:           "225028",
		ProductName:       "Infusion Pump",
		DaysUntilEligible: 120,
		EvaluationNumber:  "EV-20260301-AAAAAA",
	}}
	srv := &fakeEvaluationSrv{createErr: appErrors.WithDetails(appErrors.ErrComplianceViolation, violations)}
	h := NewEvaluationHandler(srv)
	payload := []byte(`{"account_id":"0b5f0a53-8c55-4a3f-9c1e-2f0f4c1d7a10","line_items":[{"sku_code":"225028","quantity":1}]}`)
	c, rec := newTestContext(http.MethodPost, "/evaluations", payload, &models.JWTClaims{UserID: "sales-1", Role: models.RoleSales})

	h.Create(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeEnvelope(t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, appErrors.ErrComplianceViolation.Code, body.Error.Code)
	details, ok := body.Error.Details.([]interface{})
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "225028", details[0].(map[string]interface{})["sku_code"])
}

func TestEvaluationCreateRejectsMalformedJSON(t *testing.T) {
	h := NewEvaluationHandler(&fakeEvaluationSrv{})
	c, rec := newTestContext(http.MethodPost, "/evaluations", []byte(`{"account_id":`), &models.JWTClaims{UserID: "sales-1"})

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluationExportCSVSetsDownloadHeaders(t *testing.T) {
	srv := &fakeEvaluationSrv{csv: []byte("\"Evaluation Number\"\n")}
	h := NewEvaluationHandler(srv)
	h.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	c, rec := newTestContext(http.MethodGet, "/evaluations/export.csv?account_id=acc-1", nil, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	h.ExportCSV(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="evaluations-2026-10-15.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "acc-1", srv.lastFilter.AccountID)
	assert.Equal(t, "\"Evaluation Number\"\n", rec.Body.String())
}

type fakeSignatureSrv struct {
	lastOrigin string
	lastToken  string
	submitErr  error
}

func (f *fakeSignatureSrv) RequestSignature(ctx context.Context, evaluationID, origin string, actor *models.JWTClaims, meta models.LoginRequest) (*models.SignatureRequestResult, error) {
	f.lastOrigin = origin
	return &models.SignatureRequestResult{EvaluationID: evaluationID, Status: models.SignatureStatusSent, SentTo: "buyer@example.com"}, nil
}

func (f *fakeSignatureSrv) ResendSignatureRequest(ctx context.Context, evaluationID, origin string, actor *models.JWTClaims, meta models.LoginRequest) (*models.SignatureRequestResult, error) {
	return f.RequestSignature(ctx, evaluationID, origin, actor, meta)
}

func (f *fakeSignatureSrv) LookupByToken(ctx context.Context, token string) (*models.PublicEvaluation, error) {
	f.lastToken = token
	if token != "known" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "signing link is invalid")
	}
	return &models.PublicEvaluation{EvaluationNumber: "EV-20261015-ABC123", SignatureStatus: models.SignatureStatusSent}, nil
}

func (f *fakeSignatureSrv) SubmitSignature(ctx context.Context, token string, submission models.SignatureSubmission) (*models.SignatureReceipt, error) {
	f.lastToken = token
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &models.SignatureReceipt{EvaluationNumber: "EV-20261015-ABC123", SignatureStatus: models.SignatureStatusSigned}, nil
}

func TestSignatureRequestForwardsOrigin(t *testing.T) {
	srv := &fakeSignatureSrv{}
	h := NewSignatureHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/evaluations/ev-1/signature-request", nil, &models.JWTClaims{UserID: "sales-1"})
	c.Params = gin.Params{{Key: "id", Value: "ev-1"}}
	c.Request.Header.Set("Origin", "https://app.example.com")

	h.Request(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", srv.lastOrigin)
}

func TestSignatureLookupUnknownToken(t *testing.T) {
	h := NewSignatureHandler(&fakeSignatureSrv{})
	c, rec := newTestContext(http.MethodGet, "/public/signatures/nope", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "nope"}}

	h.Lookup(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignatureSubmitAfterSigningIsNotFound(t *testing.T) {
	srv := &fakeSignatureSrv{submitErr: appErrors.Clone(appErrors.ErrNotFound, "signature request not found")}
	h := NewSignatureHandler(srv)
	payload := []byte(`{"signed_by_name":"Pat Lee","signed_by_email":"pat@example.com","signed_by_title":"Director","customer_po_number":"PO-1","signature_data_url":"data:image/png;base64,AAAA"}`)
	c, rec := newTestContext(http.MethodPost, "/public/signatures/known", payload, nil)
	c.Params = gin.Params{{Key: "token", Value: "known"}}

	h.Submit(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "known", srv.lastToken)
	body := decodeEnvelope(t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, appErrors.ErrNotFound.Code, body.Error.Code)
}

func TestSignatureSubmitRejectsOversizedBody(t *testing.T) {
	srv := &fakeSignatureSrv{}
	h := NewSignatureHandler(srv)
	payload := []byte(`{"signed_by_name":"Pat Lee","signature_data_url":"data:image/png;base64,` + strings.Repeat("A", maxSignatureBodyBytes) + `"}`)
	c, rec := newTestContext(http.MethodPost, "/public/signatures/known", payload, nil)
	c.Params = gin.Params{{Key: "token", Value: "known"}}

	h.Submit(c)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, srv.lastToken)
}
