package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestRouter(claims *models.JWTClaims, audit *auditStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	protected := r.Group("/", JWT(validatorStub{claims: claims}))
	protected.GET("/me", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	protected.POST("/admin/:id", RequireRoles(models.RoleAdmin), Audit(audit, nil, "ACTION", "things"), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	protected.GET("/users/:id", RBAC(string(models.RoleAdmin), "SELF"), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresBearerToken(t *testing.T) {
	r := newTestRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleSales}, &auditStub{})

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "bad").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/me", "good").Code)
}

func TestRBACAndAudit(t *testing.T) {
	audit := &auditStub{}
	sales := newTestRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleSales}, audit)
	assert.Equal(t, http.StatusForbidden, serve(sales, http.MethodPost, "/admin/x1", "good").Code)
	assert.Empty(t, audit.logs)

	assert.Equal(t, http.StatusOK, serve(sales, http.MethodGet, "/users/u1", "good").Code)
	assert.Equal(t, http.StatusForbidden, serve(sales, http.MethodGet, "/users/u2", "good").Code)

	admin := newTestRouter(&models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}, audit)
	assert.Equal(t, http.StatusCreated, serve(admin, http.MethodPost, "/admin/x1", "good").Code)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "ACTION", audit.logs[0].Action)
	assert.Equal(t, "x1", *audit.logs[0].ResourceID)
	assert.Equal(t, "a1", *audit.logs[0].UserID)
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var meta map[string]interface{}
	r.GET("/skus", WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodGet, "/skus", "")
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, processingKey)
}

func TestResponseMetaRecordsComplianceOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var meta, empty map[string]interface{}
	r.POST("/check", WithResponseMeta(), func(c *gin.Context) {
		empty = ExtractMeta(c)
		SetComplianceOutcome(c, &models.ComplianceCheckResponse{
			Compliant: false,
			Violations: []models.ComplianceViolation{
				{SKUCode: "225028", DaysUntilEligible: 120},
				{SKUCode: "301", DaysUntilEligible: 0},
			},
		})
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodPost, "/check", "")
	assert.Nil(t, empty)
	assert.Equal(t, false, meta[compliantKey])
	assert.Equal(t, 1, meta[blockingCountKey])
}
