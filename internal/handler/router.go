package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/middleware"
	"github.com/noah-isme/sales-eval-api/internal/models"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Accounts    *AccountHandler
	SKUs        *SKUHandler
	Evaluations *EvaluationHandler
	Signatures  *SignatureHandler
	Feed        *FeedHandler
	Uploads     *UploadHandler
	Metrics     *MetricsHandler
}

// RouteDeps carries the middleware collaborators shared by the route groups.
type RouteDeps struct {
	Prefix string
	Tokens middleware.TokenValidator
	Audit  middleware.AuditWriter
	Logger *zap.Logger
}

// RegisterRoutes mounts the public, authenticated and admin route groups on r.
func RegisterRoutes(r *gin.Engine, h Handlers, deps RouteDeps) {
	admin := string(models.RoleAdmin)
	sales := string(models.RoleSales)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.Audit, deps.Logger, action, resource)
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(deps.Prefix)
	api.Use(middleware.WithResponseMeta())

	authGroup := api.Group("/auth")
	authGroup.POST("/login", h.Auth.Login)
	authGroup.POST("/refresh", h.Auth.Refresh)

	public := api.Group("/public")
	public.GET("/signatures/:token", h.Signatures.Lookup)
	public.POST("/signatures/:token", h.Signatures.Submit)
	api.GET("/files/:token", h.Uploads.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Tokens))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.GET("/auth/me", h.Auth.Me)

	users := secured.Group("/users")
	users.GET("", middleware.RBAC(admin), h.Users.List)
	users.POST("", middleware.RBAC(admin), h.Users.Create)
	users.GET("/:id", middleware.RBAC(admin, "SELF"), h.Users.Get)
	users.PUT("/:id", middleware.RBAC(admin), h.Users.Update)
	users.DELETE("/:id", middleware.RBAC(admin), h.Users.Delete)

	accounts := secured.Group("/accounts")
	accounts.GET("", h.Accounts.List)
	accounts.POST("", h.Accounts.Create)
	accounts.POST("/bulk", middleware.RBAC(admin), audit(models.AuditActionAccountImport, "accounts"), h.Accounts.BulkImport)
	accounts.POST("/deduplicate", middleware.RBAC(admin), h.Accounts.Deduplicate)
	accounts.POST("/recover-orphans", middleware.RBAC(admin), h.Accounts.RecoverOrphans)
	accounts.GET("/:id", h.Accounts.Get)
	accounts.PUT("/:id", h.Accounts.Update)
	accounts.DELETE("/:id", middleware.RBAC(admin), h.Accounts.Delete)

	skus := secured.Group("/skus")
	skus.GET("", h.SKUs.List)
	skus.GET("/:id", h.SKUs.Get)
	skus.POST("", middleware.RBAC(admin), h.SKUs.Create)
	skus.POST("/bulk", middleware.RBAC(admin), audit(models.AuditActionSKUImport, "skus"), h.SKUs.BulkCreate)
	skus.PUT("/:id", middleware.RBAC(admin), h.SKUs.Update)
	skus.DELETE("/:id", middleware.RBAC(admin), h.SKUs.Delete)

	evaluations := secured.Group("/evaluations")
	evaluations.Use(middleware.RBAC(admin, sales))
	evaluations.GET("", h.Evaluations.List)
	evaluations.POST("", h.Evaluations.Create)
	evaluations.POST("/compliance-check", h.Evaluations.CheckCompliance)
	evaluations.GET("/export.csv", h.Evaluations.ExportCSV)
	evaluations.GET("/export.pdf", h.Evaluations.ExportPDF)
	evaluations.GET("/:id", h.Evaluations.Get)
	evaluations.PUT("/:id", h.Evaluations.Update)
	evaluations.DELETE("/:id", middleware.RBAC(admin), h.Evaluations.Delete)
	evaluations.PATCH("/:id/status", h.Evaluations.UpdateStatus)
	evaluations.GET("/:id/agreement.pdf", h.Evaluations.Agreement)
	evaluations.POST("/:id/signature-request", h.Signatures.Request)
	evaluations.POST("/:id/signature-request/resend", h.Signatures.Resend)

	announcements := secured.Group("/announcements")
	announcements.GET("", h.Feed.ActiveAnnouncements)
	announcements.GET("/all", middleware.RBAC(admin), h.Feed.AllAnnouncements)
	announcements.POST("", middleware.RBAC(admin), h.Feed.CreateAnnouncement)
	announcements.GET("/:id", h.Feed.GetAnnouncement)
	announcements.PUT("/:id", middleware.RBAC(admin), h.Feed.UpdateAnnouncement)
	announcements.DELETE("/:id", middleware.RBAC(admin), audit(models.AuditActionAnnouncementDelete, "announcements"), h.Feed.DeleteAnnouncement)
	announcements.POST("/:id/dismiss", h.Feed.DismissAnnouncement)

	posts := secured.Group("/posts")
	posts.GET("", h.Feed.ListPosts)
	posts.POST("", h.Feed.CreatePost)
	posts.PUT("/:id", h.Feed.UpdatePost)
	posts.DELETE("/:id", h.Feed.DeletePost)

	secured.POST("/uploads", h.Uploads.Upload)
	secured.POST("/extractions", h.Uploads.Extract)

	secured.GET("/admin/system/metrics", middleware.RBAC(admin), h.Metrics.System)
}
