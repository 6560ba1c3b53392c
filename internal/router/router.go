package router

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/internal/handler"
	"github.com/noah-isme/batch-enrollment-api/internal/middleware"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/service"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth        middleware.TokenValidator
	Catalog     *handler.CatalogHandler
	Enrollments *handler.EnrollmentHandler
	// Dashboard is nil when the dashboard is disabled.
	Dashboard *handler.DashboardHandler
	Metrics   *handler.MetricsHandler
}

// Register mounts probes at the engine root and the JWT-protected API under prefix.
func Register(r *gin.Engine, prefix string, h Handlers, metrics *service.MetricsService) {
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	admins := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
	students := middleware.RequireRoles(models.RoleStudent, models.RoleAdmin, models.RoleSuperAdmin)

	api := r.Group(prefix)
	api.Use(middleware.JWT(h.Auth))

	api.GET("/courses", h.Catalog.ListCourses)
	api.GET("/courses/:id", h.Catalog.GetCourse)
	api.GET("/batches", h.Catalog.ListBatches)
	api.GET("/batches/:id", h.Catalog.GetBatch)

	enrollments := api.Group("/enrollments")
	enrollments.GET("", h.Enrollments.List)
	enrollments.GET("/policy", h.Enrollments.Policy)
	enrollments.GET("/overdue", admins, h.Enrollments.Overdue)
	enrollments.GET("/export", admins, h.Enrollments.Export)
	enrollments.POST("", students, h.Enrollments.Create)
	enrollments.POST("/verify-payment", admins, h.Enrollments.VerifyPayment)
	enrollments.GET("/:id", h.Enrollments.Get)
	enrollments.POST("/:id/payment-proof", students, h.Enrollments.SubmitPaymentProof)
	enrollments.POST("/:id/cancel", students, h.Enrollments.Cancel)
	enrollments.POST("/:id/drop", students, h.Enrollments.Drop)

	if h.Dashboard != nil {
		dashboard := api.Group("/dashboard", admins)
		dashboard.GET("/enrollments", h.Dashboard.Summary)
		dashboard.POST("/enrollments/reconcile", h.Dashboard.Reconcile)
	}

	api.GET("/system/metrics", admins, h.Metrics.Snapshot)
}
