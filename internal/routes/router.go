package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/school-site-api/internal/handler"
	"github.com/noah-isme/school-site-api/internal/middleware"
	"github.com/noah-isme/school-site-api/internal/models"
)

// Handlers groups the HTTP handlers mounted by Setup.
type Handlers struct {
	Results   *handler.ResultHandler
	Exports   *handler.ExportHandler
	Inquiries *handler.InquiryHandler
	Auth      *handler.AuthHandler
	Metrics   *handler.MetricsHandler
}

// Options controls route registration.
type Options struct {
	APIPrefix string
	Validator middleware.TokenValidator
	Logger    *zap.Logger
}

// Setup registers ops endpoints at the root and the API under opts.APIPrefix.
func Setup(r *gin.Engine, h Handlers, opts Options) {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(opts.APIPrefix)
	api.Use(middleware.WithResponseMeta())
	registerPublic(api, h)

	admin := api.Group("")
	admin.Use(middleware.AdminJWT(opts.Validator))
	registerAdmin(admin, h, opts.Logger)
}

func registerPublic(api *gin.RouterGroup, h Handlers) {
	api.GET("/results/lookup", h.Results.Lookup)
	api.GET("/results/template", h.Exports.Template)
	api.GET("/results/exports/:token", h.Exports.Download)
	api.POST("/contact", h.Inquiries.SubmitContact)
	api.POST("/admission", h.Inquiries.SubmitAdmission)
	api.POST("/admin/login", h.Auth.Login)
}

func registerAdmin(admin *gin.RouterGroup, h Handlers, logger *zap.Logger) {
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(logger, action, resource)
	}

	admin.GET("/admin/session", h.Auth.Session)
	admin.GET("/admin/metrics", h.Metrics.Snapshot)

	results := admin.Group("/results")
	{
		results.GET("", h.Results.List)
		results.GET("/students", h.Results.Students)
		results.POST("", audit("create", "result"), h.Results.Create)
		results.POST("/upload", audit("upload", "result"), h.Results.Upload)
		results.POST("/exports", audit("export", "result"), h.Exports.Create)
		results.GET("/:id", h.Results.Get)
		results.PUT("/:id", audit("update", "result"), h.Results.Update)
		results.PATCH("/:id", audit("update", "result"), h.Results.Update)
		results.DELETE("/:id", audit("delete", "result"), h.Results.Delete)
	}

	contact := admin.Group("/contact")
	{
		contact.GET("", h.Inquiries.ListContacts)
		contact.DELETE("/:id", audit("delete", "contact"), h.Inquiries.Delete(models.InquiryContact))
		contact.PATCH("/:id/status", audit("update_status", "contact"), h.Inquiries.UpdateStatus(models.InquiryContact))
	}

	admission := admin.Group("/admission")
	{
		admission.GET("", h.Inquiries.ListAdmissions)
		admission.DELETE("/:id", audit("delete", "admission"), h.Inquiries.Delete(models.InquiryAdmission))
		admission.PATCH("/:id/status", audit("update_status", "admission"), h.Inquiries.UpdateStatus(models.InquiryAdmission))
	}
}
