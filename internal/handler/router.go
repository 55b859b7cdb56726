package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/arabesque/studio-api/internal/middleware"
	"github.com/arabesque/studio-api/internal/models"
	"github.com/arabesque/studio-api/internal/repository"
	"github.com/arabesque/studio-api/internal/service"
)

// Handlers bundles every HTTP handler for route registration.
type Handlers struct {
	Auth       *AuthHandler
	User       *UserHandler
	Person     *PersonHandler
	Account    *AccountHandler
	Catalog    *CatalogHandler
	Term       *TermHandler
	Class      *ClassHandler
	Evaluation *EvaluationHandler
	Enrollment *EnrollmentHandler
	Attendance *AttendanceHandler
	Invoice    *InvoiceHandler
	Export     *ExportHandler
	Metrics    *MetricsHandler
}

// RegisterRoutes mounts all endpoints under the API prefix. Staff-facing
// writes require back-office roles; parents get read access plus the
// self-service enrollment actions.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, authService *service.AuthService, auditRepo *repository.UserRepository) {
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	teaching := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleTeacher)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleTeacher, models.RoleParent)
	selfService := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleParent)
	admin := middleware.RequireRoles(models.RoleAdmin)

	api := r.Group(prefix)

	auth := api.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/forgot-password", h.Auth.ForgotPassword)
	auth.POST("/reset-password", h.Auth.ResetPassword)

	// Prospective families browse the catalog without an account; a valid
	// token still attaches claims for request logging.
	public := api.Group("/catalog", middleware.OptionalJWT(authService))
	public.GET("/genres", h.Catalog.ListGenres)
	public.GET("/classes", h.Class.List)

	secured := api.Group("")
	secured.Use(middleware.JWT(authService))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.GET("/auth/me", h.Auth.Me)
	secured.POST("/auth/change-password", h.Auth.ChangePassword)

	users := secured.Group("/users")
	users.GET("", admin, h.User.List)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), h.User.Get)
	users.POST("", admin, h.User.Create)
	users.PUT("/:id", admin, h.User.Update)
	users.DELETE("/:id", admin, h.User.Delete)

	people := secured.Group("/people")
	people.GET("", staff, h.Person.List)
	people.GET("/:id", anyRole, h.Person.Get)
	people.POST("", staff, h.Person.Create)
	people.PUT("/:id", staff, h.Person.Update)
	people.DELETE("/:id", staff, h.Person.Deactivate)
	people.POST("/:id/roles", staff, h.Person.AttachRole)

	accounts := secured.Group("/accounts")
	accounts.GET("", staff, h.Account.List)
	accounts.GET("/:id", anyRole, h.Account.Get)
	accounts.POST("", staff, h.Account.Compose)
	accounts.PUT("/:id/roles", staff, h.Account.SwapRole)
	accounts.POST("/:id/suspend", staff, h.Account.Suspend)
	accounts.POST("/:id/reactivate", staff, h.Account.Reactivate)
	accounts.POST("/:id/close", staff, middleware.Audit(auditRepo, models.AuditActionAccountClose, "accounts"), h.Account.Close)

	genres := secured.Group("/genres")
	genres.GET("", anyRole, h.Catalog.ListGenres)
	genres.GET("/:id", anyRole, h.Catalog.GetGenre)
	genres.POST("", staff, h.Catalog.CreateGenre)
	genres.PUT("/:id", staff, h.Catalog.UpdateGenre)
	genres.DELETE("/:id", staff, h.Catalog.DeactivateGenre)

	classTypes := secured.Group("/class-types")
	classTypes.GET("", anyRole, h.Catalog.ListClassTypes)
	classTypes.GET("/:id", anyRole, h.Catalog.GetClassType)
	classTypes.POST("", staff, h.Catalog.CreateClassType)
	classTypes.PUT("/:id", staff, h.Catalog.UpdateClassType)

	terms := secured.Group("/terms")
	terms.GET("", anyRole, h.Term.List)
	terms.GET("/active", anyRole, h.Term.GetActive)
	terms.GET("/:id", anyRole, h.Term.Get)
	terms.POST("", staff, h.Term.Create)
	terms.PUT("/:id", staff, h.Term.Update)
	terms.POST("/set-active", staff, h.Term.SetActive)
	terms.DELETE("/:id", staff, h.Term.Delete)

	classes := secured.Group("/classes")
	classes.GET("", anyRole, h.Class.List)
	classes.GET("/:id", anyRole, h.Class.Get)
	classes.POST("", staff, h.Class.Create)
	classes.PUT("/:id", staff, h.Class.Update)
	classes.POST("/:id/cancel", staff, h.Class.Cancel)
	classes.DELETE("/:id", staff, h.Class.Delete)
	classes.GET("/:id/attendance", teaching, h.Attendance.Sheet)

	evaluations := secured.Group("/evaluations")
	evaluations.GET("", teaching, h.Evaluation.List)
	evaluations.GET("/:id", teaching, h.Evaluation.Get)
	evaluations.POST("", teaching, middleware.Audit(auditRepo, models.AuditActionEvaluationRecord, "evaluations"), h.Evaluation.Record)
	evaluations.POST("/sweep", admin, h.Evaluation.SweepExpired)

	students := secured.Group("/students")
	students.GET("/:studentId/evaluations", anyRole, h.Evaluation.History)
	students.GET("/:studentId/eligibility", anyRole, h.Evaluation.Eligibility)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("", anyRole, h.Enrollment.List)
	enrollments.GET("/:id", anyRole, h.Enrollment.Get)
	enrollments.POST("", selfService, middleware.Audit(auditRepo, models.AuditActionEnrollmentRequest, "enrollments"), h.Enrollment.Request)
	enrollments.PUT("/:id/status", staff, middleware.Audit(auditRepo, models.AuditActionEnrollmentAdvance, "enrollments"), h.Enrollment.Advance)
	enrollments.POST("/:id/withdraw", selfService, middleware.Audit(auditRepo, models.AuditActionEnrollmentWithdraw, "enrollments"), h.Enrollment.Withdraw)
	enrollments.GET("/:id/attendance", anyRole, h.Attendance.Summary)

	attendance := secured.Group("/attendance")
	attendance.GET("", teaching, h.Attendance.List)
	attendance.POST("", teaching, middleware.Audit(auditRepo, models.AuditActionAttendanceMark, "attendance"), h.Attendance.Mark)

	invoices := secured.Group("/invoices")
	invoices.GET("", selfService, h.Invoice.List)
	invoices.GET("/:id", selfService, h.Invoice.Get)
	invoices.POST("", staff, h.Invoice.Generate)
	invoices.POST("/:id/send", staff, h.Invoice.Send)
	invoices.POST("/:id/cancel", staff, h.Invoice.Cancel)
	invoices.GET("/:id/payments", selfService, h.Invoice.Payments)
	invoices.POST("/:id/payments", staff, h.Invoice.RecordPayment)
	invoices.POST("/sweep-overdue", admin, h.Invoice.SweepOverdue)

	exports := secured.Group("/exports", teaching)
	exports.GET("/classes/:id/roster", h.Export.ClassRoster)
	exports.GET("/classes/:id/attendance", h.Export.AttendanceSheet)
	exports.GET("/invoices/:id", h.Export.Invoice)
}
