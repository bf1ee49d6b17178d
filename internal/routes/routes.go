package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"invoice-integrity-backend/internal/config"
	handler "invoice-integrity-backend/internal/handlers"
	"invoice-integrity-backend/internal/ledger"
	"invoice-integrity-backend/internal/notify"
	"invoice-integrity-backend/internal/repository"
	"invoice-integrity-backend/internal/services/integrity"
	"invoice-integrity-backend/internal/services/invoicerequest"
	"invoice-integrity-backend/internal/services/sweep"
)

// Services bundles the wired application services so main can also
// hand the sweep job to a background goroutine.
type Services struct {
	Integrity *integrity.Service
	Requests  *invoicerequest.Service
	Sweep     *sweep.Job
}

// RegisterRoutes wires repositories, services, and handlers onto the
// gin engine and returns the service bundle.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config, ledgerClient ledger.Client, logger *zap.Logger) *Services {
	invoiceRepo := repository.NewInvoiceRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	packageRepo := repository.NewPackageRepository(db)

	notifier := notify.NewAsync(notify.NewSMTPNotifier(cfg.Email), logger)

	integritySvc := integrity.NewService(
		invoiceRepo,
		snapshotRepo,
		auditRepo,
		ledgerClient,
		notifier,
		cfg.Email.AdminEmail,
		logger,
	)

	requestSvc := invoicerequest.NewService(
		customerRepo,
		packageRepo,
		integritySvc,
		invoicerequest.NewTokenCodec(cfg.Token),
		notifier,
		cfg.App.FrontendBaseURL,
		logger,
	)

	sweepJob := sweep.NewJob(
		invoiceRepo,
		auditRepo,
		integritySvc,
		cfg.Sweep.Interval,
		cfg.Sweep.Workers,
		logger,
	)

	invoiceHandler := handler.NewInvoiceHandler(integritySvc, requestSvc, sweepJob)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	invoices := api.Group("/invoices")
	{
		invoices.POST("/request", invoiceHandler.RequestInvoice)
		invoices.POST("/confirm", invoiceHandler.ConfirmInvoice)
		invoices.GET("/:id/verify", invoiceHandler.VerifyInvoice)
		invoices.POST("/:id/restore", invoiceHandler.RestoreInvoice)
		invoices.POST("/:id/report", invoiceHandler.ReportInvoice)
	}

	api.POST("/sweep/run", invoiceHandler.RunSweep)

	return &Services{
		Integrity: integritySvc,
		Requests:  requestSvc,
		Sweep:     sweepJob,
	}
}
