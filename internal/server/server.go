// Package server wires the REST API: invoices and their ledger, recurring
// patterns, reminders, late fees, clients, projects and the dashboard
// overview.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	clientdomain "github.com/atelierhq/atelier/internal/client/domain"
	"github.com/atelierhq/atelier/internal/config"
	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
	"github.com/atelierhq/atelier/internal/latefee"
	obsmetrics "github.com/atelierhq/atelier/internal/observability/metrics"
	overviewdomain "github.com/atelierhq/atelier/internal/overview/domain"
	projectdomain "github.com/atelierhq/atelier/internal/project/domain"
	"github.com/atelierhq/atelier/internal/providers/pdf"
	recurringdomain "github.com/atelierhq/atelier/internal/recurring/domain"
	reminderdomain "github.com/atelierhq/atelier/internal/reminder/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Named("http")))
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, log, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	invoiceSvc   invoicedomain.Service
	reminderSvc  reminderdomain.Service
	recurringSvc recurringdomain.Service
	lateFeeSvc   latefee.Service
	clientSvc    clientdomain.Service
	projectSvc   projectdomain.Service
	overviewSvc  overviewdomain.Service
	pdfProvider  pdf.Provider
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	InvoiceSvc   invoicedomain.Service
	ReminderSvc  reminderdomain.Service
	RecurringSvc recurringdomain.Service
	LateFeeSvc   latefee.Service
	ClientSvc    clientdomain.Service
	ProjectSvc   projectdomain.Service
	OverviewSvc  overviewdomain.Service
	PDFProvider  pdf.Provider `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		invoiceSvc:   p.InvoiceSvc,
		reminderSvc:  p.ReminderSvc,
		recurringSvc: p.RecurringSvc,
		lateFeeSvc:   p.LateFeeSvc,
		clientSvc:    p.ClientSvc,
		projectSvc:   p.ProjectSvc,
		overviewSvc:  p.OverviewSvc,
		pdfProvider:  p.PDFProvider,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.AuthRequired())

	// -------- Invoices --------
	api.POST("/invoices", s.CreateInvoice)
	api.POST("/invoices/deposit", s.CreateDepositInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.POST("/invoices/check-overdue", s.CheckOverdueInvoices)
	api.POST("/invoices/process-late-fees", s.ProcessLateFees)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PUT("/invoices/:id", s.UpdateInvoice)
	api.DELETE("/invoices/:id", s.DeleteInvoice)
	api.PUT("/invoices/:id/status", s.TransitionInvoiceStatus)
	api.GET("/invoices/:id/pdf", s.RenderInvoicePDF)

	// -------- Ledger --------
	api.POST("/invoices/:id/record-payment", s.RecordPayment)
	api.GET("/invoices/:id/payments", s.ListPayments)
	api.POST("/invoices/:id/apply-credit", s.ApplyCredit)
	api.GET("/invoices/:id/deposit-balance", s.GetDepositBalance)

	// -------- Late fees --------
	api.GET("/invoices/:id/late-fee", s.CalculateLateFee)
	api.POST("/invoices/:id/apply-late-fee", s.ApplyLateFee)

	// -------- Recurring / scheduled --------
	api.POST("/invoices/recurring", s.CreateRecurringPattern)
	api.GET("/invoices/recurring", s.ListRecurringPatterns)
	api.POST("/invoices/recurring/:id/pause", s.PauseRecurringPattern)
	api.POST("/invoices/recurring/:id/resume", s.ResumeRecurringPattern)
	api.DELETE("/invoices/recurring/:id", s.DeleteRecurringPattern)
	api.POST("/invoices/schedule", s.ScheduleInvoice)
	api.GET("/invoices/schedule", s.ListScheduledInvoices)
	api.POST("/invoices/schedule/:id/cancel", s.CancelScheduledInvoice)

	// -------- Reminders --------
	api.GET("/invoices/:id/reminders", s.ListInvoiceReminders)
	api.POST("/reminders/:id/skip", s.SkipReminder)
	api.POST("/reminders/dispatch", s.DispatchReminders)

	// -------- Clients --------
	api.POST("/clients", s.CreateClient)
	api.GET("/clients", s.ListClients)
	api.GET("/clients/:id", s.GetClientByID)
	api.PUT("/clients/:id", s.UpdateClient)
	api.DELETE("/clients/:id", s.DeleteClient)

	// -------- Projects --------
	api.POST("/projects", s.CreateProject)
	api.GET("/projects", s.ListProjects)
	api.GET("/projects/:id", s.GetProjectByID)
	api.PUT("/projects/:id", s.UpdateProject)
	api.DELETE("/projects/:id", s.DeleteProject)

	// -------- Overview --------
	api.GET("/overview", s.GetOverview)
}
