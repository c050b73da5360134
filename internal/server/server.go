package server

import (
	"context"
	"net/http"
	"time"

	auditdomain "github.com/UrrutyLabs/encuentraya-payments/internal/audit/domain"
	"github.com/UrrutyLabs/encuentraya-payments/internal/config"
	paymentdomain "github.com/UrrutyLabs/encuentraya-payments/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	genID      *snowflake.Node
	paymentSvc paymentdomain.PaymentService
	webhookSvc paymentdomain.Service
	auditSvc   auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	GenID      *snowflake.Node
	PaymentSvc paymentdomain.PaymentService
	WebhookSvc paymentdomain.Service
	AuditSvc   auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		genID:      p.GenID,
		paymentSvc: p.PaymentSvc,
		webhookSvc: p.WebhookSvc,
		auditSvc:   p.AuditSvc,
	}

	svc.registerPaymentRoutes()
	svc.registerWebhookRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	v1 := s.engine.Group("/v1", s.ActorRequired())

	v1.POST("/orders/:order_id/preauth", s.CreatePreauth)
}

func (s *Server) registerWebhookRoutes() {
	// No actor: webhook authenticity is the adapter's signature check.
	s.engine.POST("/v1/webhooks/payments/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1/admin", s.ActorRequired(), s.RequireRole("admin"))

	admin.GET("/payments", s.ListPayments)
	admin.GET("/payments/:id", s.GetPaymentByID)
	admin.POST("/payments/:id/sync", s.SyncPayment)
	admin.POST("/payments/:id/capture", s.CapturePayment)
	admin.POST("/payments/:id/refund", s.RefundPayment)

	admin.GET("/audit-logs", s.ListAuditLogs)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
