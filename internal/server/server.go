package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	chargebackdomain "github.com/smallbiznis/creatorpay/internal/chargeback/domain"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	feeschedulesvc "github.com/smallbiznis/creatorpay/internal/feeschedule/service"
	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	"github.com/smallbiznis/creatorpay/internal/observability"
	obslogger "github.com/smallbiznis/creatorpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creatorpay/internal/observability/tracing"
	"github.com/smallbiznis/creatorpay/internal/outbox"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
	transactiondomain "github.com/smallbiznis/creatorpay/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
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

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	finance        *config.FinanceConfigHolder
	clock          clock.Clock
	log            *zap.Logger
	transactionSvc transactiondomain.Service
	chargebackSvc  chargebackdomain.Service
	payoutSvc      payoutdomain.Service
	ledgerSvc      ledgerdomain.Service
	scheduleSvc    *feeschedulesvc.Service
	processor      *outbox.Processor
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Finance        *config.FinanceConfigHolder
	Clock          clock.Clock
	Log            *zap.Logger
	TransactionSvc transactiondomain.Service
	ChargebackSvc  chargebackdomain.Service
	PayoutSvc      payoutdomain.Service
	LedgerSvc      ledgerdomain.Service
	ScheduleSvc    *feeschedulesvc.Service
	Processor      *outbox.Processor
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		finance:        p.Finance,
		clock:          p.Clock,
		log:            p.Log.Named("http.server"),
		transactionSvc: p.TransactionSvc,
		chargebackSvc:  p.ChargebackSvc,
		payoutSvc:      p.PayoutSvc,
		ledgerSvc:      p.LedgerSvc,
		scheduleSvc:    p.ScheduleSvc,
		processor:      p.Processor,
	}

	svc.registerIngestRoutes()
	svc.registerCreatorRoutes()
	svc.registerPayoutRoutes()
	svc.registerChargebackRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerIngestRoutes exposes the calls made by the payment-provider
// adapters once they have verified an inbound webhook.
func (s *Server) registerIngestRoutes() {
	internal := s.engine.Group("/internal")

	internal.POST("/payments", s.CreateTransaction)
	internal.POST("/chargebacks", s.CreateChargeback)
	internal.POST("/transactions/:id/refund", s.RefundTransaction)
}

func (s *Server) registerCreatorRoutes() {
	creators := s.engine.Group("/creators/:creator_id")

	creators.GET("/balance", s.GetCreatorBalance)
	creators.GET("/eligibility", s.GetPayoutEligibility)
	creators.GET("/transactions", s.ListCreatorTransactions)
	creators.GET("/stats", s.GetCreatorStats)
}

func (s *Server) registerPayoutRoutes() {
	payouts := s.engine.Group("/payouts")

	payouts.GET("", s.ListPayouts)
	payouts.GET("/:id", s.GetPayout)
	payouts.GET("/:id/statement.pdf", s.GetPayoutStatement)
	payouts.POST("/:id/sent", s.MarkPayoutSent)
	payouts.POST("/:id/failed", s.MarkPayoutFailed)
}

func (s *Server) registerChargebackRoutes() {
	chargebacks := s.engine.Group("/chargebacks")

	chargebacks.GET("", s.ListChargebacks)
	chargebacks.GET("/:id", s.GetChargeback)
	chargebacks.POST("/:id/won", s.ResolveChargebackWon)
	chargebacks.POST("/:id/lost", s.ResolveChargebackLost)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/payouts/run", s.RunPayouts)
	admin.GET("/payouts/pending-retry", s.ListPendingRetryPayouts)

	admin.GET("/outbox/stats", s.GetOutboxStats)
	admin.POST("/outbox/retry", s.RetryOutbox)
	admin.POST("/outbox/cleanup", s.CleanupOutbox)

	admin.GET("/fee-schedules", s.ListFeeSchedules)
	admin.POST("/fee-schedules", s.CreateFeeSchedule)
	admin.PUT("/creators/:creator_id/tier", s.SetCreatorTier)

	admin.GET("/ledger/accounts", s.ListLedgerAccounts)
	admin.GET("/transactions/:id/ledger-check", s.VerifyTransactionLedger)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
