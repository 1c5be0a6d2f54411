package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fleetops/tollsync/internal/config"
	"github.com/fleetops/tollsync/internal/dashboard"
	dashboarddomain "github.com/fleetops/tollsync/internal/dashboard/domain"
	"github.com/fleetops/tollsync/internal/invoicing"
	"github.com/fleetops/tollsync/internal/observability"
	obsmiddleware "github.com/fleetops/tollsync/internal/observability/logger"
	obsmetrics "github.com/fleetops/tollsync/internal/observability/metrics"
	obstracing "github.com/fleetops/tollsync/internal/observability/tracing"
	"github.com/fleetops/tollsync/internal/reconcile"
	reconciledomain "github.com/fleetops/tollsync/internal/reconcile/domain"
	"github.com/fleetops/tollsync/internal/tollimport"
	tollimportdomain "github.com/fleetops/tollsync/internal/tollimport/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	invoicing.Module,
	tollimport.Module,
	reconcile.Module,
	dashboard.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
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
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	importSvc    tollimportdomain.Service
	reconcileSvc reconciledomain.Service
	dashboardSvc dashboarddomain.Service
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	GenID *snowflake.Node

	ImportSvc    tollimportdomain.Service
	ReconcileSvc reconciledomain.Service
	DashboardSvc dashboarddomain.Service
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		genID:  p.GenID,

		importSvc:    p.ImportSvc,
		reconcileSvc: p.ReconcileSvc,
		dashboardSvc: p.DashboardSvc,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/toll")

	api.POST("/import", s.ImportRows)
	api.POST("/import/file", s.ImportFile)
	api.POST("/reconcile", s.Reconcile)
	api.POST("/apply", s.Apply)
	api.POST("/unapply", s.Unapply)
	api.DELETE("/records", s.DeleteRecords)
	api.GET("/dashboard", s.Dashboard)
}
