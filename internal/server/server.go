package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/beacon/internal/clock"
	"github.com/smallbiznis/beacon/internal/config"
	"github.com/smallbiznis/beacon/internal/credential"
	credentialdomain "github.com/smallbiznis/beacon/internal/credential/domain"
	"github.com/smallbiznis/beacon/internal/event"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	"github.com/smallbiznis/beacon/internal/metrics"
	"github.com/smallbiznis/beacon/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	credential.Module,
	event.Module,
	ratelimit.Module,
	metrics.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(Clacks())
	r.Use(CORSAny())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": cfg.AppVersion,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	clk      clock.Clock
	credsvc  credentialdomain.Service
	eventsvc eventdomain.Service
	limiter  *ratelimit.TierLimiter
	metrics  *metrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Clk      clock.Clock
	CredSvc  credentialdomain.Service
	EventSvc eventdomain.Service
	Limiter  *ratelimit.TierLimiter `optional:"true"`
	Metrics  *metrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		log:      p.Log.Named("server"),
		clk:      p.Clk,
		credsvc:  p.CredSvc,
		eventsvc: p.EventSvc,
		limiter:  p.Limiter,
		metrics:  p.Metrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/ingest/:org_id/:app_id", s.HMACRequired(), s.IngestRateLimit(), s.Ingest)
}

func registerRoutes(s *Server) {
	s.RegisterRoutes()
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("server listening", zap.String("addr", cfg.Addr))
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
