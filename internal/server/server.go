package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	admindomain "github.com/capgrid/rentd/internal/admin/domain"
	"github.com/capgrid/rentd/internal/authorization"
	capacitydomain "github.com/capgrid/rentd/internal/capacity/domain"
	"github.com/capgrid/rentd/internal/config"
	obscontext "github.com/capgrid/rentd/internal/observability/context"
	"github.com/capgrid/rentd/internal/observability/logger"
	"github.com/capgrid/rentd/internal/observability/metrics"
	oracledomain "github.com/capgrid/rentd/internal/oracle/domain"
	pricingdomain "github.com/capgrid/rentd/internal/pricing/domain"
	rentaldomain "github.com/capgrid/rentd/internal/rental/domain"
	treasurydomain "github.com/capgrid/rentd/internal/treasury/domain"
)

type ServerParam struct {
	fx.In

	Config      config.Config
	Log         *zap.Logger
	DB          *gorm.DB
	Engine      *gin.Engine
	Gateway     rentaldomain.Gateway
	Admin       admindomain.Controller
	Authz       authorization.Service
	Pricing     pricingdomain.Engine
	Oracle      oracledomain.Cache
	Ledger      capacitydomain.Ledger
	Custody     treasurydomain.Custody
	HTTPMetrics *metrics.HTTPMetrics `optional:"true"`
}

type Server struct {
	cfg     config.Config
	log     *zap.Logger
	db      *gorm.DB
	engine  *gin.Engine
	gateway rentaldomain.Gateway
	admin   admindomain.Controller
	authz   authorization.Service
	pricing pricingdomain.Engine
	oracle  oracledomain.Cache
	ledger  capacitydomain.Ledger
	custody treasurydomain.Custody
	limiter *rateLimiter
}

func NewEngine(cfg config.Config, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	if httpMetrics != nil {
		engine.Use(metrics.GinMiddleware(httpMetrics))
	}
	return engine
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg:     p.Config,
		log:     p.Log.Named("server"),
		db:      p.DB,
		engine:  p.Engine,
		gateway: p.Gateway,
		admin:   p.Admin,
		authz:   p.Authz,
		pricing: p.Pricing,
		oracle:  p.Oracle,
		ledger:  p.Ledger,
		custody: p.Custody,
		limiter: newRateLimiter(p.Config.RateLimit.Limit, p.Config.RateLimit.Window),
	}
}

// callerMiddleware records the acting principal from the X-Caller header.
// Authentication happens upstream; the engine only needs an identity to
// price refunds and check roles against.
func (s *Server) callerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := strings.TrimSpace(c.GetHeader("X-Caller"))
		if caller != "" {
			c.Set("caller", caller)
			c.Request = c.Request.WithContext(obscontext.WithCaller(c.Request.Context(), caller))
		}
		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := obscontext.CallerFromGin(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !s.limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": &APIError{
				Status:  http.StatusTooManyRequests,
				Code:    "rate_limited",
				Message: "too many requests",
			}})
			return
		}
		c.Next()
	}
}

func (s *Server) RegisterAPIRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	v1.Use(s.callerMiddleware(), s.rateLimitMiddleware())

	// Read surface.
	v1.GET("/price", s.GetPrice)
	v1.GET("/unit-price", s.GetUnitPrice)
	v1.GET("/capacity", s.GetCapacity)
	v1.GET("/oracle", s.GetOracleSnapshot)
	v1.GET("/treasury", s.GetTreasury)

	// Allocation surface.
	v1.POST("/rent", s.Rent)
	v1.POST("/rent/batch", s.BatchRent)
	v1.POST("/credit", s.Credit)
	v1.POST("/credit/batch", s.BatchCredit)
	v1.POST("/credit/continuous", s.ContinuousCredit)
	v1.POST("/withdraw", s.Withdraw)

	// Administrative surface.
	adminGroup := v1.Group("/admin")
	adminGroup.POST("/price", s.SetPrice)
	adminGroup.POST("/fixed-price", s.SetFixedPrice)
	adminGroup.POST("/refresh-price", s.RefreshPrice)
	adminGroup.POST("/max-units", s.SetMaxUnits)
	adminGroup.POST("/deprecation", s.SetDeprecationTimestamp)
	adminGroup.POST("/cache-duration", s.SetCacheDuration)
	adminGroup.POST("/max-age", s.SetMaxAge)
	adminGroup.POST("/min-answer", s.SetMinAnswer)
	adminGroup.POST("/max-answer", s.SetMaxAnswer)
	adminGroup.POST("/grace-period", s.SetGracePeriod)
	adminGroup.POST("/vault", s.SetVault)
	adminGroup.POST("/price-feed", s.SetPriceFeed)
	adminGroup.POST("/uptime-feed", s.SetUptimeFeed)
	adminGroup.POST("/pause", s.Pause)
	adminGroup.POST("/unpause", s.Unpause)

	// Role lifecycle.
	roles := v1.Group("/roles")
	roles.POST("/grant", s.GrantRole)
	roles.POST("/revoke", s.RevokeRole)
	roles.POST("/renounce", s.RenounceRole)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, engine *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(
		NewEngine,
		NewServer,
	),
	fx.Invoke(func(s *Server) {
		s.RegisterAPIRoutes()
	}),
	fx.Invoke(RunHTTP),
)
