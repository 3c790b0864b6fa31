package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/payrail/internal/config"
	"github.com/smallbiznis/payrail/internal/gateway"
	"github.com/smallbiznis/payrail/internal/observability"
	obslogger "github.com/smallbiznis/payrail/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payrail/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payrail/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
	"github.com/smallbiznis/payrail/internal/ratelimit"
	tokendomain "github.com/smallbiznis/payrail/internal/token/domain"
	walletservice "github.com/smallbiznis/payrail/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.registerAPIRoutes()
		s.registerGatewayRoutes()
	}),
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

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
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
	engine          *gin.Engine
	cfg             config.Config
	genID           *snowflake.Node
	gw              *gateway.Gateway
	orderSvc        orderdomain.Service
	tokenSvc        tokendomain.Service
	walletSvc       *walletservice.Service
	callbackLimiter *ratelimit.NotificationLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	GenID           *snowflake.Node
	Gateway         *gateway.Gateway
	OrderSvc        orderdomain.Service
	TokenSvc        tokendomain.Service
	WalletSvc       *walletservice.Service
	CallbackLimiter *ratelimit.NotificationLimiter
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		genID:           p.GenID,
		gw:              p.Gateway,
		orderSvc:        p.OrderSvc,
		tokenSvc:        p.TokenSvc,
		walletSvc:       p.WalletSvc,
		callbackLimiter: p.CallbackLimiter,
		obsMetrics:      p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Payments --------
	api.POST("/orders/:order_id/pay", s.PayOrder)
	api.POST("/orders/:order_id/capture", s.CaptureOrder)
	api.POST("/orders/:order_id/refund", s.RefundOrder)
	api.POST("/orders/:order_id/void", s.VoidOrder)
	api.GET("/orders/:order_id/notes", s.ListOrderNotes)
	api.POST("/captures/bulk", s.BulkCapture)

	// -------- Stored tokens --------
	api.GET("/customers/:customer_id/tokens", s.ListTokens)
	api.POST("/customers/:customer_id/tokens", s.AddToken)
	api.DELETE("/customers/:customer_id/tokens/:token_id", s.RemoveToken)
	api.POST("/customers/:customer_id/tokens/:token_id/default", s.SetDefaultToken)

	// -------- Wallet checkout --------
	api.POST("/wallet/payment-request", s.BuildWalletPaymentRequest)
	api.POST("/wallet/product-payment-request", s.BuildWalletProductPaymentRequest)
	api.POST("/wallet/authorize", s.AuthorizeWalletPayment)
}

// registerGatewayRoutes exposes the remote-facing callback surface. The
// gateway posts IPNs here and browsers land on the redirect-back after a
// hosted payment.
func (s *Server) registerGatewayRoutes() {
	gw := s.engine.Group("/gateway/:gateway_id")

	gw.GET("/ipn", s.HandleIPN)
	gw.POST("/ipn", s.HandleIPN)
	gw.GET("/return", s.HandleRedirectBack)
	gw.POST("/return", s.HandleRedirectBack)
}
