package api

import (
	"net/http"
	"time"

	"github.com/JoseLuisQL/SAD-sub003/internal/api/handlers"
	"github.com/JoseLuisQL/SAD-sub003/internal/api/middleware"
	"github.com/JoseLuisQL/SAD-sub003/internal/services"
	"github.com/JoseLuisQL/SAD-sub003/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Router struct {
	engine           *gin.Engine
	logger           *zap.Logger
	metrics          *metrics.MetricsCollector
	authHandler      *handlers.AuthHandler
	docHandler       *handlers.DocumentHandler
	flowHandler      *handlers.FlowHandler
	signingHandler   *handlers.SigningHandler
	reversionHandler *handlers.ReversionHandler
	userHandler      *handlers.UserHandler
	authMiddleware   *middleware.AuthMiddleware
	reqMiddleware    *middleware.RequestMiddleware
}

type Services struct {
	Users         *services.UserService
	Documents     *services.DocumentService
	Flows         *services.FlowService
	Reversions    *services.ReversionService
	Tokens        *services.TokenService
	Audits        *services.AuditService
	Notifications *services.NotificationService
}

func NewRouter(
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
	svcs Services,
	sessionTimeout time.Duration,
	callbackSkew time.Duration,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	reqMiddleware := middleware.NewRequestMiddleware(logger)
	authMiddleware := middleware.NewAuthMiddleware(svcs.Users)

	engine.Use(reqMiddleware.ProcessRequest())
	engine.Use(reqMiddleware.RecoverPanic())
	engine.Use(reqMiddleware.LoginAttemptMiddleware())

	return &Router{
		engine:           engine,
		logger:           logger,
		metrics:          metricsCollector,
		authHandler:      handlers.NewAuthHandler(svcs.Users, int(sessionTimeout.Seconds()), logger),
		docHandler:       handlers.NewDocumentHandler(svcs.Documents, svcs.Flows, svcs.Audits, logger),
		flowHandler:      handlers.NewFlowHandler(svcs.Flows, logger),
		signingHandler:   handlers.NewSigningHandler(svcs.Tokens, svcs.Flows, callbackSkew, logger),
		reversionHandler: handlers.NewReversionHandler(svcs.Reversions, logger),
		userHandler:      handlers.NewUserHandler(svcs.Users, svcs.Notifications, logger),
		authMiddleware:   authMiddleware,
		reqMiddleware:    reqMiddleware,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "sad-archivo"})
	})

	r.engine.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"counters":  r.metrics.GetCounters(),
			"latencies": r.metrics.GetLatencies(),
		})
	})

	r.engine.POST("/login", r.authHandler.Login)
	r.engine.GET("/logout", r.authHandler.Logout)

	authorized := r.engine.Group("/")
	authorized.Use(r.authMiddleware.RequireAuth())
	{
		authorized.GET("/profile", r.userHandler.Profile)
		authorized.GET("/users", r.userHandler.ListUsers)

		authorized.POST("/documents", r.docHandler.UploadDocument)
		authorized.GET("/documents", r.docHandler.ListDocuments)
		authorized.GET("/documents/:id", r.docHandler.GetDocument)
		authorized.GET("/documents/:id/status", r.docHandler.GetStatus)
		authorized.GET("/documents/:id/versions", r.docHandler.ListVersions)
		authorized.POST("/documents/:id/versions", r.docHandler.UploadVersion)
		authorized.GET("/documents/:id/download", r.docHandler.DownloadDocument)
		authorized.GET("/documents/:id/audit", r.docHandler.AuditTrail)

		authorized.POST("/flows", r.flowHandler.CreateFlow)
		authorized.GET("/flows/pending", r.flowHandler.PendingFlows)
		authorized.GET("/flows/:id", r.flowHandler.GetFlow)
		authorized.POST("/flows/:id/cancel", r.flowHandler.CancelFlow)

		authorized.POST("/signing/token", r.signingHandler.IssueToken)

		authorized.POST("/documents/:id/revert-signatures", r.reversionHandler.RevertSignatures)
		authorized.POST("/documents/:id/revert-version", r.reversionHandler.RevertToVersion)
		authorized.GET("/documents/:id/revert-targets", r.reversionHandler.RevertTargets)

		authorized.GET("/notifications", r.userHandler.ListNotifications)
		authorized.POST("/notifications/:id/read", r.userHandler.MarkNotificationRead)
	}

	// The native client posts the signed result back without a session; the
	// one-time token is the credential.
	r.engine.POST("/signing/callback", r.signingHandler.Callback)
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

func (r *Router) Run(addr string) error {
	r.logger.Info("Starting HTTP server", zap.String("address", addr))
	return r.engine.Run(addr)
}
