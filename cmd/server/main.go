package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/JoseLuisQL/SAD-sub003/internal/api"
	"github.com/JoseLuisQL/SAD-sub003/internal/config"
	"github.com/JoseLuisQL/SAD-sub003/internal/db"
	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"github.com/JoseLuisQL/SAD-sub003/internal/services"
	"github.com/JoseLuisQL/SAD-sub003/pkg/logger"
	"github.com/JoseLuisQL/SAD-sub003/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	cfg := config.InitializeDefaultConfig()

	zapLogger, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	config.LogConfig(zapLogger)

	database, err := db.Initialize(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to initialize database", zap.Error(err))
	}

	metricsCollector := metrics.NewMetricsCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedDatabase(ctx, database, zapLogger); err != nil {
		zapLogger.Fatal("Failed to seed database", zap.Error(err))
	}

	userService := services.NewUserService(database, cfg.Security.SessionTimeout, zapLogger, metricsCollector)
	documentService := services.NewDocumentService(database, zapLogger, metricsCollector)
	auditService := services.NewAuditService(database, zapLogger)
	notificationService := services.NewNotificationService(database, zapLogger)
	flowService := services.NewFlowService(database, userService, documentService, auditService, notificationService, zapLogger, metricsCollector)
	reversionService := services.NewReversionService(database, userService, documentService, flowService, auditService, notificationService, zapLogger, metricsCollector)
	tokenService := services.NewTokenService(cfg.Signing.TokenSecret, cfg.Signing.TokenLifetime, zapLogger)

	router := api.NewRouter(zapLogger, metricsCollector, api.Services{
		Users:         userService,
		Documents:     documentService,
		Flows:         flowService,
		Reversions:    reversionService,
		Tokens:        tokenService,
		Audits:        auditService,
		Notifications: notificationService,
	}, cfg.Security.SessionTimeout, cfg.Signing.CallbackSkew)
	router.SetupRoutes()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}
	go func() {
		if err := router.Run(":" + port); err != nil {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	zapLogger.Info("Server started", zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	tokenService.Stop()
	userService.Stop()

	sqlDB, err := db.DB.DB()
	if err == nil {
		sqlDB.Close()
	}
	zapLogger.Info("Server gracefully stopped")
}

func seedDatabase(ctx context.Context, database *gorm.DB, logger *zap.Logger) error {
	var count int64
	database.Model(&models.User{}).Count(&count)
	if count > 0 {
		logger.Info("Database already seeded, skipping")
		return nil
	}
	logger.Info("Seeding database with initial data")

	defaultHash, err := services.HashPassword("archivo2024")
	if err != nil {
		return err
	}

	users := []models.User{
		{Username: "director", Email: "director@archivo.gob", PasswordHash: defaultHash, Role: models.RoleAdmin, FirstName: "Dirección", LastName: "General", Department: "Dirección", ActiveStatus: true},
		{Username: "mesa1", Email: "mesa1@archivo.gob", PasswordHash: defaultHash, Role: models.RoleAgent, FirstName: "Mesa", LastName: "de Partes", Department: "Mesa de Partes", ActiveStatus: true},
		{Username: "archivo1", Email: "archivo1@archivo.gob", PasswordHash: defaultHash, Role: models.RoleAgent, FirstName: "Archivo", LastName: "Central", Department: "Archivo Central", ActiveStatus: true},
		{Username: "legal1", Email: "legal1@archivo.gob", PasswordHash: defaultHash, Role: models.RoleAgent, FirstName: "Asesoría", LastName: "Legal", Department: "Asesoría Legal", ActiveStatus: true},
	}

	if err := database.WithContext(ctx).Create(&users).Error; err != nil {
		return err
	}

	logger.Info("Created initial users", zap.Int("count", len(users)))
	return nil
}
