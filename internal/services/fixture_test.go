package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/JoseLuisQL/SAD-sub003/internal/db"
	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"github.com/JoseLuisQL/SAD-sub003/pkg/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	db            *gorm.DB
	users         *UserService
	documents     *DocumentService
	audits        *AuditService
	notifications *NotificationService
	flows         *FlowService
	reversions    *ReversionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(database))

	log := zap.NewNop()
	collector := metrics.NewMetricsCollector()

	users := NewUserService(database, time.Hour, log, collector)
	t.Cleanup(users.Stop)

	documents := NewDocumentService(database, log, collector)
	audits := NewAuditService(database, log)
	notifications := NewNotificationService(database, log)
	flows := NewFlowService(database, users, documents, audits, notifications, log, collector)
	reversions := NewReversionService(database, users, documents, flows, audits, notifications, log, collector)

	return &fixture{
		db:            database,
		users:         users,
		documents:     documents,
		audits:        audits,
		notifications: notifications,
		flows:         flows,
		reversions:    reversions,
	}
}

func (f *fixture) createUser(t *testing.T, username string, role models.UserRole) *models.User {
	t.Helper()

	hash, err := HashPassword("test-password")
	require.NoError(t, err)

	user := &models.User{
		Username:     username,
		Email:        username + "@archivo.gob",
		PasswordHash: hash,
		Role:         role,
		ActiveStatus: true,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *fixture) createDocument(t *testing.T, ownerID uint) *models.Document {
	t.Helper()

	doc, err := f.documents.CreateDocument(context.Background(), ownerID, "Resolución 123", "INTERNAL", []byte("%PDF-1.4 test"))
	require.NoError(t, err)
	return doc
}

func (f *fixture) signerCount(t *testing.T, flowID string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, f.db.Model(&models.Signature{}).Where("flow_id = ?", flowID).Count(&count).Error)
	return count
}
