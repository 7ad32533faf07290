package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"github.com/JoseLuisQL/SAD-sub003/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type SessionData struct {
	UserID    uint
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
}

type SessionStore struct {
	sessions map[string]SessionData
	mutex    sync.RWMutex
}

// UserService covers authentication, sessions and the permission surface the
// engine consumes: CanSign and IsAdministrator.
type UserService struct {
	db             *gorm.DB
	sessionStore   *SessionStore
	sessionTimeout time.Duration
	logger         *zap.Logger
	metrics        *metrics.MetricsCollector
	stopChan       chan struct{}
}

func NewUserService(db *gorm.DB, sessionTimeout time.Duration, logger *zap.Logger, metricsCollector *metrics.MetricsCollector) *UserService {
	us := &UserService{
		db:             db,
		sessionStore:   &SessionStore{sessions: make(map[string]SessionData)},
		sessionTimeout: sessionTimeout,
		logger:         logger.With(zap.String("service", "user_service")),
		metrics:        metricsCollector,
		stopChan:       make(chan struct{}),
	}

	go us.startBackgroundCleanup()

	return us
}

func (us *UserService) startBackgroundCleanup() {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-us.stopChan:
			return
		case <-ticker.C:
			us.cleanupExpiredSessions()
		}
	}
}

func (us *UserService) cleanupExpiredSessions() {
	us.sessionStore.mutex.Lock()
	defer us.sessionStore.mutex.Unlock()

	now := time.Now()
	for token, session := range us.sessionStore.sessions {
		if now.After(session.ExpiresAt) {
			delete(us.sessionStore.sessions, token)
			us.metrics.IncrementCounter("user_service.sessions_expired", nil)
		}
	}
}

func (us *UserService) Stop() {
	close(us.stopChan)
}

// Authenticate verifies credentials and opens a session, returning the
// session token.
func (us *UserService) Authenticate(ctx context.Context, username, password, ip, userAgent string) (*models.User, string, error) {
	var user models.User
	if err := us.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if !user.ActiveStatus {
		return nil, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		us.metrics.IncrementCounter("user_service.failed_logins", nil)
		return nil, "", ErrInvalidCredentials
	}

	token := uuid.New().String()
	us.sessionStore.mutex.Lock()
	us.sessionStore.sessions[token] = SessionData{
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(us.sessionTimeout),
		IPAddress: ip,
		UserAgent: userAgent,
	}
	us.sessionStore.mutex.Unlock()

	us.db.WithContext(ctx).Model(&user).Update("last_login", time.Now())
	us.logger.Info("User logged in", zap.String("username", username), zap.Uint("user_id", user.ID))
	return &user, token, nil
}

func (us *UserService) IsValidSession(token string) (uint, bool) {
	us.sessionStore.mutex.RLock()
	defer us.sessionStore.mutex.RUnlock()

	session, exists := us.sessionStore.sessions[token]
	if !exists || time.Now().After(session.ExpiresAt) {
		return 0, false
	}
	return session.UserID, true
}

func (us *UserService) InvalidateSession(token string) {
	us.sessionStore.mutex.Lock()
	defer us.sessionStore.mutex.Unlock()
	delete(us.sessionStore.sessions, token)
}

func (us *UserService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := us.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (us *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := us.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// CanSign reports whether the user may be enrolled as a signer on the
// document. Any active user can sign; inactive or unknown users cannot.
func (us *UserService) CanSign(ctx context.Context, userID uint, docID string) (bool, error) {
	var user models.User
	if err := us.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.ActiveStatus, nil
}

func (us *UserService) IsAdministrator(ctx context.Context, userID uint) (bool, error) {
	var user models.User
	if err := us.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.IsAdmin() && user.ActiveStatus, nil
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
