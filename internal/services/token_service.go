package services

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SigningClaims bind a one-time token to the signing request the native
// client is about to perform.
type SigningClaims struct {
	DocumentID string `json:"doc_id"`
	SignerID   uint   `json:"signer_id"`
	FlowID     string `json:"flow_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	jwt.RegisteredClaims
}

// SigningContext is the server-side context a redeemed token resumes.
type SigningContext struct {
	DocumentID string
	SignerID   uint
	FlowID     string
	Reason     string
}

// TokenService issues short-lived single-use signing tokens for the external
// native signing client. Single use is enforced by a jti registry: a token
// is consumed on its first redemption, successful or not, and never again
// accepted. Expired entries are swept in the background.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	issued   map[string]time.Time // jti -> expiry, removed on redemption
	stopChan chan struct{}
}

func NewTokenService(secret string, lifetime time.Duration, logger *zap.Logger) *TokenService {
	ts := &TokenService{
		secret:   []byte(secret),
		lifetime: lifetime,
		logger:   logger.With(zap.String("service", "token_service")),
		issued:   make(map[string]time.Time),
		stopChan: make(chan struct{}),
	}

	go ts.startBackgroundCleanup()

	return ts
}

func (ts *TokenService) startBackgroundCleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ts.stopChan:
			return
		case <-ticker.C:
			ts.sweepExpired()
		}
	}
}

func (ts *TokenService) sweepExpired() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for jti, expiry := range ts.issued {
		if now.After(expiry) {
			delete(ts.issued, jti)
		}
	}
}

func (ts *TokenService) Stop() {
	close(ts.stopChan)
}

// IssueSigningToken mints a token bound to the document, signer and
// (optionally) flow. The native client presents it back on the callback.
func (ts *TokenService) IssueSigningToken(docID string, signerID uint, reason, flowID string) (string, error) {
	now := time.Now()
	expiry := now.Add(ts.lifetime)
	jti := uuid.New().String()

	claims := SigningClaims{
		DocumentID: docID,
		SignerID:   signerID,
		FlowID:     flowID,
		Reason:     reason,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secret)
	if err != nil {
		return "", err
	}

	ts.mu.Lock()
	ts.issued[jti] = expiry
	ts.mu.Unlock()

	ts.logger.Info("Signing token issued",
		zap.String("jti", jti),
		zap.String("doc_id", docID),
		zap.Uint("signer_id", signerID),
		zap.String("flow_id", flowID))
	return signed, nil
}

// RedeemToken verifies and consumes a token. A second redemption of the
// same token fails with ErrTokenConsumed regardless of the first outcome.
func (ts *TokenService) RedeemToken(tokenString string) (*SigningContext, error) {
	claims := &SigningClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return ts.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}

	ts.mu.Lock()
	_, outstanding := ts.issued[claims.ID]
	if outstanding {
		delete(ts.issued, claims.ID)
	}
	ts.mu.Unlock()

	if !outstanding {
		return nil, ErrTokenConsumed
	}

	return &SigningContext{
		DocumentID: claims.DocumentID,
		SignerID:   claims.SignerID,
		FlowID:     claims.FlowID,
		Reason:     claims.Reason,
	}, nil
}
