package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JoseLuisQL/SAD-sub003/internal/db"
	"github.com/JoseLuisQL/SAD-sub003/internal/db/models"
	"github.com/JoseLuisQL/SAD-sub003/internal/services"
	"github.com/JoseLuisQL/SAD-sub003/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testServer struct {
	router *Router
	users  map[string]*models.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(database))

	log := zap.NewNop()
	collector := metrics.NewMetricsCollector()

	userService := services.NewUserService(database, time.Hour, log, collector)
	t.Cleanup(userService.Stop)
	documentService := services.NewDocumentService(database, log, collector)
	auditService := services.NewAuditService(database, log)
	notificationService := services.NewNotificationService(database, log)
	flowService := services.NewFlowService(database, userService, documentService, auditService, notificationService, log, collector)
	reversionService := services.NewReversionService(database, userService, documentService, flowService, auditService, notificationService, log, collector)
	tokenService := services.NewTokenService("test-secret", time.Minute, log)
	t.Cleanup(tokenService.Stop)

	router := NewRouter(log, collector, Services{
		Users:         userService,
		Documents:     documentService,
		Flows:         flowService,
		Reversions:    reversionService,
		Tokens:        tokenService,
		Audits:        auditService,
		Notifications: notificationService,
	}, time.Hour, 2*time.Minute)
	router.SetupRoutes()

	srv := &testServer{router: router, users: make(map[string]*models.User)}
	for _, username := range []string{"creator", "signer-a", "signer-b"} {
		hash, err := services.HashPassword("test-password")
		require.NoError(t, err)
		user := &models.User{
			Username:     username,
			Email:        username + "@archivo.gob",
			PasswordHash: hash,
			Role:         models.RoleAgent,
			ActiveStatus: true,
		}
		require.NoError(t, database.Create(user).Error)
		srv.users[username] = user
	}
	return srv
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username string) *http.Cookie {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": username, "password": "test-password"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "session_token" {
			return cookie
		}
	}
	t.Fatal("no session cookie returned")
	return nil
}

func (s *testServer) postJSON(t *testing.T, path string, payload interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return s.do(t, req)
}

func (s *testServer) uploadDocument(t *testing.T, cookie *http.Cookie) string {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Resolución 99"))
	require.NoError(t, mw.WriteField("classification", "INTERNAL"))
	fw, err := mw.CreateFormFile("file", "resolucion.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)
	w := s.do(t, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSigningRoundTrip(t *testing.T) {
	s := newTestServer(t)

	creator := s.login(t, "creator")
	signerA := s.login(t, "signer-a")
	signerB := s.login(t, "signer-b")

	docID := s.uploadDocument(t, creator)

	w := s.postJSON(t, "/flows", map[string]interface{}{
		"document_id": docID,
		"name":        "Visto bueno",
		"signers":     []uint{s.users["signer-a"].ID, s.users["signer-b"].ID},
	}, creator)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var flow struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flow))

	// Out-of-turn signer cannot even get a token for the flow.
	w = s.postJSON(t, "/signing/token", map[string]interface{}{
		"document_id": docID,
		"flow_id":     flow.ID,
	}, signerB)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Current signer gets a token and the native client posts the result.
	w = s.postJSON(t, "/signing/token", map[string]interface{}{
		"document_id": docID,
		"flow_id":     flow.ID,
		"reason":      "aprobación",
	}, signerA)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var issued struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))

	callback := map[string]interface{}{
		"token":   issued.Token,
		"payload": base64.StdEncoding.EncodeToString([]byte("signed-bytes")),
		"certificate": map[string]string{
			"subject": "CN=Signer A",
			"issuer":  "CN=Gov CA",
			"serial":  "01",
			"pem":     "-----BEGIN CERTIFICATE-----",
		},
		"signed_at": time.Now(),
		"validity":  "VALID",
	}
	w = s.postJSON(t, "/signing/callback", callback, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Replaying the same token is rejected; it was consumed.
	w = s.postJSON(t, "/signing/callback", callback, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The flow advanced to signer B.
	req := httptest.NewRequest(http.MethodGet, "/flows/pending", nil)
	req.AddCookie(signerB)
	w = s.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)

	var pending struct {
		Flows []struct {
			ID          string `json:"id"`
			CurrentStep int    `json:"current_step"`
		} `json:"flows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending.Flows, 1)
	assert.Equal(t, flow.ID, pending.Flows[0].ID)
	assert.Equal(t, 1, pending.Flows[0].CurrentStep)

	// Document reads as IN_FLOW until the flow completes.
	req = httptest.NewRequest(http.MethodGet, "/documents/"+docID+"/status", nil)
	req.AddCookie(creator)
	w = s.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "IN_FLOW")
}

func TestCancelFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	creator := s.login(t, "creator")
	signerA := s.login(t, "signer-a")

	docID := s.uploadDocument(t, creator)

	w := s.postJSON(t, "/flows", map[string]interface{}{
		"document_id": docID,
		"name":        "Cancelable",
		"signers":     []uint{s.users["signer-a"].ID},
	}, creator)
	require.Equal(t, http.StatusCreated, w.Code)

	var flow struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flow))

	// Non-creator cannot cancel.
	w = s.postJSON(t, "/flows/"+flow.ID+"/cancel", map[string]string{"reason": "no"}, signerA)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.postJSON(t, "/flows/"+flow.ID+"/cancel", map[string]string{"reason": "duplicado"}, creator)
	assert.Equal(t, http.StatusOK, w.Code)

	// Second cancel conflicts.
	w = s.postJSON(t, "/flows/"+flow.ID+"/cancel", map[string]string{"reason": "otra vez"}, creator)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSigningCallbackRequiresTimestamp(t *testing.T) {
	s := newTestServer(t)

	creator := s.login(t, "creator")
	signerA := s.login(t, "signer-a")

	docID := s.uploadDocument(t, creator)

	w := s.postJSON(t, "/flows", map[string]interface{}{
		"document_id": docID,
		"name":        "Sin fecha",
		"signers":     []uint{s.users["signer-a"].ID},
	}, creator)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var flow struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flow))

	w = s.postJSON(t, "/signing/token", map[string]interface{}{
		"document_id": docID,
		"flow_id":     flow.ID,
	}, signerA)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var issued struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))

	// A callback without signed_at fails structural validation.
	callback := map[string]interface{}{
		"token":   issued.Token,
		"payload": base64.StdEncoding.EncodeToString([]byte("signed-bytes")),
		"certificate": map[string]string{
			"subject": "CN=Signer A",
			"issuer":  "CN=Gov CA",
		},
		"validity": "VALID",
	}
	w = s.postJSON(t, "/signing/callback", callback, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	// The token was consumed on redemption; a corrected retry conflicts.
	callback["signed_at"] = time.Now()
	w = s.postJSON(t, "/signing/callback", callback, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
