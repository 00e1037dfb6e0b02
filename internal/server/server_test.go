package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/beacon/internal/auth"
	"github.com/smallbiznis/beacon/internal/clock"
	"github.com/smallbiznis/beacon/internal/config"
	credentialdomain "github.com/smallbiznis/beacon/internal/credential/domain"
	credentialrepository "github.com/smallbiznis/beacon/internal/credential/repository"
	credentialservice "github.com/smallbiznis/beacon/internal/credential/service"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	eventrepository "github.com/smallbiznis/beacon/internal/event/repository"
	eventservice "github.com/smallbiznis/beacon/internal/event/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testToken  = "tok_live_server_test"
	testSecret = "whsec_server_test"
)

var (
	testCredentialID = snowflake.ID(1)
	testOrgID        = snowflake.ID(100)
	testAppID        = snowflake.ID(200)
)

type testEnv struct {
	engine *gin.Engine
	db     *gorm.DB
	clk    *clock.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&credentialdomain.Credential{}, &eventdomain.Event{}))

	require.NoError(t, credentialrepository.Provide().Insert(context.Background(), db, &credentialdomain.Credential{
		ID:        testCredentialID,
		OrgID:     testOrgID,
		AppID:     testAppID,
		Token:     testToken,
		Secret:    testSecret,
		Tier:      credentialdomain.TierFree,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}))

	cfg := config.Config{
		AppVersion:      "0.1.0",
		FreshnessWindow: 10 * time.Minute,
		MaxBatchSize:    1000,
	}

	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	credsvc := credentialservice.New(credentialservice.ServiceParam{
		DB:   db,
		Log:  log,
		Repo: credentialrepository.Provide(),
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	eventsvc := eventservice.New(eventservice.ServiceParam{
		DB:      db,
		Log:     log,
		GenID:   node,
		Repo:    eventrepository.Provide(),
		CredSvc: credsvc,
	})

	engine := NewEngine(cfg, log)
	srv := NewServer(ServerParams{
		Gin:      engine,
		Cfg:      cfg,
		Log:      log,
		Clk:      clk,
		CredSvc:  credsvc,
		EventSvc: eventsvc,
	})
	srv.RegisterRoutes()

	return &testEnv{engine: engine, db: db, clk: clk}
}

func (e *testEnv) ingestPath() string {
	return fmt.Sprintf("/v1/ingest/%s/%s", testOrgID, testAppID)
}

// signedRequest builds a correctly signed POST with the fake clock's current
// time as the claimed timestamp.
func (e *testEnv) signedRequest(path string, body []byte) *http.Request {
	timestamp := strconv.FormatInt(e.clk.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", auth.Sign(testSecret, timestamp, body))
	return req
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *testEnv) eventRows(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&eventdomain.Event{}).Count(&count).Error)
	return count
}

func batchBody(t *testing.T, events ...map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"events": events})
	require.NoError(t, err)
	return raw
}

func validEventJSON(clk clock.Clock) map[string]any {
	return map[string]any{
		"schema_version": "1.0.0",
		"event_id":       uuid.NewString(),
		"timestamp":      clk.Now().Format(time.RFC3339),
		"service": map[string]any{
			"name":     "test-service",
			"version":  "1.0.0",
			"language": "go",
		},
		"user_id": "client_abc123",
		"environment": map[string]any{
			"os": "linux",
		},
		"event": map[string]any{
			"type": "command",
			"data": map[string]any{"success": true},
		},
		"metadata": map[string]any{
			"sdk_version": "0.1.0",
			"batch_size":  1,
			"retry_count": 0,
		},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "GNU Terry Pratchett", w.Header().Get("X-Clacks-Overhead"))
	assert.JSONEq(t, `{"status":"ok","version":"0.1.0"}`, w.Body.String())
}

func TestIngestHappyPath(t *testing.T) {
	env := newTestEnv(t)

	body := batchBody(t, validEventJSON(env.clk), validEventJSON(env.clk))
	w := env.do(env.signedRequest(env.ingestPath(), body))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "GNU Terry Pratchett", w.Header().Get("X-Clacks-Overhead"))

	var resp ingestSuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, 0, resp.Rejected)

	assert.EqualValues(t, 2, env.eventRows(t))
}

func TestIngestMissingAuthHeaders(t *testing.T) {
	env := newTestEnv(t)
	body := batchBody(t, validEventJSON(env.clk))

	tests := []struct {
		name   string
		mutate func(*http.Request)
	}{
		{"missing signature", func(r *http.Request) { r.Header.Del("X-Signature") }},
		{"missing timestamp", func(r *http.Request) { r.Header.Del("X-Timestamp") }},
		{"missing authorization", func(r *http.Request) { r.Header.Del("Authorization") }},
		{"not a bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") }},
		{"empty bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := env.signedRequest(env.ingestPath(), body)
			tt.mutate(req)

			w := env.do(req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	assert.EqualValues(t, 0, env.eventRows(t))
}

func TestIngestUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	body := batchBody(t, validEventJSON(env.clk))

	timestamp := strconv.FormatInt(env.clk.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, env.ingestPath(), bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok_live_who_dis")
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", auth.Sign(testSecret, timestamp, body))

	w := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngestInactiveCredential(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Exec(`UPDATE credentials SET is_active = false WHERE id = ?`, testCredentialID).Error)

	body := batchBody(t, validEventJSON(env.clk))
	w := env.do(env.signedRequest(env.ingestPath(), body))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.EqualValues(t, 0, env.eventRows(t))
}

func TestIngestBadSignature(t *testing.T) {
	env := newTestEnv(t)
	body := batchBody(t, validEventJSON(env.clk))

	req := env.signedRequest(env.ingestPath(), body)
	req.Header.Set("X-Signature", auth.Sign("wrong_secret", req.Header.Get("X-Timestamp"), body))

	w := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngestTamperedBody(t *testing.T) {
	env := newTestEnv(t)
	body := batchBody(t, validEventJSON(env.clk))

	// Signature over the original body, tampered bytes on the wire.
	timestamp := strconv.FormatInt(env.clk.Now().Unix(), 10)
	tampered := bytes.Replace(body, []byte("client_abc123"), []byte("client_evil99"), 1)
	req := httptest.NewRequest(http.MethodPost, env.ingestPath(), bytes.NewReader(tampered))
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", auth.Sign(testSecret, timestamp, body))

	w := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngestStaleTimestamp(t *testing.T) {
	env := newTestEnv(t)
	body := batchBody(t, validEventJSON(env.clk))

	// Sign at the current time, then move the server clock past the window.
	// The signature still verifies; only freshness fails.
	req := env.signedRequest(env.ingestPath(), body)
	env.clk.Advance(11 * time.Minute)

	w := env.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.EqualValues(t, 0, env.eventRows(t))
}

func TestIngestMalformedTimestamp(t *testing.T) {
	env := newTestEnv(t)
	body := batchBody(t, validEventJSON(env.clk))

	timestamp := "yesterday"
	req := httptest.NewRequest(http.MethodPost, env.ingestPath(), bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", auth.Sign(testSecret, timestamp, body))

	w := env.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestPathScopeMismatch(t *testing.T) {
	env := newTestEnv(t)
	body := batchBody(t, validEventJSON(env.clk))

	path := fmt.Sprintf("/v1/ingest/%s/%s", snowflake.ID(999), testAppID)
	w := env.do(env.signedRequest(path, body))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.EqualValues(t, 0, env.eventRows(t))
}

func TestIngestInvalidPathIDs(t *testing.T) {
	env := newTestEnv(t)
	body := batchBody(t, validEventJSON(env.clk))

	w := env.do(env.signedRequest("/v1/ingest/not-an-id/200", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestMalformedJSON(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"events": [`)
	w := env.do(env.signedRequest(env.ingestPath(), body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestEmptyBatch(t *testing.T) {
	env := newTestEnv(t)

	body := batchBody(t)
	w := env.do(env.signedRequest(env.ingestPath(), body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestBatchSizeHeader(t *testing.T) {
	env := newTestEnv(t)

	t.Run("mismatch is rejected", func(t *testing.T) {
		body := batchBody(t, validEventJSON(env.clk), validEventJSON(env.clk))
		req := env.signedRequest(env.ingestPath(), body)
		req.Header.Set("X-Batch-Size", "5")

		w := env.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("matching header passes", func(t *testing.T) {
		body := batchBody(t, validEventJSON(env.clk), validEventJSON(env.clk))
		req := env.signedRequest(env.ingestPath(), body)
		req.Header.Set("X-Batch-Size", "2")

		w := env.do(req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestIngestDoNotTrack(t *testing.T) {
	env := newTestEnv(t)

	body := batchBody(t, validEventJSON(env.clk))
	req := env.signedRequest(env.ingestPath(), body)
	req.Header.Set("DNT", "1")

	w := env.do(req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.EqualValues(t, 0, env.eventRows(t))
}

func TestIngestDoNotTrackStillValidatesBatchShape(t *testing.T) {
	env := newTestEnv(t)

	// An empty batch is a client error regardless of DNT.
	req := env.signedRequest(env.ingestPath(), batchBody(t))
	req.Header.Set("DNT", "1")

	w := env.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestPartialBatch(t *testing.T) {
	env := newTestEnv(t)

	bad := validEventJSON(env.clk)
	bad["user_id"] = "anon_123"

	body := batchBody(t, validEventJSON(env.clk), bad)
	w := env.do(env.signedRequest(env.ingestPath(), body))

	assert.Equal(t, http.StatusMultiStatus, w.Code)

	var resp ingestPartialResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "partial", resp.Status)
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 1, resp.Rejected)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, eventdomain.ReasonInvalidSchema, resp.Errors[0].Error)

	assert.EqualValues(t, 1, env.eventRows(t))
}

func TestIngestDuplicateResubmission(t *testing.T) {
	env := newTestEnv(t)

	ev := validEventJSON(env.clk)
	body := batchBody(t, ev)

	w := env.do(env.signedRequest(env.ingestPath(), body))
	require.Equal(t, http.StatusOK, w.Code)

	// The identical batch again: nothing new is accepted, so the whole
	// response is a failure report with per-event duplicate codes.
	w = env.do(env.signedRequest(env.ingestPath(), body))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ingestPartialResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, eventdomain.ReasonDuplicate, resp.Errors[0].Error)

	assert.EqualValues(t, 1, env.eventRows(t))
}

func TestCORSPreflights(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, env.ingestPath(), nil)
	w := env.do(req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
