package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/apikit/config"
	"github.com/Skryldev/apikit/db"
	"github.com/Skryldev/apikit/httpapi"
	"github.com/Skryldev/apikit/logging"
	"github.com/Skryldev/apikit/service"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

// testAPI bundles the handler with buffer-backed access/error loggers so
// the one-record-per-request behaviour can be asserted.
type testAPI struct {
	handler http.Handler
	mgr     *db.SessionManager
	access  *bytes.Buffer
	errors  *bytes.Buffer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	mgr, err := db.Open(db.Config{
		DSN:        "file:" + filepath.Join(t.TempDir(), "api.db"),
		DriverName: "sqlite3",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	_, err = mgr.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS users (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			email           TEXT NOT NULL UNIQUE,
			hashed_password TEXT NOT NULL,
			full_name       TEXT,
			is_active       BOOLEAN NOT NULL DEFAULT TRUE,
			is_superuser    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      DATETIME NOT NULL,
			updated_at      DATETIME NOT NULL
		)`)
	require.NoError(t, err)

	accessBuf := &bytes.Buffer{}
	errorBuf := &bytes.Buffer{}
	logs := &logging.Loggers{
		App:    zerolog.Nop(),
		Access: zerolog.New(accessBuf),
		Error:  zerolog.New(errorBuf),
	}

	cfg := &config.Settings{
		AppName:     "apikit",
		AppVersion:  "0.1.0",
		Environment: "test",
	}
	users := service.NewUserService(mgr)
	api := httpapi.New(cfg, mgr, users, logs)

	return &testAPI{handler: api.Handler(), mgr: mgr, access: accessBuf, errors: errorBuf}
}

func (a *testAPI) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), "body: %s", rec.Body.String())
	return m
}

// logLines splits a buffer of JSON log records into one map per record.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "log line: %s", line)
		out = append(out, m)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// User CRUD flow
// ─────────────────────────────────────────────────────────────────────────────

func TestAPI_UserFlow(t *testing.T) {
	api := newTestAPI(t)

	// Create.
	rec := api.do(t, http.MethodPost, "/api/v1/users",
		`{"email":"flow@api.com","password":"s3cretpass","full_name":"Flo W."}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, "flow@api.com", created["email"])
	assert.Equal(t, "Flo W.", created["full_name"])
	assert.Equal(t, true, created["is_active"])
	assert.NotContains(t, rec.Body.String(), "s3cretpass")
	assert.NotContains(t, created, "hashed_password")
	id := int64(created["id"].(float64))
	require.NotZero(t, id)

	// Duplicate create conflicts.
	rec = api.do(t, http.MethodPost, "/api/v1/users",
		`{"email":"flow@api.com","password":"s3cretpass"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User with this email already exists", decode(t, rec)["detail"])

	// Read it back.
	rec = api.do(t, http.MethodGet, "/api/v1/users/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "flow@api.com", decode(t, rec)["email"])

	// Sparse update: clear full_name with an explicit null.
	rec = api.do(t, http.MethodPatch, "/api/v1/users/1", `{"full_name":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)
	assert.Nil(t, updated["full_name"])
	assert.Equal(t, "flow@api.com", updated["email"])

	// Delete, then the id is gone.
	rec = api.do(t, http.MethodDelete, "/api/v1/users/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/v1/users/1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", decode(t, rec)["detail"])
}

func TestAPI_ListUsers(t *testing.T) {
	api := newTestAPI(t)

	for _, email := range []string{"a@list.com", "b@list.com", "c@list.com"} {
		rec := api.do(t, http.MethodPost, "/api/v1/users",
			`{"email":"`+email+`","password":"s3cretpass"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := api.do(t, http.MethodGet, "/api/v1/users?page=1&page_size=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["total"])
	assert.Len(t, body["items"], 2)

	// An empty page still yields an items array, never null.
	rec = api.do(t, http.MethodGet, "/api/v1/users?page=50", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation failures
// ─────────────────────────────────────────────────────────────────────────────

func TestAPI_CreateUser_Validation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/users",
		`{"email":"nope","password":"x"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestAPI_CreateUser_MalformedBody(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/users", `{not json`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "malformed request body", decode(t, rec)["detail"])

	// Unknown fields are rejected, not silently dropped.
	rec = api.do(t, http.MethodPost, "/api/v1/users",
		`{"email":"x@api.com","password":"s3cretpass","role":"admin"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Correlation ids and request logging
// ─────────────────────────────────────────────────────────────────────────────

func TestAPI_RequestID(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	generated := rec.Header().Get("X-Request-ID")
	assert.NotEmpty(t, generated)

	// An inbound id is honored, not replaced.
	rec = api.do(t, http.MethodGet, "/health", "", "X-Request-ID", "trace-me-123")
	assert.Equal(t, "trace-me-123", rec.Header().Get("X-Request-ID"))

	records := logLines(t, api.access)
	require.Len(t, records, 2)
	assert.Equal(t, generated, records[0]["request_id"])
	assert.Equal(t, "trace-me-123", records[1]["request_id"])
	assert.Equal(t, "/health", records[1]["path"])
	assert.EqualValues(t, http.StatusOK, records[1]["status"])
	assert.Contains(t, records[1], "duration_ms")
}

func TestAPI_UnmatchedRouteStillCorrelated(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/no/such/route", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	records := logLines(t, api.access)
	require.Len(t, records, 1)
	assert.EqualValues(t, http.StatusNotFound, records[0]["status"])
}

func TestAPI_ExactlyOneRecordPerRequest(t *testing.T) {
	api := newTestAPI(t)

	// A successful request logs one access record and no error record.
	rec := api.do(t, http.MethodGet, "/api/v1/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, logLines(t, api.access), 1)
	assert.Empty(t, api.errors.String())

	api.access.Reset()

	// An unclassified failure (storage gone) logs one error record — with
	// the real cause and a stack — and no access record, while the client
	// sees only a generic 500.
	require.NoError(t, api.mgr.Close())
	rec = api.do(t, http.MethodGet, "/api/v1/users", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decode(t, rec)["detail"])
	assert.NotContains(t, rec.Body.String(), "not initialized")

	assert.Empty(t, api.access.String())
	records := logLines(t, api.errors)
	require.Len(t, records, 1)
	assert.Contains(t, records[0]["error"], "not initialized")
	assert.EqualValues(t, http.StatusInternalServerError, records[0]["status"])
	assert.NotEmpty(t, records[0]["stack"])
}

// ─────────────────────────────────────────────────────────────────────────────
// Health endpoints
// ─────────────────────────────────────────────────────────────────────────────

func TestAPI_Health(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "apikit", body["name"])
	assert.Equal(t, "running", body["status"])

	rec = api.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = api.do(t, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["environment"])

	rec = api.do(t, http.MethodGet, "/api/v1/health/db", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", decode(t, rec)["database"])

	rec = api.do(t, http.MethodGet, "/api/v1/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, true, body["checks"].(map[string]any)["database"])
}

func TestAPI_Health_DatabaseDown(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.mgr.Close())

	// Probes answer 200 with a structured failure, never a transport error.
	rec := api.do(t, http.MethodGet, "/api/v1/health/db", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unhealthy", decode(t, rec)["status"])

	rec = api.do(t, http.MethodGet, "/api/v1/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, false, body["checks"].(map[string]any)["database"])
}
