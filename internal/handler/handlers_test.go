package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-api/internal/config"
	"content-api/internal/domain"
	"content-api/internal/middleware"
	"content-api/internal/storage"
)

const testUserAgent = "Mozilla/5.0 (handler test)"

// noopLogger descarta tudo
type noopLogger struct{}

func (noopLogger) Debug(msg string, fields map[string]interface{})            {}
func (noopLogger) Info(msg string, fields map[string]interface{})             {}
func (noopLogger) Warn(msg string, fields map[string]interface{})             {}
func (noopLogger) Error(msg string, err error, fields map[string]interface{}) {}
func (noopLogger) WithContext(ctx context.Context) domain.Logger              { return noopLogger{} }

// fakeDispatcher resolve cada despacho com um resultado pré-programado
type fakeDispatcher struct {
	mutex   sync.Mutex
	results map[domain.TaskKind]domain.TaskResult
	calls   []domain.TaskKind
	block   bool
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, kind domain.TaskKind, payload interface{}) *domain.Promise {
	f.mutex.Lock()
	f.calls = append(f.calls, kind)
	result, ok := f.results[kind]
	block := f.block
	f.mutex.Unlock()

	promise := domain.NewPromise()
	if block {
		// Nunca resolve: força o caminho do Await cancelado
		return promise
	}

	if !ok {
		result = domain.TaskResult{Success: false, Error: "unknown task kind"}
	}
	promise.Resolve(result)
	return promise
}

func testConfig() *config.Config {
	return &config.Config{
		APILimiter:     config.LimiterConfig{MaxRequests: 100, Window: time.Minute, KeyPrefix: "api"},
		AuthLimiter:    config.LimiterConfig{MaxRequests: 100, Window: time.Minute, KeyPrefix: "auth"},
		UploadLimiter:  config.LimiterConfig{MaxRequests: 100, Window: time.Minute, KeyPrefix: "upload"},
		PaymentLimiter: config.LimiterConfig{MaxRequests: 100, Window: time.Minute, KeyPrefix: "payment"},
		ExemptPrefixes: []string{"/static"},
		BanThreshold:   1000,
		BanDuration:    30 * time.Minute,
		SweepInterval:  time.Minute,
		MinUserAgent:   10,
		ImageMaxWidth:  1200,
		ImageQuality:   80,
	}
}

// newTestRouter monta o router completo com store em memória e guard
func newTestRouter(t *testing.T, dispatcher domain.Dispatcher, cfg *config.Config) (*gin.Engine, *storage.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore(nil)
	t.Cleanup(func() { store.Close() })

	guard := middleware.NewDDoSGuard(middleware.DDoSGuardConfig{
		BanThreshold:       cfg.BanThreshold,
		BanDuration:        cfg.BanDuration,
		SweepInterval:      cfg.SweepInterval,
		MinUserAgentLength: cfg.MinUserAgent,
	}, store, noopLogger{})

	router := gin.New()
	h := NewHandlers(store, dispatcher, cfg, noopLogger{})
	h.SetupRoutes(router, guard)
	return router, store
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", testUserAgent)
	req.RemoteAddr = "192.0.2.10:41000"

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDispatcher{}, testConfig())

	w := doJSON(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "up", body["counter_store"])
}

func TestStatsHandler(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDispatcher{}, testConfig())

	w := doJSON(router, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "uptime")

	// O store em memória também expõe os próprios detalhes via Info
	store, ok := body["store"].(map[string]interface{})
	require.True(t, ok, "store details must be present")
	assert.Equal(t, "memory", store["type"])
}

func TestContentRoutes_PassThroughMiddlewares(t *testing.T) {
	router, store := newTestRouter(t, &fakeDispatcher{}, testConfig())

	w := doJSON(router, http.MethodGet, "/api/v1/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))

	// O contador da classe api foi criado para o IP do chamador
	_, ok, err := store.Get(context.Background(), "api:192.0.2.10")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOptimizeImagesHandler_Success(t *testing.T) {
	dispatcher := &fakeDispatcher{results: map[domain.TaskKind]domain.TaskResult{
		domain.TaskOptimizeImages: {
			Success: true,
			Data: map[string]interface{}{
				"urls": []string{"http://example.com/static/uploads/a-opt.jpg"},
			},
		},
	}}
	router, _ := newTestRouter(t, dispatcher, testConfig())

	w := doJSON(router, http.MethodPost, "/api/v1/uploads/images", gin.H{
		"paths": []string{"./static/uploads/a.png"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["optimized"])
	assert.Equal(t, []domain.TaskKind{domain.TaskOptimizeImages}, dispatcher.calls)
}

func TestOptimizeImagesHandler_DegradesToOriginals(t *testing.T) {
	dispatcher := &fakeDispatcher{results: map[domain.TaskKind]domain.TaskResult{
		domain.TaskOptimizeImages: {Success: false, Error: "decoder crashed"},
	}}
	router, _ := newTestRouter(t, dispatcher, testConfig())

	w := doJSON(router, http.MethodPost, "/api/v1/uploads/images", gin.H{
		"paths": []string{"./static/uploads/photo.png"},
	})

	// Falha do worker degrada para os originais, nunca 500
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["optimized"])

	urls, ok := body["urls"].([]interface{})
	require.True(t, ok)
	require.Len(t, urls, 1)
	assert.Contains(t, urls[0], "/static/uploads/photo.png")
}

func TestOptimizeImagesHandler_RejectsEmptyBody(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDispatcher{}, testConfig())

	w := doJSON(router, http.MethodPost, "/api/v1/uploads/images", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportSpreadsheetHandler_Success(t *testing.T) {
	dispatcher := &fakeDispatcher{results: map[domain.TaskKind]domain.TaskResult{
		domain.TaskImportSpreadsheet: {
			Success: true,
			Data:    map[string]interface{}{"imported": 42},
		},
	}}
	router, _ := newTestRouter(t, dispatcher, testConfig())

	w := doJSON(router, http.MethodPost, "/api/v1/uploads/spreadsheets", gin.H{
		"path":      "./uploads/import.xlsx",
		"tenant_id": "tenant-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "42")
}

func TestImportSpreadsheetHandler_FailureIs500(t *testing.T) {
	dispatcher := &fakeDispatcher{results: map[domain.TaskKind]domain.TaskResult{
		domain.TaskImportSpreadsheet: {Success: false, Error: "row 3: missing title"},
	}}
	router, _ := newTestRouter(t, dispatcher, testConfig())

	w := doJSON(router, http.MethodPost, "/api/v1/uploads/spreadsheets", gin.H{
		"path":      "./uploads/import.xlsx",
		"tenant_id": "tenant-1",
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "row 3")
}

func TestImportSpreadsheetHandler_RejectsMissingFields(t *testing.T) {
	router, _ := newTestRouter(t, &fakeDispatcher{}, testConfig())

	w := doJSON(router, http.MethodPost, "/api/v1/uploads/spreadsheets", gin.H{
		"path": "./uploads/import.xlsx",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListBansHandler(t *testing.T) {
	router, store := newTestRouter(t, &fakeDispatcher{}, testConfig())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "banned_ip:203.0.113.1", 1, 30*time.Minute))
	require.NoError(t, store.Set(ctx, "banned_ip:203.0.113.2", 1, 30*time.Minute))
	require.NoError(t, store.Set(ctx, "api:203.0.113.3", 1, time.Minute))

	w := doJSON(router, http.MethodGet, "/admin/bans", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		BannedIPs []string `json:"banned_ips"`
		Count     int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.ElementsMatch(t, []string{"203.0.113.1", "203.0.113.2"}, body.BannedIPs)
}

func TestResetLimitsHandler(t *testing.T) {
	router, store := newTestRouter(t, &fakeDispatcher{}, testConfig())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "auth:203.0.113.9", 15, time.Minute))

	w := doJSON(router, http.MethodPost, "/admin/limits/reset", gin.H{
		"scope":      "auth",
		"identifier": "203.0.113.9",
	})
	require.Equal(t, http.StatusOK, w.Code)

	_, ok, err := store.Get(ctx, "auth:203.0.113.9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetLimitsHandler_RefusesBanScope(t *testing.T) {
	router, store := newTestRouter(t, &fakeDispatcher{}, testConfig())
	ctx := context.Background()

	// A chave usa o prefixo literal de banimento; o escopo enviado usa a
	// constante de domínio — os dois precisam continuar sendo a mesma string
	require.NoError(t, store.Set(ctx, "banned_ip:203.0.113.5", 1, 30*time.Minute))

	w := doJSON(router, http.MethodPost, "/admin/limits/reset", gin.H{
		"scope":      string(domain.ScopeBan),
		"identifier": "203.0.113.5",
	})

	// Banimentos expiram apenas por TTL; o reset administrativo não os alcança
	require.Equal(t, http.StatusForbidden, w.Code)

	_, ok, err := store.Get(ctx, "banned_ip:203.0.113.5")
	require.NoError(t, err)
	assert.True(t, ok)
}
