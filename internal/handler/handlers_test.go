package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/code-100-precent/LingVoice/internal/models"
	"github.com/code-100-precent/LingVoice/pkg/config"
	"github.com/code-100-precent/LingVoice/pkg/metrics"
	"github.com/code-100-precent/LingVoice/pkg/middleware"
	"github.com/code-100-precent/LingVoice/pkg/recognizer"
	voicehandler "github.com/code-100-precent/LingVoice/pkg/voice/handler"
	"github.com/code-100-precent/LingVoice/pkg/voice/pipeline"
	"github.com/code-100-precent/LingVoice/pkg/voice/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubSTT struct{}

func (stubSTT) Transcribe(ctx context.Context, wav []byte) (recognizer.Transcript, error) {
	return recognizer.Transcript{Text: "hello", Language: "en"}, nil
}
func (stubSTT) Vendor() string { return "stub" }

type idlePipeline struct{}

func (idlePipeline) SubmitBuffer(ctx context.Context, s *protocol.Session) error { return nil }
func (idlePipeline) SubmitRecording(ctx context.Context, s *protocol.Session, data []byte) error {
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{APIPrefix: "/api", MonitorPrefix: "/metrics"},
		Auth:   config.AuthConfig{Header: "Authorization"},
		Middleware: config.MiddlewareConfig{
			RateLimit: "100-M",
		},
	}
}

type testServer struct {
	engine *gin.Engine
	db     *gorm.DB
	token  string
}

func newTestServer(t *testing.T, voiceModels *pipeline.Models) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	user, err := models.CreateUser(db, "demo@lingvoice.local", "demo", "Demo")
	require.NoError(t, err)

	cfg := testConfig()
	m := metrics.NewMetrics("lingvoice")
	mgr, err := middleware.NewMiddlewareManager(cfg.Middleware, zap.NewNop())
	require.NoError(t, err)

	var voice *voicehandler.VoiceHandler
	if voiceModels != nil {
		voice = voicehandler.NewVoiceHandler(&voicehandler.VoiceOptions{
			Models:   voiceModels,
			Pipeline: idlePipeline{},
			Auth:     TokenAuthenticator(db),
			Metrics:  m,
			Logger:   zap.NewNop(),
		})
	}
	engine := gin.New()
	NewHandlers(db, cfg, voice, m, mgr).Register(engine)
	return &testServer{engine: engine, db: db, token: models.BuildAuthToken(user, time.Hour)}
}

func (s *testServer) get(path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, &pipeline.Models{STT: stubSTT{}})
	w := s.get("/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["database"])
	voice := body["voice"].(map[string]any)
	assert.Equal(t, true, voice["enabled"])

	notReady := newTestServer(t, &pipeline.Models{})
	w = notReady.get("/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode(t, w)["status"])
}

func TestVoiceInfo(t *testing.T) {
	s := newTestServer(t, &pipeline.Models{STT: stubSTT{}})

	w := s.get("/api/voice/info", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_REQUIRED", decode(t, w)["error"])

	w = s.get("/api/voice/info", s.token)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, true, data["enabled"])
	assert.Equal(t, float64(0), data["active_sessions"])
	modelInfo := data["models"].(map[string]any)
	assert.Equal(t, "stub", modelInfo["stt_vendor"])
	assert.Equal(t, false, modelInfo["tts_loaded"])
	caps := data["capabilities"].(map[string]any)
	assert.Contains(t, caps["languages"], "zh")
}

func TestVoiceDisabled(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.get("/ws/voice?token="+s.token, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "VOICE_DISABLED", decode(t, w)["error"])

	w = s.get("/api/voice/info", s.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["data"].(map[string]any)["enabled"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &pipeline.Models{STT: stubSTT{}})
	w := s.get("/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), "lingvoice_active_sessions")
}

func TestVoiceWebsocket_TokenAuth(t *testing.T) {
	s := newTestServer(t, &pipeline.Models{STT: stubSTT{}})
	server := httptest.NewServer(s.engine)
	defer server.Close()
	base := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/voice"

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+s.token, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"status"`)

	bad, _, err := websocket.DefaultDialer.Dial(base+"?token=forged-token", nil)
	require.NoError(t, err)
	defer bad.Close()
	require.NoError(t, bad.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = bad.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, 1008), "got %v", err)
}
