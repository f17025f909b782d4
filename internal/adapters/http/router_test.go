package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dkeye/Cast/internal/adapters/signal"
	"github.com/dkeye/Cast/internal/app"
	"github.com/dkeye/Cast/internal/app/orch"
	"github.com/dkeye/Cast/internal/config"
	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/media"
	"github.com/dkeye/Cast/internal/media/mediamock"
	"github.com/gin-gonic/gin"
	"go.uber.org/mock/gomock"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	static := t.TempDir()
	if err := os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>cast</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}

	eng := mediamock.NewMockEngine(gomock.NewController(t))
	eng.EXPECT().RouterCapabilities().Return(media.RtpCapabilities{
		Codecs: []media.RtpCodecCapability{{Kind: media.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2}},
	}).AnyTimes()

	reg := app.NewRegistry()
	hub := app.NewHub(reg, app.SimplePolicy{})
	o := &orch.Orchestrator{Registry: reg, Engine: eng}
	ctl := signal.NewSignalWSController(o, hub, nil, signal.Limits{})
	cfg := &config.Config{Mode: "test", StaticPath: static, Secret: "secret"}
	return SetupRouter(context.Background(), cfg, ctl)
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(newRouter(t), "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Sessions != 0 {
		t.Fatalf("body = %+v", body)
	}
}

func TestCapabilities(t *testing.T) {
	rec := get(newRouter(t), "/api/capabilities")
	var caps media.RtpCapabilities
	if err := json.Unmarshal(rec.Body.Bytes(), &caps); err != nil {
		t.Fatal(err)
	}
	if len(caps.Codecs) != 1 || caps.Codecs[0].MimeType != "audio/opus" {
		t.Fatalf("caps = %+v", caps)
	}
}

func TestClientTokenCookie(t *testing.T) {
	rec := get(newRouter(t), "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cast") {
		t.Fatalf("index: %d %q", rec.Code, rec.Body.String())
	}
	found := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "ct" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("ct cookie not set")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(newRouter(t), "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cast_sessions") {
		t.Fatalf("metrics: %d %q", rec.Code, rec.Body.String())
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	rec := get(newRouter(t), "/ws")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSessionsListsOpenSessions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	eng := mediamock.NewMockEngine(gomock.NewController(t))
	reg := app.NewRegistry()
	hub := app.NewHub(reg, app.SimplePolicy{})
	o := &orch.Orchestrator{Registry: reg, Engine: eng}
	o.OpenSession("s1", "browser-1", nil, func() {})
	ctl := signal.NewSignalWSController(o, hub, nil, signal.Limits{})
	r := SetupRouter(context.Background(), &config.Config{Mode: "test", StaticPath: t.TempDir()}, ctl)

	var infos []core.SessionInfo
	if err := json.Unmarshal(get(r, "/api/sessions").Body.Bytes(), &infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ID != "s1" || infos[0].ClientToken != "browser-1" || infos[0].Publish != "Idle" {
		t.Fatalf("sessions = %+v", infos)
	}
}
