package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/logging"
	"github.com/aidenletourneau/forcemotion/internal/models"
	"github.com/aidenletourneau/forcemotion/internal/preset"
	"github.com/aidenletourneau/forcemotion/internal/registry"
	"github.com/aidenletourneau/forcemotion/internal/relay"
	"github.com/aidenletourneau/forcemotion/internal/store"
	"github.com/go-chi/chi/v5"
)

const presetYAML = `
presets:
  - name: ice
    mass: 2
    force: 5
    friction: 0.02
  - name: crate
    mass: 8
    force: 40
    friction: 0.6
`

type fixture struct {
	router   http.Handler
	reg      *registry.Registry
	hub      *relay.Hub
	logStore *logging.LogStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	relayStore, err := store.NewRelayStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewRelayStore failed: %v", err)
	}
	t.Cleanup(func() { relayStore.Close() })

	logStore := logging.NewLogStore(100)
	reg := registry.NewRegistry(4)
	hub := relay.NewHub(reg, logStore)

	r := chi.NewRouter()
	r.Route("/api", Routes(Deps{
		Registry: reg,
		Hub:      hub,
		LogStore: logStore,
		Presets:  preset.NewManager(),
		Store:    relayStore,
	}))
	return &fixture{router: r, reg: reg, hub: hub, logStore: logStore}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("presets", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/presets/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestGetStateNotFoundUntilRelayed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	cfg := models.SimulationConfig{Mass: 2, Force: 10, Friction: 0.2, IsPlaying: true}
	f.hub.Restore(cfg, time.Now())

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp StateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Config != cfg {
		t.Errorf("config = %+v, want %+v", resp.Config, cfg)
	}
}

func TestGetClients(t *testing.T) {
	f := newFixture(t)
	c := f.reg.Register(nil)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/clients", nil))
	var resp []ClientResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp) != 1 || resp[0].ID != c.ID {
		t.Errorf("unexpected clients: %+v", resp)
	}
}

func TestGetLogsByLevel(t *testing.T) {
	f := newFixture(t)
	f.logStore.LogAndStore(logging.LevelInfo, "hello")
	f.logStore.LogAndStore(logging.LevelWarning, "careful")

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/logs?level=warning", nil))
	var entries []logging.LogEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Message != "careful" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestUploadAndActivatePreset(t *testing.T) {
	f := newFixture(t)
	client := f.reg.Register(nil)

	rec := f.do(t, uploadRequest(t, "lab.yaml", presetYAML))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d %s", rec.Code, rec.Body.String())
	}
	var uploaded StoredPresetResponse
	if err := json.NewDecoder(rec.Body).Decode(&uploaded); err != nil {
		t.Fatal(err)
	}
	if uploaded.Name != "lab.yaml" || len(uploaded.Presets) != 2 {
		t.Fatalf("unexpected upload response: %+v", uploaded)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/presets", nil))
	var list []StoredPresetResponse
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 || list[0].ID != uploaded.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/presets/%d", uploaded.ID), nil))
	var file PresetFileResponse
	json.NewDecoder(rec.Body).Decode(&file)
	if file.YAMLContent != presetYAML {
		t.Errorf("YAML content not returned verbatim")
	}

	url := fmt.Sprintf("/api/presets/%d/activate?name=crate", uploaded.ID)
	rec = f.do(t, httptest.NewRequest(http.MethodPost, url, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("activate failed: %d %s", rec.Code, rec.Body.String())
	}
	var activated ActivateResponse
	json.NewDecoder(rec.Body).Decode(&activated)
	if activated.Name != "crate" || activated.Delivered != 1 {
		t.Errorf("unexpected activate response: %+v", activated)
	}

	select {
	case data := <-client.Send():
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		cfg, err := models.DecodeConfig(msg.Payload)
		if err != nil || msg.Type != models.TypeStateUpdated || cfg.Force != 40 {
			t.Errorf("unexpected broadcast %+v (%v)", msg, err)
		}
	default:
		t.Fatal("client did not receive the preset")
	}

	if cfg, _, ok := f.hub.Latest(); !ok || cfg.Mass != 8 {
		t.Errorf("hub should remember the activated preset, got %+v", cfg)
	}
}

func TestActivateUnknownPreset(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, uploadRequest(t, "lab.yml", presetYAML))
	var uploaded StoredPresetResponse
	json.NewDecoder(rec.Body).Decode(&uploaded)

	url := fmt.Sprintf("/api/presets/%d/activate?name=missing", uploaded.ID)
	if rec := f.do(t, httptest.NewRequest(http.MethodPost, url, nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown preset, got %d", rec.Code)
	}
	if rec := f.do(t, httptest.NewRequest(http.MethodPost, "/api/presets/999/activate", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown file, got %d", rec.Code)
	}
	if rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/presets/abc", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestUploadRejectsInvalidFiles(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		filename string
		content  string
	}{
		{"wrong extension", "presets.txt", presetYAML},
		{"no presets", "empty.yaml", "presets: []"},
		{"broken yaml", "broken.yaml", "presets: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, uploadRequest(t, tt.filename, tt.content))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestDeletePresetFile(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, uploadRequest(t, "lab.yaml", presetYAML))
	var uploaded StoredPresetResponse
	json.NewDecoder(rec.Body).Decode(&uploaded)

	url := fmt.Sprintf("/api/presets/%d", uploaded.ID)
	if rec := f.do(t, httptest.NewRequest(http.MethodDelete, url, nil)); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := f.do(t, httptest.NewRequest(http.MethodDelete, url, nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestPresetRoutesDisabledWithoutStore(t *testing.T) {
	logStore := logging.NewLogStore(10)
	reg := registry.NewRegistry(4)
	r := chi.NewRouter()
	r.Route("/api", Routes(Deps{Registry: reg, Hub: relay.NewHub(reg, logStore), LogStore: logStore}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/presets", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a store, got %d", rec.Code)
	}
}
