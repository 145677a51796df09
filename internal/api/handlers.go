package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/logging"
	"github.com/aidenletourneau/forcemotion/internal/models"
	"github.com/aidenletourneau/forcemotion/internal/preset"
	"github.com/aidenletourneau/forcemotion/internal/registry"
	"github.com/aidenletourneau/forcemotion/internal/relay"
	"github.com/aidenletourneau/forcemotion/internal/store"
	"github.com/go-chi/chi/v5"
)

const timeLayout = "2006-01-02 15:04:05"

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// allowPost sets CORS headers and answers preflight requests. It returns false when the
// request has been fully handled.
func allowPost(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	// Handle preflight OPTIONS request
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	return true
}

// ClientResponse represents a relay connection in the API response
type ClientResponse struct {
	ID          string `json:"id"`
	RemoteAddr  string `json:"remote_addr"`
	ConnectedAt string `json:"connected_at"`
}

// HandleGetClients returns all connected relay clients
func HandleGetClients(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		clients := reg.GetAll()
		response := make([]ClientResponse, 0, len(clients))
		for _, c := range clients {
			response = append(response, ClientResponse{
				ID:          c.ID,
				RemoteAddr:  c.RemoteAddr,
				ConnectedAt: c.ConnectedAt.Format(timeLayout),
			})
		}
		writeJSON(w, response)
	}
}

// StateResponse is the last configuration relayed by the hub
type StateResponse struct {
	Config    models.SimulationConfig `json:"config"`
	UpdatedAt string                  `json:"updated_at"`
}

// HandleGetState returns the last relayed snapshot
func HandleGetState(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		cfg, updated, ok := hub.Latest()
		if !ok {
			http.Error(w, "No state relayed yet", http.StatusNotFound)
			return
		}
		writeJSON(w, StateResponse{Config: cfg, UpdatedAt: updated.Format(timeLayout)})
	}
}

// HandleGetLogs returns log entries, optionally filtered with ?level=
func HandleGetLogs(logStore *logging.LogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if level := r.URL.Query().Get("level"); level != "" {
			writeJSON(w, logStore.GetByLevel(level))
			return
		}
		writeJSON(w, logStore.GetAll())
	}
}

// StoredPresetResponse represents a stored preset file in API response
type StoredPresetResponse struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Presets   []string `json:"presets"`
	CreatedAt string   `json:"created_at"`
}

// PresetFileResponse is a stored preset file including its YAML
type PresetFileResponse struct {
	StoredPresetResponse
	YAMLContent string `json:"yaml_content"`
}

func describe(f store.StoredPresetFile) StoredPresetResponse {
	resp := StoredPresetResponse{
		ID:        f.ID,
		Name:      f.Name,
		Presets:   []string{},
		CreatedAt: f.CreatedAt.Format(timeLayout),
	}
	// Stored files were validated on upload
	if presets, err := preset.Parse([]byte(f.YAMLContent)); err == nil {
		for _, p := range presets {
			resp.Presets = append(resp.Presets, p.Name)
		}
	}
	return resp
}

// HandleUploadPresets validates an uploaded YAML preset file and saves it to the database
func HandleUploadPresets(manager *preset.Manager, relayStore *store.RelayStore, logStore *logging.LogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowPost(w, r, http.MethodPost) {
			return
		}

		// Parse multipart form (max 10MB)
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("presets")
		if err != nil {
			http.Error(w, "No file uploaded or invalid form field: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()

		filename := strings.ToLower(header.Filename)
		if !strings.HasSuffix(filename, ".yaml") && !strings.HasSuffix(filename, ".yml") {
			http.Error(w, "File must be a YAML file (.yaml or .yml)", http.StatusBadRequest)
			return
		}

		fileBytes, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Failed to read file: "+err.Error(), http.StatusInternalServerError)
			return
		}

		// Validate by loading it
		if err := manager.LoadFromBytes(fileBytes); err != nil {
			logStore.LogAndStore(logging.LevelError, "Failed to validate uploaded presets: %v", err)
			http.Error(w, "Failed to validate presets: "+err.Error(), http.StatusBadRequest)
			return
		}

		id, err := relayStore.SavePresetFile(header.Filename, string(fileBytes))
		if err != nil {
			logStore.LogAndStore(logging.LevelError, "Failed to save presets to database: %v", err)
			http.Error(w, "Failed to save presets: "+err.Error(), http.StatusInternalServerError)
			return
		}

		stored, err := relayStore.GetPresetFileByID(id)
		if err != nil {
			http.Error(w, "Failed to retrieve saved presets: "+err.Error(), http.StatusInternalServerError)
			return
		}

		logStore.LogAndStore(logging.LevelInfo, "Preset file uploaded: %s (ID: %d, %d presets)", stored.Name, id, len(manager.List()))
		writeJSON(w, describe(*stored))
	}
}

// HandleGetPresets returns all stored preset files
func HandleGetPresets(relayStore *store.RelayStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		files, err := relayStore.GetAllPresetFiles()
		if err != nil {
			http.Error(w, "Failed to retrieve presets: "+err.Error(), http.StatusInternalServerError)
			return
		}

		response := make([]StoredPresetResponse, len(files))
		for i, f := range files {
			response[i] = describe(f)
		}
		writeJSON(w, response)
	}
}

func presetFileFromURL(w http.ResponseWriter, r *http.Request, relayStore *store.RelayStore) (*store.StoredPresetFile, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid preset file ID", http.StatusBadRequest)
		return nil, false
	}

	f, err := relayStore.GetPresetFileByID(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Preset file not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Failed to retrieve preset file: "+err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return f, true
}

// HandleGetPresetFile returns the full YAML content of a preset file
func HandleGetPresetFile(relayStore *store.RelayStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		f, ok := presetFileFromURL(w, r, relayStore)
		if !ok {
			return
		}
		writeJSON(w, PresetFileResponse{StoredPresetResponse: describe(*f), YAMLContent: f.YAMLContent})
	}
}

// HandleDeletePresetFile removes a stored preset file
func HandleDeletePresetFile(relayStore *store.RelayStore, logStore *logging.LogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowPost(w, r, http.MethodDelete) {
			return
		}

		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "Invalid preset file ID", http.StatusBadRequest)
			return
		}

		if err := relayStore.DeletePresetFile(id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "Preset file not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to delete preset file: "+err.Error(), http.StatusInternalServerError)
			return
		}

		logStore.LogAndStore(logging.LevelInfo, "Preset file deleted (ID: %d)", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ActivateResponse reports a preset pushed to every client
type ActivateResponse struct {
	Name      string                  `json:"name"`
	Config    models.SimulationConfig `json:"config"`
	Delivered int                     `json:"delivered"`
	SentAt    string                  `json:"sent_at"`
}

// HandleActivatePreset loads a stored preset file and broadcasts one of its presets.
// ?name= selects the preset; the first preset in the file is used when it is omitted.
func HandleActivatePreset(manager *preset.Manager, relayStore *store.RelayStore, hub *relay.Hub, logStore *logging.LogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowPost(w, r, http.MethodPost) {
			return
		}

		f, ok := presetFileFromURL(w, r, relayStore)
		if !ok {
			return
		}

		if err := manager.LoadFromBytes([]byte(f.YAMLContent)); err != nil {
			logStore.LogAndStore(logging.LevelError, "Failed to load presets from database: %v", err)
			http.Error(w, "Failed to load presets: "+err.Error(), http.StatusInternalServerError)
			return
		}

		name := r.URL.Query().Get("name")
		if name == "" {
			name = manager.List()[0].Name
		}
		p, err := manager.Get(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		delivered, err := hub.Publish(p.Config)
		if err != nil {
			logStore.LogAndStore(logging.LevelError, "Failed to publish preset %s: %v", p.Name, err)
			http.Error(w, "Failed to publish preset: "+err.Error(), http.StatusInternalServerError)
			return
		}

		logStore.LogAndStore(logging.LevelInfo, "Preset activated: %s from %s (%d clients)", p.Name, f.Name, delivered)
		writeJSON(w, ActivateResponse{
			Name:      p.Name,
			Config:    p.Config,
			Delivered: delivered,
			SentAt:    time.Now().Format(timeLayout),
		})
	}
}
