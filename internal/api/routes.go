package api

import (
	"github.com/aidenletourneau/forcemotion/internal/logging"
	"github.com/aidenletourneau/forcemotion/internal/preset"
	"github.com/aidenletourneau/forcemotion/internal/registry"
	"github.com/aidenletourneau/forcemotion/internal/relay"
	"github.com/aidenletourneau/forcemotion/internal/store"
	"github.com/go-chi/chi/v5"
)

// Deps are the components the REST API reads from
type Deps struct {
	Registry *registry.Registry
	Hub      *relay.Hub
	LogStore *logging.LogStore
	Presets  *preset.Manager
	Store    *store.RelayStore // nil disables the preset file endpoints
}

// Routes returns the /api route tree, for use with chi.Router.Route
func Routes(d Deps) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/clients", HandleGetClients(d.Registry))
		r.Get("/state", HandleGetState(d.Hub))
		r.Get("/logs", HandleGetLogs(d.LogStore))

		if d.Store == nil {
			return
		}
		r.Get("/presets", HandleGetPresets(d.Store))
		r.Get("/presets/{id}", HandleGetPresetFile(d.Store))
		r.Delete("/presets/{id}", HandleDeletePresetFile(d.Store, d.LogStore))
		r.Post("/presets/upload", HandleUploadPresets(d.Presets, d.Store, d.LogStore))
		r.Post("/presets/{id}/activate", HandleActivatePreset(d.Presets, d.Store, d.Hub, d.LogStore))
	}
}
