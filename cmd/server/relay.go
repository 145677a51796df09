package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/aidenletourneau/forcemotion/internal/api"
	"github.com/aidenletourneau/forcemotion/internal/bridge"
	"github.com/aidenletourneau/forcemotion/internal/config"
	"github.com/aidenletourneau/forcemotion/internal/logging"
	"github.com/aidenletourneau/forcemotion/internal/preset"
	"github.com/aidenletourneau/forcemotion/internal/queue"
	"github.com/aidenletourneau/forcemotion/internal/registry"
	"github.com/aidenletourneau/forcemotion/internal/relay"
	"github.com/aidenletourneau/forcemotion/internal/store"
	"github.com/aidenletourneau/forcemotion/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 5 * time.Second

// relayServer wires the relay components together
type relayServer struct {
	logStore  *logging.LogStore
	registry  *registry.Registry
	hub       *relay.Hub
	presets   *preset.Manager
	store     *store.RelayStore    // nil without DATABASE_URL
	snapshots *queue.SnapshotQueue // nil without DATABASE_URL
	bridge    *bridge.Bridge       // nil without REDIS_URL
	router    http.Handler
}

func newRelayServer(ctx context.Context, cfg *config.Server) (*relayServer, error) {
	s := &relayServer{
		logStore: logging.NewLogStore(cfg.LogCapacity),
		registry: registry.NewRegistry(cfg.SendBuffer),
		presets:  preset.NewManager(),
	}
	s.hub = relay.NewHub(s.registry, s.logStore)

	// Persistence is optional; without it the relay forgets its snapshot on restart
	if cfg.DatabaseURL != "" {
		relayStore, err := store.NewRelayStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.store = relayStore

		if snap, err := relayStore.LatestSnapshot(); err == nil {
			s.hub.Restore(snap.Config, snap.UpdatedAt)
			s.logStore.LogAndStore(logging.LevelInfo, "Restored snapshot from %s (%s)", snap.Source, snap.UpdatedAt.Format("2006-01-02 15:04:05"))
		} else if !errors.Is(err, store.ErrNotFound) {
			s.logStore.LogAndStore(logging.LevelWarning, "Failed to restore snapshot: %v", err)
		}

		// Writes go through a queue so slow disks never stall the relay
		s.snapshots = queue.NewSnapshotQueue(cfg.QueueSize)
		s.snapshots.StartProcessor(func(q queue.QueuedSnapshot) {
			if err := relayStore.SaveSnapshot(q.SourceID, q.Config, q.Timestamp); err != nil {
				s.logStore.LogAndStore(logging.LevelError, "Failed to persist snapshot: %v", err)
			}
		})
		s.hub.SetPersister(s.snapshots)
	}

	if cfg.RedisURL != "" {
		rdb, err := bridge.Connect(cfg.RedisURL)
		if err != nil {
			s.logStore.LogAndStore(logging.LevelWarning, "Redis unavailable, running standalone: %v", err)
		} else {
			s.bridge = bridge.New(rdb, cfg.RedisChan, s.logStore)
			s.hub.SetPublisher(s.bridge)
			s.bridge.Start(ctx, s.hub)
		}
	}

	// Load initial presets (optional, can be overridden via API)
	if cfg.PresetFile != "" {
		if err := s.presets.LoadFile(cfg.PresetFile); err != nil {
			log.Printf("Warning: Failed to load initial presets: %v", err)
		} else {
			s.logStore.LogAndStore(logging.LevelInfo, "Loaded initial presets from: %s", cfg.PresetFile)
		}
	}

	s.router = s.routes(cfg.StaticDir)
	return s, nil
}

func (s *relayServer) routes(staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ws", websocket.HandleWebSocket(s.registry, s.hub, s.logStore))
	r.Route("/api", api.Routes(api.Deps{
		Registry: s.registry,
		Hub:      s.hub,
		LogStore: s.logStore,
		Presets:  s.presets,
		Store:    s.store,
	}))

	// Everything else belongs to the presentation layer
	if staticDir != "" {
		if _, err := os.Stat(staticDir); err != nil {
			log.Printf("Warning: static directory unavailable: %v", err)
		}
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	} else {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("Force & Motion relay"))
		})
	}
	return r
}

// Close drains queued snapshots and releases the database and Redis connections
func (s *relayServer) Close() {
	if s.snapshots != nil {
		s.snapshots.Close()
		<-s.snapshots.Done()
	}
	if s.bridge != nil {
		s.bridge.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
	s.logStore.LogAndStore(logging.LevelInfo, "Relay stopped")
}

// serve handles HTTP on l until ctx is cancelled, then shuts down gracefully.
// Hijacked websocket connections are not waited for.
func serve(ctx context.Context, l net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
