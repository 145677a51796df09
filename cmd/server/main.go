package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/aidenletourneau/forcemotion/internal/config"
	"github.com/aidenletourneau/forcemotion/internal/logging"
)

func main() {
	cfg := config.LoadServer()

	// Flags override the environment
	flag.StringVar(&cfg.Host, "host", cfg.Host, "Interface to bind")
	flag.StringVar(&cfg.Port, "port", cfg.Port, "Server port")
	flag.StringVar(&cfg.PresetFile, "presets", cfg.PresetFile, "Path to preset YAML file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newRelayServer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize relay: %v", err)
	}

	l, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		srv.Close()
		log.Fatalf("Server failed: %v", err)
	}

	srv.logStore.LogAndStore(logging.LevelInfo, "Relay starting on %s", cfg.Addr())
	srv.logStore.LogAndStore(logging.LevelInfo, "WebSocket endpoint: ws://%s/ws", cfg.Addr())

	err = serve(ctx, l, srv.router)
	srv.Close()
	if err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
