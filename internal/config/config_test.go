package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerDefaults(t *testing.T) {
	for _, key := range []string{"HOST", "PORT", "DATABASE_URL", "REDIS_URL", "LOG_CAPACITY", "SEND_BUFFER"} {
		t.Setenv(key, "")
	}

	cfg := LoadServer()
	if cfg.Addr() != "localhost:3000" {
		t.Errorf("Addr() = %q, want localhost:3000", cfg.Addr())
	}
	if cfg.RedisURL != "" || cfg.LogCapacity != 1000 || cfg.SendBuffer != 64 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadServerOverrides(t *testing.T) {
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "8080")
	t.Setenv("LOG_CAPACITY", "50")
	t.Setenv("SEND_BUFFER", "not-a-number")

	cfg := LoadServer()
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
	if cfg.LogCapacity != 50 {
		t.Errorf("LogCapacity = %d, want 50", cfg.LogCapacity)
	}
	if cfg.SendBuffer != 64 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.SendBuffer)
	}
}

func TestClientRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")

	want := DefaultClient()
	want.RelayURL = "ws://relay.example:9000/ws"
	want.ReconnectMax = 3 * time.Second
	if err := SaveClient(path, want); err != nil {
		t.Fatalf("SaveClient failed: %v", err)
	}

	got, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if got != want {
		t.Errorf("LoadClient() = %+v, want %+v", got, want)
	}
}

func TestLoadClientPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	if err := os.WriteFile(path, []byte("fps: 30\nreconnect_min: 1s\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if got.FPS != 30 || got.ReconnectMin != time.Second || got.History != 300 {
		t.Errorf("unexpected config: %+v", got)
	}
}

func TestClientValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Client)
		wantErr bool
	}{
		{"defaults", func(*Client) {}, false},
		{"zero fps", func(c *Client) { c.FPS = 0 }, true},
		{"inverted backoff", func(c *Client) { c.ReconnectMax = c.ReconnectMin / 2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultClient()
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadClientMissingFile(t *testing.T) {
	if _, err := LoadClient(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
