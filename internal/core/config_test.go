package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("tcp", "", "")
	flags.String("ws", "", "")
	flags.IntP("max-turns", "n", -1, "")
	flags.IntP("timeout", "t", 300, "")
	return flags
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir(), testFlags())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Game.MaxTurns != -1 {
		t.Errorf("MaxTurns = %d, want -1", cfg.Game.MaxTurns)
	}
	if cfg.IdleTimeout() != 300*time.Second {
		t.Errorf("IdleTimeout = %v, want 300s", cfg.IdleTimeout())
	}
	if cfg.HandshakeTimeout() != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", cfg.HandshakeTimeout())
	}
	if cfg.Protocol.MaxFrameBytes != 1<<20 {
		t.Errorf("MaxFrameBytes = %d, want 1 MiB", cfg.Protocol.MaxFrameBytes)
	}
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	flags := testFlags()
	if err := flags.Parse([]string{"--tcp", "0.0.0.0:4000", "-n", "25", "-t", "60"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(t.TempDir(), flags)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TCPAddr != "0.0.0.0:4000" {
		t.Errorf("TCPAddr = %q, want 0.0.0.0:4000", cfg.TCPAddr)
	}
	if cfg.Game.MaxTurns != 25 {
		t.Errorf("MaxTurns = %d, want 25", cfg.Game.MaxTurns)
	}
	if cfg.IdleTimeout() != time.Minute {
		t.Errorf("IdleTimeout = %v, want 1m", cfg.IdleTimeout())
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("ws_addr: 127.0.0.1:8080\nlog_level: debug\ngame:\n  reconnect_grace: 120\ndatabase:\n  engine: sqlite\n  filename: games.db\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir, testFlags())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.WSAddr != "127.0.0.1:8080" {
		t.Errorf("WSAddr = %q", cfg.WSAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.ReconnectGrace() != 2*time.Minute {
		t.Errorf("ReconnectGrace = %v, want 2m", cfg.ReconnectGrace())
	}
	if cfg.Database.Engine != "sqlite" || cfg.Database.Filename != "games.db" {
		t.Errorf("database config = %+v", cfg.Database)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "no listener",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name:   "tcp only",
			mutate: func(c *Config) { c.TCPAddr = ":4000" },
		},
		{
			name:   "ws only",
			mutate: func(c *Config) { c.WSAddr = ":8080" },
		},
		{
			name: "bad database engine",
			mutate: func(c *Config) {
				c.TCPAddr = ":4000"
				c.Database.Engine = "oracle"
			},
			wantErr: true,
		},
		{
			name: "bad frame cap",
			mutate: func(c *Config) {
				c.TCPAddr = ":4000"
				c.Protocol.MaxFrameBytes = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Protocol.MaxFrameBytes = 1 << 20
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.Name = "sternd"
	cfg.Database.Username = "halma"
	cfg.Database.Password = "secret"
	cfg.Database.SSLMode = "disable"

	want := "host=localhost port=5432 dbname=sternd user=halma password=secret sslmode=disable"
	if got := cfg.DatabaseURL(); got != want {
		t.Errorf("DatabaseURL() = %q, want %q", got, want)
	}
}
