package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.MaxInflight != 64 {
		t.Errorf("max inflight = %d", cfg.Server.MaxInflight)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.Store.Backend)
	}
	if !cfg.Store.Migrate {
		t.Error("migrate should default on")
	}
	if cfg.Notify.Workers != 2 || cfg.Notify.QueueSize != 256 {
		t.Errorf("notify defaults: %+v", cfg.Notify)
	}
}

func TestTOMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.toml")
	data := `
[server]
addr = ":9090"
max_inflight = 8

[store]
backend = "postgres"
dsn = "postgres://u:p@db:5432/wallet"
max_conns = 12

[notify]
webhook_url = "https://hooks.example.com/wallet"

[auth]
admin_key_hash = "abc123"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.MaxInflight != 8 {
		t.Errorf("server: %+v", cfg.Server)
	}
	if cfg.Store.Backend != "postgres" || cfg.Store.MaxConns != 12 {
		t.Errorf("store: %+v", cfg.Store)
	}
	if cfg.Store.DSN != "postgres://u:p@db:5432/wallet" {
		t.Errorf("dsn = %q", cfg.Store.DSN)
	}
	if cfg.Notify.WebhookURL != "https://hooks.example.com/wallet" {
		t.Errorf("webhook = %q", cfg.Notify.WebhookURL)
	}
	if cfg.Auth.AdminKeyHash != "abc123" {
		t.Errorf("key hash = %q", cfg.Auth.AdminKeyHash)
	}
	// Untouched sections keep their defaults.
	if cfg.Store.SQLitePath != "wallet.db" {
		t.Errorf("sqlite path = %q", cfg.Store.SQLitePath)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.toml")
	if err := os.WriteFile(path, []byte("[server]\naddr = \":9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WALLET_HTTP_ADDR", ":7070")
	t.Setenv("WALLET_STORE_BACKEND", "sqlite")
	t.Setenv("WALLET_SQLITE_PATH", "/var/lib/wallet/wallet.db")
	t.Setenv("WALLET_HTTP_MAX_INFLIGHT", "5")
	t.Setenv("WALLET_DB_MIGRATE", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr = %q, env should win over file", cfg.Server.Addr)
	}
	if cfg.Server.MaxInflight != 5 {
		t.Errorf("max inflight = %d", cfg.Server.MaxInflight)
	}
	if cfg.Store.SQLitePath != "/var/lib/wallet/wallet.db" {
		t.Errorf("sqlite path = %q", cfg.Store.SQLitePath)
	}
	if cfg.Store.Migrate {
		t.Error("migrate should be off")
	}
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("WALLET_HTTP_MAX_INFLIGHT", "not-a-number")
	t.Setenv("WALLET_METRICS", "maybe")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.MaxInflight != 64 {
		t.Errorf("max inflight = %d, want default", cfg.Server.MaxInflight)
	}
	if !cfg.Server.Metrics {
		t.Error("metrics should keep default")
	}
}

func TestUnknownBackendRejected(t *testing.T) {
	t.Setenv("WALLET_STORE_BACKEND", "oracle")
	if _, err := Load(""); err == nil {
		t.Fatal("unknown backend should fail")
	}
}

func TestMissingConfigFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("missing explicit config file should fail")
	}
}
