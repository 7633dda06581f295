package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skinvault.toml")
	content := `
[service]
http_port = 4000

[backend]
environment = "local"

[chain]
rpc_url = "http://127.0.0.1:9000"
package_id = "0xpkg"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.HTTPPort != 4000 {
		t.Fatalf("expected port 4000, got %d", cfg.Service.HTTPPort)
	}
	if cfg.Backend.Environment != "local" {
		t.Fatalf("expected local environment, got %s", cfg.Backend.Environment)
	}
	if cfg.Service.HMACClockSkewSecs != 60 {
		t.Fatalf("expected default skew, got %d", cfg.Service.HMACClockSkewSecs)
	}
	if cfg.Backend.AdvisoryEpochs != 5 {
		t.Fatalf("expected default advisory epochs, got %d", cfg.Backend.AdvisoryEpochs)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skinvault.toml")
	content := `
[chain]
rpc_url = "http://127.0.0.1:9000"
package_id = "0xpkg"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CHAIN_PACKAGE_ID", "0xoverride")
	t.Setenv("API_HTTP_PORT", "5000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain.PackageID != "0xoverride" {
		t.Fatalf("expected env override, got %s", cfg.Chain.PackageID)
	}
	if cfg.Service.HTTPPort != 5000 {
		t.Fatalf("expected env port 5000, got %d", cfg.Service.HTTPPort)
	}
}

func TestLoadRequiresChainSettings(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error when chain settings are absent")
	}
}
