package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPassesValidate(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	t.Setenv("API_LISTEN_ADDR", ":9999")
	t.Setenv("MONITOR_CAP_PER_OWNER", "9")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.APIListenAddr != ":9999" {
		t.Errorf("expected env override for APIListenAddr, got %q", c.APIListenAddr)
	}
	if c.MonitorCapPerOwner != 9 {
		t.Errorf("expected env override for MonitorCapPerOwner, got %d", c.MonitorCapPerOwner)
	}
}

func TestLoadRejectsNonPositiveTimeout(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for zero request timeout")
	}
}

func TestLoadFileAppliesYAMLBaseUnderEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "duskwatch.yaml")
	contents := "anon_proxy_addr: 10.0.0.1:9050\napi_listen_addr: \":7000\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	t.Setenv("DUSKWATCH_CONFIG_FILE", path)
	t.Setenv("API_LISTEN_ADDR", ":8888")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.AnonProxyAddr != "10.0.0.1:9050" {
		t.Errorf("expected YAML file value for AnonProxyAddr, got %q", c.AnonProxyAddr)
	}
	if c.APIListenAddr != ":8888" {
		t.Errorf("expected env var to win over YAML file, got %q", c.APIListenAddr)
	}
}
