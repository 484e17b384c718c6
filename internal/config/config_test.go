package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mind-engage/viva/internal/config"
)

func TestDefaults(t *testing.T) {
	t.Setenv("VIVA_CONFIG", "")
	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != config.ModeOffline || cfg.HTTPAddr != ":8080" || cfg.DBDriver != "sqlite" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ImportMaxBytes != 50<<20 || cfg.ImportWorkers != 4 {
		t.Fatalf("import limits = %d, %d", cfg.ImportMaxBytes, cfg.ImportWorkers)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("VIVA_CONFIG", "")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CORS_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("IMPORT_WORKERS", "8")
	t.Setenv("EXPORT_STRICT", "true")

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.ImportWorkers != 8 || !cfg.ExportStrict {
		t.Fatalf("cfg = %+v", cfg)
	}
	if want := []string{"https://a.test", "https://b.test"}; !reflect.DeepEqual(cfg.CORSOrigins, want) {
		t.Fatalf("origins = %v", cfg.CORSOrigins)
	}
}

func TestYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viva.yaml")
	yaml := "DB_DRIVER: postgres\nHTTP_ADDR: \":7000\"\nCORS_ORIGINS:\n  - https://x.test\n  - https://y.test\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VIVA_CONFIG", path)
	t.Setenv("HTTP_ADDR", ":7001")

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBDriver != "postgres" {
		t.Fatalf("driver = %q", cfg.DBDriver)
	}
	if cfg.HTTPAddr != ":7001" {
		t.Fatalf("environment should win over the file, addr = %q", cfg.HTTPAddr)
	}
	if want := []string{"https://x.test", "https://y.test"}; !reflect.DeepEqual(cfg.CORSOrigins, want) {
		t.Fatalf("origins = %v", cfg.CORSOrigins)
	}

	t.Setenv("VIVA_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := config.FromEnv(); err == nil {
		t.Fatal("missing config file accepted")
	}
}
