package config

import (
	"os"
	"path/filepath"
	"testing"
)

// Test 内存源与取值
func TestMapSourceAndGetters(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddMap(map[string]any{
			"app.name":    "demo",
			"app.port":    8080,
			"app.debug":   true,
			"plain_value": "x",
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if cfg.Get("app.name") != "demo" {
		t.Errorf("Expected demo, got %q", cfg.Get("app.name"))
	}
	if port, err := cfg.GetInt("app.port"); err != nil || port != 8080 {
		t.Errorf("Expected 8080, got %d (%v)", port, err)
	}
	if debug, err := cfg.GetBool("app.debug"); err != nil || !debug {
		t.Errorf("Expected true, got %v (%v)", debug, err)
	}
	if cfg.GetWithDefault("missing", "fallback") != "fallback" {
		t.Error("Expected fallback for missing key")
	}
}

// Test YAML 文件源与覆盖顺序
func TestYAMLFileSourceAndOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	content := []byte("app:\n  name: from-yaml\n  port: 9000\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewConfigurationBuilder().
		AddYAMLFile(path, false).
		AddMap(map[string]any{"app.port": 9001}). // 后加的源覆盖
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if cfg.Get("app.name") != "from-yaml" {
		t.Errorf("Expected from-yaml, got %q", cfg.Get("app.name"))
	}
	if port, _ := cfg.GetInt("app.port"); port != 9001 {
		t.Errorf("Later source must win, got %d", port)
	}

	// 可选缺失文件不报错
	if _, err := NewConfigurationBuilder().AddYAMLFile(filepath.Join(dir, "absent.yaml"), true).Build(); err != nil {
		t.Errorf("Optional missing file must not fail: %v", err)
	}
}

// Test 环境变量源
func TestEnvSource(t *testing.T) {
	t.Setenv("IOCTEST_DATABASE_DSN", "sqlite://mem")

	cfg, err := NewConfigurationBuilder().AddEnvironment("IOCTEST").Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if cfg.Get("database.dsn") != "sqlite://mem" {
		t.Errorf("Expected env mapping, got %q", cfg.Get("database.dsn"))
	}
}

// Test 配置节与绑定
func TestSectionAndBind(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddMap(map[string]any{
			"server.host": "localhost",
			"server.port": 7070,
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	section := cfg.GetSection("server")
	if section.Get("host") != "localhost" {
		t.Errorf("Section lookup failed, got %q", section.Get("host"))
	}

	type ServerOptions struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	}
	var opts ServerOptions
	if err := cfg.Bind("server", &opts); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if opts.Host != "localhost" || opts.Port != 7070 {
		t.Errorf("Bind mismatch: %+v", opts)
	}

	all := section.GetAll()
	if len(all) != 2 {
		t.Errorf("Expected 2 section keys, got %v", all)
	}
}
