package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Detector.ConfidenceThreshold != 0.25 {
		t.Errorf("Expected confidence threshold 0.25, got %f", cfg.Detector.ConfidenceThreshold)
	}
	if cfg.Association.OverlapThreshold != 0.30 {
		t.Errorf("Expected overlap threshold 0.30, got %f", cfg.Association.OverlapThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Remote.SourceFolderID = "src-folder"
	cfg.Association.Mode = "iou"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Remote.SourceFolderID != "src-folder" || loaded.Association.Mode != "iou" {
		t.Errorf("Loaded config does not match saved one: %+v", loaded)
	}
}

func TestLoadFromFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"source_dir": "/in", "detector": {"backend": "llamacpp"}}`), 0644)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SourceDir != "/in" || cfg.Detector.Backend != "llamacpp" {
		t.Errorf("Expected file values to be applied: %+v", cfg)
	}
	if cfg.Detector.ConfidenceThreshold != 0.25 || cfg.Output.JPEGQuality != 90 {
		t.Errorf("Expected defaults for missing keys: %+v", cfg)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DestDir != Default().DestDir {
		t.Errorf("Expected default dest dir, got %s", cfg.DestDir)
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"source_dir": `), 0644)
	if _, err := Load(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	os.WriteFile(filepath.Join(dir, ".env"), []byte("HELMET_REMOTE_DEST_FOLDER_ID=from-dotenv\n"), 0644)
	t.Setenv("HELMET_SOURCE_DIR", "/env/in")
	t.Setenv("HELMET_OVERLAP_THRESHOLD", "0.4")
	t.Setenv("HELMET_INTERACTIVE", "false")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	os.Unsetenv("HELMET_REMOTE_DEST_FOLDER_ID")

	if cfg.SourceDir != "/env/in" {
		t.Errorf("Expected source dir from env, got %s", cfg.SourceDir)
	}
	if cfg.Association.OverlapThreshold != 0.4 {
		t.Errorf("Expected overlap threshold 0.4, got %f", cfg.Association.OverlapThreshold)
	}
	if cfg.Remote.Interactive {
		t.Error("Expected interactive disabled from env")
	}
	if cfg.Remote.DestFolderID != "from-dotenv" {
		t.Errorf("Expected dest folder from .env, got %q", cfg.Remote.DestFolderID)
	}
}

func TestApplyEnvInvalidNumber(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HELMET_CONFIDENCE_THRESHOLD", "high")
	if err := Default().ApplyEnv(); err == nil {
		t.Error("Expected error for non-numeric threshold")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"confidence above 1", func(c *Config) { c.Detector.ConfidenceThreshold = 1.2 }},
		{"zero confidence", func(c *Config) { c.Detector.ConfidenceThreshold = 0 }},
		{"overlap equal 1", func(c *Config) { c.Association.OverlapThreshold = 1 }},
		{"unknown mode", func(c *Config) { c.Association.Mode = "union" }},
		{"unknown detector", func(c *Config) { c.Detector.Backend = "yolo" }},
		{"onnx without model", func(c *Config) { c.Detector.Backend = "onnx" }},
		{"unknown remote", func(c *Config) { c.Remote.Backend = "s3" }},
		{"jpeg quality", func(c *Config) { c.Output.JPEGQuality = 0 }},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.modify(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestValidateRemoteAndArchive(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateRemote(); err == nil {
		t.Error("Expected error without folder ids")
	}
	cfg.Remote.SourceFolderID, cfg.Remote.DestFolderID = "a", "b"
	if err := cfg.ValidateRemote(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	cfg.Remote.Backend = "fs"
	if err := cfg.ValidateRemote(); err == nil {
		t.Error("Expected error for fs backend without root")
	}

	cfg.SourceDir = "/data/in"
	if got := cfg.ArchivePath(); got != filepath.Join("/data/in", "archived") {
		t.Errorf("Unexpected archive path %s", got)
	}
}
