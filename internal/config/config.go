package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	SourceDir  string `json:"source_dir"`
	DestDir    string `json:"dest_dir"`
	StagingDir string `json:"staging_dir"`
	ArchiveDir string `json:"archive_dir"`

	Remote      RemoteConfig      `json:"remote"`
	Detector    DetectorConfig    `json:"detector"`
	Association AssociationConfig `json:"association"`
	Output      OutputConfig      `json:"output"`
	Log         LogConfig         `json:"log"`
}

// RemoteConfig holds the remote store settings
type RemoteConfig struct {
	Backend         string `json:"backend"`
	SourceFolderID  string `json:"source_folder_id"`
	DestFolderID    string `json:"dest_folder_id"`
	CredentialsFile string `json:"credentials_file"`
	TokenFile       string `json:"token_file"`
	Interactive     bool   `json:"interactive"`
	FSRoot          string `json:"fs_root"`
}

// DetectorConfig holds configuration for the object detector
type DetectorConfig struct {
	Backend             string   `json:"backend"`
	URL                 string   `json:"url"`
	Model               string   `json:"model"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	SendFormat          string   `json:"send_format"`
	SendSize            int      `json:"send_size"`
	SendQuality         int      `json:"send_quality"`
	ONNXModel           string   `json:"onnx_model"`
	InputSize           int      `json:"input_size"`
	Labels              []string `json:"labels"`
	NMSThreshold        float64  `json:"nms_threshold"`
}

// AssociationConfig holds configuration for head/helmet matching
type AssociationConfig struct {
	OverlapThreshold float64 `json:"overlap_threshold"`
	Mode             string  `json:"mode"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	JPEGQuality int `json:"jpeg_quality"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level    string `json:"level"`
	Encoding string `json:"encoding"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		SourceDir:  "./data/input",
		DestDir:    "./data/output",
		StagingDir: "",
		ArchiveDir: "",
		Remote: RemoteConfig{
			Backend:         "gdrive",
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
			Interactive:     true,
		},
		Detector: DetectorConfig{
			Backend:             "ollama",
			URL:                 "http://localhost:11434",
			Model:               "qwen2.5vl:7b",
			ConfidenceThreshold: 0.25,
			SendFormat:          "jpg",
			SendSize:            1280,
			SendQuality:         90,
			InputSize:           640,
			Labels:              []string{"head", "helmet"},
			NMSThreshold:        0.45,
		},
		Association: AssociationConfig{
			OverlapThreshold: 0.30,
			Mode:             "helmet",
		},
		Output: OutputConfig{
			JPEGQuality: 90,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Load reads the JSON file at filename when it exists, falls back to the
// defaults otherwise, and then applies environment overrides.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		loaded, err := LoadFromFile(filename)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFromFile loads configuration from a JSON file. Missing keys keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays HELMET_* environment variables, reading a .env file in
// the working directory first when one is present.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	setString(&c.SourceDir, "HELMET_SOURCE_DIR")
	setString(&c.DestDir, "HELMET_DEST_DIR")
	setString(&c.StagingDir, "HELMET_STAGING_DIR")
	setString(&c.ArchiveDir, "HELMET_ARCHIVE_DIR")

	setString(&c.Remote.Backend, "HELMET_REMOTE_BACKEND")
	setString(&c.Remote.SourceFolderID, "HELMET_REMOTE_SOURCE_FOLDER_ID")
	setString(&c.Remote.DestFolderID, "HELMET_REMOTE_DEST_FOLDER_ID")
	setString(&c.Remote.CredentialsFile, "HELMET_CREDENTIALS_FILE")
	setString(&c.Remote.TokenFile, "HELMET_TOKEN_FILE")
	setString(&c.Remote.FSRoot, "HELMET_REMOTE_FS_ROOT")

	setString(&c.Detector.Backend, "HELMET_DETECTOR_BACKEND")
	setString(&c.Detector.URL, "HELMET_DETECTOR_URL")
	setString(&c.Detector.Model, "HELMET_DETECTOR_MODEL")
	setString(&c.Detector.ONNXModel, "HELMET_ONNX_MODEL")
	setString(&c.Log.Level, "HELMET_LOG_LEVEL")

	if err := setBool(&c.Remote.Interactive, "HELMET_INTERACTIVE"); err != nil {
		return err
	}
	if err := setFloat(&c.Detector.ConfidenceThreshold, "HELMET_CONFIDENCE_THRESHOLD"); err != nil {
		return err
	}
	return setFloat(&c.Association.OverlapThreshold, "HELMET_OVERLAP_THRESHOLD")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Detector.ConfidenceThreshold <= 0 || c.Detector.ConfidenceThreshold > 1 {
		return fmt.Errorf("detector.confidence_threshold must be in (0,1]")
	}

	if c.Association.OverlapThreshold < 0 || c.Association.OverlapThreshold >= 1 {
		return fmt.Errorf("association.overlap_threshold must be in [0,1)")
	}

	switch c.Association.Mode {
	case "helmet", "iou":
	default:
		return fmt.Errorf("association.mode must be helmet or iou")
	}

	switch c.Detector.Backend {
	case "ollama", "llamacpp", "onnx":
	default:
		return fmt.Errorf("detector.backend must be ollama, llamacpp or onnx")
	}

	if c.Detector.Backend == "onnx" && c.Detector.ONNXModel == "" {
		return fmt.Errorf("detector.onnx_model is required for the onnx backend")
	}

	switch c.Remote.Backend {
	case "gdrive", "fs":
	default:
		return fmt.Errorf("remote.backend must be gdrive or fs")
	}

	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality must be between 1 and 100")
	}

	return nil
}

// ValidateRemote checks the settings needed for a remote sync run
func (c *Config) ValidateRemote() error {
	if c.Remote.SourceFolderID == "" || c.Remote.DestFolderID == "" {
		return fmt.Errorf("remote.source_folder_id and remote.dest_folder_id are required")
	}
	if c.Remote.Backend == "fs" && c.Remote.FSRoot == "" {
		return fmt.Errorf("remote.fs_root is required for the fs backend")
	}
	return nil
}

// ArchivePath returns the archive directory for the local run
func (c *Config) ArchivePath() string {
	if c.ArchiveDir != "" {
		return c.ArchiveDir
	}
	return filepath.Join(c.SourceDir, "archived")
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "helmet-inspector", "config.json")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setFloat(dst *float64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}
