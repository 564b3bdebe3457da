package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the pipeline configuration shared by the command-line tools.
type Config struct {
	IIIF       IIIFConfig       `json:"iiif"`
	Inference  InferenceConfig  `json:"inference"`
	Thumbnails ThumbnailConfig  `json:"thumbnails"`
	Output     OutputConfig     `json:"output"`
}

// IIIFConfig holds the image-API settings.
type IIIFConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// InferenceConfig holds the detection backend settings. The hosted API key
// is read from the environment, never from the config file.
type InferenceConfig struct {
	Backend       string  `json:"backend"`
	EndpointURL   string  `json:"endpoint_url"`
	MinConfidence float64 `json:"min_confidence"`
}

// ThumbnailConfig controls thumbnail extraction.
type ThumbnailConfig struct {
	Format   string `json:"format"`
	Quality  int    `json:"quality"`
	Lossless bool   `json:"lossless"`
}

// OutputConfig holds the output directory layout.
type OutputConfig struct {
	Dir           string `json:"dir"`
	ThumbsDir     string `json:"thumbs_dir"`
	IIIFThumbsDir string `json:"iiif_thumbs_dir"`
	DetectionsDir string `json:"detections_dir"`
	CacheFile     string `json:"cache_file"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		IIIF: IIIFConfig{
			BaseURL:        "https://openapi.bnf.fr/iiif/image/v3/ark:/12148/",
			TimeoutSeconds: 30,
		},
		Inference: InferenceConfig{
			Backend:       "roboflow",
			EndpointURL:   "",
			MinConfidence: 0.4,
		},
		Thumbnails: ThumbnailConfig{
			Format:  "jpg",
			Quality: 90,
		},
		Output: OutputConfig{
			Dir:           "output",
			ThumbsDir:     "thumbs",
			IIIFThumbsDir: "IIIF_thumbs",
			DetectionsDir: "detections",
			CacheFile:     "fetch.db",
		},
	}
}

// LoadFromFile loads configuration from a JSON file.
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

// SaveToFile saves configuration to a JSON file.
func (c *Config) SaveToFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from the environment, so deployments can tune
// a tool without a config file.
func (c *Config) ApplyEnv() {
	c.IIIF.BaseURL = getEnv("IIIF_BASE_URL", c.IIIF.BaseURL)
	c.IIIF.TimeoutSeconds = getEnvAsInt("IIIF_TIMEOUT", c.IIIF.TimeoutSeconds)
	c.Inference.Backend = getEnv("INFERENCE_BACKEND", c.Inference.Backend)
	c.Inference.EndpointURL = getEnv("INFERENCE_URL", c.Inference.EndpointURL)
	c.Output.Dir = getEnv("OUTPUT_DIR", c.Output.Dir)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.IIIF.BaseURL == "" {
		return fmt.Errorf("iiif.base_url cannot be empty")
	}
	if c.IIIF.TimeoutSeconds < 1 {
		return fmt.Errorf("iiif.timeout_seconds must be positive")
	}
	switch c.Inference.Backend {
	case "roboflow", "ollama":
	default:
		return fmt.Errorf("inference.backend must be roboflow or ollama")
	}
	if c.Inference.MinConfidence < 0 || c.Inference.MinConfidence > 1 {
		return fmt.Errorf("inference.min_confidence must be between 0 and 1")
	}
	if c.Thumbnails.Quality < 1 || c.Thumbnails.Quality > 100 {
		return fmt.Errorf("thumbnails.quality must be between 1 and 100")
	}
	switch c.Thumbnails.Format {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("thumbnails.format must be jpg, png or webp")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir cannot be empty")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
