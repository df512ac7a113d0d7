// Package config loads the optional subtools TOML configuration file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mgpai22/subtools/internal/ocr"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// image track handling modes
const (
	ImagesSkip = "skip"
	ImagesPNG  = "png"
	ImagesOCR  = "ocr"
)

type Extract struct {
	OutputDir   string `toml:"output_dir"`
	Overwrite   bool   `toml:"overwrite"`
	Images      string `toml:"images"`
	Concurrency int    `toml:"concurrency"`
	Remux       bool   `toml:"remux"`
}

type OCR struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
	Prompt   string `toml:"prompt"`
	APIKey   string `toml:"api_key"`
}

type Convert struct {
	From string `toml:"from"`
}

type Config struct {
	Extract Extract `toml:"extract"`
	OCR     OCR     `toml:"ocr"`
	Convert Convert `toml:"convert"`
}

func Default() Config {
	return Config{
		Extract: Extract{
			Images:      ImagesPNG,
			Concurrency: 2,
		},
		OCR: OCR{
			Provider: string(ocr.ProviderGemini),
		},
		Convert: Convert{
			From: "windows-1252",
		},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/subtools/config.toml, falling back to
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() (string, error) {
	if base, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "subtools", "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "subtools", "config.toml"), nil
}

// Load reads path, or the default location when path is empty. A missing
// file yields the defaults; exists reports whether a file was read.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	c := Default()

	resolved = path
	if resolved == "" {
		if resolved, err = DefaultPath(); err != nil {
			return nil, "", false, err
		}
	}

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, "", false, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		exists = true
		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&c); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, "", false, fmt.Errorf("config %s: %w", resolved, err)
	}
	return &c, resolved, exists, nil
}

func (c *Config) normalize() {
	c.Extract.Images = strings.ToLower(strings.TrimSpace(c.Extract.Images))
	if c.Extract.Images == "" {
		c.Extract.Images = ImagesPNG
	}
	if c.Extract.Concurrency <= 0 {
		c.Extract.Concurrency = 1
	}
	c.OCR.Provider = strings.ToLower(strings.TrimSpace(c.OCR.Provider))
	if c.OCR.Provider == "" {
		c.OCR.Provider = string(ocr.ProviderGemini)
	}
	c.OCR.APIKey = strings.TrimSpace(c.OCR.APIKey)
	c.Convert.From = strings.TrimSpace(c.Convert.From)
}

func (c *Config) Validate() error {
	switch c.Extract.Images {
	case ImagesSkip, ImagesPNG, ImagesOCR:
	default:
		return fmt.Errorf("extract.images must be %q, %q or %q, got %q",
			ImagesSkip, ImagesPNG, ImagesOCR, c.Extract.Images)
	}
	if _, err := ocr.ParseProvider(c.OCR.Provider); err != nil {
		return fmt.Errorf("ocr.provider: %w", err)
	}
	return nil
}

// OCRAPIKey returns the configured key, or the provider's environment
// variable when none is set.
func (c *Config) OCRAPIKey(provider ocr.Provider) string {
	if c.OCR.APIKey != "" {
		return c.OCR.APIKey
	}
	return os.Getenv(provider.APIKeyEnv())
}

// Sample returns the commented sample configuration.
func Sample() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path. An existing file
// is left untouched.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := f.WriteString(sampleConfig); err != nil {
		f.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return f.Close()
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	shown := *c
	if shown.OCR.APIKey != "" {
		shown.OCR.APIKey = "********"
	}
	return toml.Marshal(shown)
}
