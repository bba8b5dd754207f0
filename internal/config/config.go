// Package config loads committer's settings file (~/.committer/config.yml).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/committer/internal/inference"
	"github.com/samcharles93/committer/internal/remote"
)

const (
	// EnvPath overrides the settings file location.
	EnvPath = "COMMITTER_CONFIG"
	// EnvAPIKey fills api_key when the file leaves it unset.
	EnvAPIKey = "ANTHROPIC_API_KEY"

	DefaultLogLevel      = "warn"
	DefaultLogFormat     = "pretty"
	DefaultServerAddress = "127.0.0.1:8080"
)

// Settings mirrors the YAML file. Pointer fields distinguish "not set" from
// zero values.
type Settings struct {
	APIKey    *string  `yaml:"api_key,omitempty"`
	Model     *string  `yaml:"model,omitempty"`
	Scopes    []string `yaml:"scopes,omitempty"`
	UseLocal  *bool    `yaml:"use_local,omitempty"`
	MaxTokens *int     `yaml:"max_tokens,omitempty"`
	ModelDir  *string  `yaml:"model_dir,omitempty"`
	Local     Local    `yaml:"local,omitempty"`

	LogLevel      *string `yaml:"log_level,omitempty"`
	LogFormat     *string `yaml:"log_format,omitempty"`
	ServerAddress *string `yaml:"server_address,omitempty"`
}

// Local holds the decode-loop settings. UseCache defaults to the model's own
// use_cache flag and TopP to no nucleus cut, so both stay nil here.
type Local struct {
	MaxLength     *int     `yaml:"max_length,omitempty"`
	Temperature   *float64 `yaml:"temperature,omitempty"`
	TopP          *float64 `yaml:"top_p,omitempty"`
	Seed          *int64   `yaml:"seed,omitempty"`
	RepeatPenalty *float64 `yaml:"repeat_penalty,omitempty"`
	RepeatLastN   *int     `yaml:"repeat_last_n,omitempty"`
	UseCache      *bool    `yaml:"use_cache,omitempty"`
}

// Dir is the directory holding the settings file and, by default, the model.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".committer")
}

// Path returns the settings file location.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yml")
}

// Load reads path and fills every unset field with its default. A missing
// file yields the defaults; a malformed one is an error.
func Load(path string) (Settings, error) {
	var s Settings
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Settings{}, fmt.Errorf("read settings: %w", err)
		default:
			if s, err = Parse(data); err != nil {
				return Settings{}, fmt.Errorf("settings %s: %w", path, err)
			}
		}
	}
	if s.APIKey == nil {
		if key := os.Getenv(EnvAPIKey); key != "" {
			s.APIKey = &key
		}
	}
	return s.withDefaults(), nil
}

// Parse decodes a settings document. Unknown keys are rejected.
func Parse(data []byte) (Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, err
	}
	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	if s.MaxTokens != nil && *s.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", *s.MaxTokens)
	}
	if s.Local.MaxLength != nil && *s.Local.MaxLength <= 0 {
		return fmt.Errorf("local.max_length must be positive, got %d", *s.Local.MaxLength)
	}
	return nil
}

func (s Settings) withDefaults() Settings {
	setDefault(&s.Model, remote.DefaultModel)
	setDefault(&s.UseLocal, false)
	setDefault(&s.MaxTokens, remote.DefaultMaxTokens)
	if dir := Dir(); dir != "" {
		setDefault(&s.ModelDir, filepath.Join(dir, "model"))
	}
	setDefault(&s.LogLevel, DefaultLogLevel)
	setDefault(&s.LogFormat, DefaultLogFormat)
	setDefault(&s.ServerAddress, DefaultServerAddress)

	def := inference.DefaultConfig()
	setDefault(&s.Local.MaxLength, def.MaxLength)
	setDefault(&s.Local.Temperature, def.Temperature)
	setDefault(&s.Local.Seed, def.Seed)
	setDefault(&s.Local.RepeatPenalty, def.RepeatPenalty)
	setDefault(&s.Local.RepeatLastN, def.RepeatLastN)
	return s
}

func setDefault[T any](p **T, v T) {
	if *p == nil {
		*p = &v
	}
}

// Options converts the local section into decode-loop overrides.
func (l Local) Options() inference.Options {
	return inference.Options{
		MaxLength:     l.MaxLength,
		Temperature:   l.Temperature,
		TopP:          l.TopP,
		Seed:          l.Seed,
		RepeatPenalty: l.RepeatPenalty,
		RepeatLastN:   l.RepeatLastN,
		UseCache:      l.UseCache,
	}
}

// Redacted returns a copy safe to print: the API key is masked.
func (s Settings) Redacted() Settings {
	if s.APIKey != nil && *s.APIKey != "" {
		masked := "****"
		if k := *s.APIKey; len(k) > 8 {
			masked = k[:4] + "****"
		}
		s.APIKey = &masked
	}
	return s
}

// YAML renders s as a settings document.
func (s Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// String returns the value behind p, or "" when unset.
func String(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
