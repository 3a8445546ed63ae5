// Package config loads syndic configuration.
//
// Values come, in increasing precedence, from built-in defaults, a TOML file,
// a .env file and SYNDIC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "syndic.toml"

// Config is the complete application configuration.
type Config struct {
	Ollama  OllamaConfig  `toml:"ollama"`
	Router  RouterConfig  `toml:"router"`
	Chat    ChatConfig    `toml:"chat"`
	Index   IndexConfig   `toml:"index"`
	Server  ServerConfig  `toml:"server"`
	Extract ExtractConfig `toml:"extract"`
}

// OllamaConfig locates the Ollama server.
type OllamaConfig struct {
	URL         string `toml:"url"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

// RouterConfig configures the question classifier model.
type RouterConfig struct {
	Model         string `toml:"model"`
	TimeoutSecs   int    `toml:"timeout_secs"`
	ContextWindow int    `toml:"context_window"`
	// StrictLabels normalizes the model output and maps anything other
	// than "property" or "general" to "general".
	StrictLabels bool `toml:"strict_labels"`
}

// ChatConfig configures answer generation.
type ChatConfig struct {
	Model string `toml:"model"`
	TopK  int    `toml:"top_k"`
}

// IndexConfig configures the document index.
type IndexConfig struct {
	DataDir      string `toml:"data_dir"`
	StoreDir     string `toml:"store_dir"`
	Store        string `toml:"store"` // "sqlite" or "memory"
	EmbedModel   string `toml:"embed_model"`
	ChunkSize    int    `toml:"chunk_size"`
	ChunkOverlap int    `toml:"chunk_overlap"`
	Watch        bool   `toml:"watch"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string  `toml:"addr"`
	RatePerSec      float64 `toml:"rate_per_sec"`
	Burst           int     `toml:"burst"`
	HistoryTurns    int     `toml:"history_turns"`
	SessionIdleMins int     `toml:"session_idle_mins"`
}

// ExtractConfig configures the PDF extraction job.
type ExtractConfig struct {
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:         "http://localhost:11434",
			TimeoutSecs: 300,
		},
		Router: RouterConfig{
			Model:         "qwen3:4b",
			TimeoutSecs:   30,
			ContextWindow: 1000,
		},
		Chat: ChatConfig{
			Model: "qwen3:4b",
			TopK:  5,
		},
		Index: IndexConfig{
			DataDir:      "data",
			StoreDir:     ".index",
			Store:        "sqlite",
			EmbedModel:   "nomic-embed-text",
			ChunkSize:    500,
			ChunkOverlap: 50,
			Watch:        true,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RatePerSec:      2,
			Burst:           5,
			HistoryTurns:    40,
			SessionIdleMins: 120,
		},
		Extract: ExtractConfig{
			InputDir:  "data/input",
			OutputDir: "data/output",
		},
	}
}

// Load builds the configuration. A missing .env is ignored; a missing TOML
// file is ignored only when path is empty or DefaultPath.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	explicit := path != "" && path != DefaultPath
	if path == "" {
		path = DefaultPath
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	} else {
		log.Printf("[INFO] Config loaded from %s", path)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SYNDIC_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SYNDIC_OLLAMA_URL", &c.Ollama.URL)
	num("SYNDIC_OLLAMA_TIMEOUT_SECS", &c.Ollama.TimeoutSecs)
	str("SYNDIC_ROUTER_MODEL", &c.Router.Model)
	flag("SYNDIC_ROUTER_STRICT_LABELS", &c.Router.StrictLabels)
	str("SYNDIC_CHAT_MODEL", &c.Chat.Model)
	num("SYNDIC_CHAT_TOP_K", &c.Chat.TopK)
	str("SYNDIC_DATA_DIR", &c.Index.DataDir)
	str("SYNDIC_STORE_DIR", &c.Index.StoreDir)
	str("SYNDIC_STORE", &c.Index.Store)
	str("SYNDIC_EMBED_MODEL", &c.Index.EmbedModel)
	flag("SYNDIC_WATCH", &c.Index.Watch)
	str("SYNDIC_ADDR", &c.Server.Addr)

	return errors.Join(errs...)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Ollama.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("ollama.url %q is not an absolute URL", c.Ollama.URL))
	}
	if c.Ollama.TimeoutSecs <= 0 {
		errs = append(errs, errors.New("ollama.timeout_secs must be positive"))
	}
	if strings.TrimSpace(c.Router.Model) == "" {
		errs = append(errs, errors.New("router.model is required"))
	}
	if c.Router.TimeoutSecs <= 0 {
		errs = append(errs, errors.New("router.timeout_secs must be positive"))
	}
	if c.Router.ContextWindow <= 0 {
		errs = append(errs, errors.New("router.context_window must be positive"))
	}
	if strings.TrimSpace(c.Chat.Model) == "" {
		errs = append(errs, errors.New("chat.model is required"))
	}
	if c.Chat.TopK <= 0 {
		errs = append(errs, errors.New("chat.top_k must be positive"))
	}
	if c.Index.DataDir == "" {
		errs = append(errs, errors.New("index.data_dir is required"))
	}
	switch c.Index.Store {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("index.store %q must be sqlite or memory", c.Index.Store))
	}
	if c.Index.ChunkSize <= 0 {
		errs = append(errs, errors.New("index.chunk_size must be positive"))
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		errs = append(errs, errors.New("index.chunk_overlap must be in [0, chunk_size)"))
	}
	if c.Server.RatePerSec <= 0 || c.Server.Burst <= 0 {
		errs = append(errs, errors.New("server.rate_per_sec and server.burst must be positive"))
	}

	return errors.Join(errs...)
}

// OllamaTimeout returns the answer and embedding request timeout.
func (c *Config) OllamaTimeout() time.Duration {
	return time.Duration(c.Ollama.TimeoutSecs) * time.Second
}

// RouterTimeout returns the classification request timeout.
func (c *Config) RouterTimeout() time.Duration {
	return time.Duration(c.Router.TimeoutSecs) * time.Second
}

// SessionIdle returns how long an idle chat session is kept.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.Server.SessionIdleMins) * time.Minute
}
