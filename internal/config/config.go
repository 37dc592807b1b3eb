package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mnemo/internal/domain"
)

const (
	MetadataFileName    = "metadata_with_id.json"
	FingerprintFileName = "model_fingerprint.json"
	IndexFileName       = "vector_index.bin"

	DefaultOllamaURL = "http://localhost:11434"
	dockerOllamaURL  = "http://host.docker.internal:11434"
)

// OllamaConfig holds connection details and the summarization models of the Ollama server.
type OllamaConfig struct {
	URL          string `yaml:"url" json:"url"`
	TimeoutSecs  int    `yaml:"timeout_secs" json:"timeout_secs"`
	QualityModel string `yaml:"quality_model" json:"quality_model"`
	SpeedModel   string `yaml:"speed_model" json:"speed_model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string `yaml:"type" json:"type"`
	Dimension int    `yaml:"dimension" json:"dimension"`
	CacheSize int    `yaml:"cache_size" json:"cache_size"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" json:"url"`
	APIKey      string `yaml:"api_key" json:"api_key"`
	Collection  string `yaml:"collection" json:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs" json:"timeout_secs"`
}

// IndexConfig selects and configures the vector index implementation.
type IndexConfig struct {
	Type     string        `yaml:"type" json:"type"`
	M        int           `yaml:"m" json:"m"`
	EfSearch int           `yaml:"ef_search" json:"ef_search"`
	Qdrant   *QdrantConfig `yaml:"qdrant,omitempty" json:"qdrant,omitempty"`
}

// OrganizeConfig tunes the organize pipeline.
type OrganizeConfig struct {
	BatchSize       int `yaml:"batch_size" json:"batch_size"`
	Workers         int `yaml:"workers" json:"workers"`
	PDFTopBlocks    int `yaml:"pdf_top_blocks" json:"pdf_top_blocks"`
	PPTTopBlocks    int `yaml:"ppt_top_blocks" json:"ppt_top_blocks"`
	MaxRetries      int `yaml:"max_retries" json:"max_retries"`
	MinOutputChars  int `yaml:"min_output_chars" json:"min_output_chars"`
	MinSummaryChars int `yaml:"min_summary_chars" json:"min_summary_chars"`
}

// ServerConfig configures the local web UI.
type ServerConfig struct {
	Host        string `yaml:"host" json:"host"`
	Port        int    `yaml:"port" json:"port"`
	OpenBrowser bool   `yaml:"open_browser" json:"open_browser"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	EmbeddingModelName   string `yaml:"embedding_model_name" json:"embedding_model_name"`
	DatabaseFolder       string `yaml:"database_folder" json:"database_folder"`
	MetadataWithIDPath   string `yaml:"metadata_with_id_path" json:"metadata_with_id_path"`
	ModelFingerprintPath string `yaml:"model_fingerprint_path" json:"model_fingerprint_path"`
	FaissIndexPath       string `yaml:"faiss_index_path" json:"faiss_index_path"`

	Ollama   OllamaConfig   `yaml:"ollama" json:"ollama"`
	Embedder EmbedderConfig `yaml:"embedder" json:"embedder"`
	Index    IndexConfig    `yaml:"index" json:"index"`
	Organize OrganizeConfig `yaml:"organize" json:"organize"`
	Server   ServerConfig   `yaml:"server" json:"server"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
}

// Load reads a config from a specified path and applies environment overrides.
// If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

// LoadFile reads a config without environment overrides, as it is stored.
// Keys missing from the file keep their default values.
func LoadFile(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if isJSON(path) {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.json and ./config.yaml first, then ~/.config/mnemo/config.json.
// If none exists, it writes defaults to ~/.config/mnemo/config.json and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, p := range []string{"config.json", "config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnv(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
// Paths ending in .json are written as indented JSON, everything else as YAML.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(cfg, "", "    ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath returns ~/.config/mnemo/config.json.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mnemo", "config.json"), nil
}

// Initialize points the config at a database folder, creating it and deriving
// the artifact paths inside it.
func (c *AppConfig) Initialize(folder string) error {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return fmt.Errorf("database folder: %w", domain.ErrNotInitialized)
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("create database folder: %w", err)
	}
	c.DatabaseFolder = abs
	c.MetadataWithIDPath = filepath.Join(abs, MetadataFileName)
	c.ModelFingerprintPath = filepath.Join(abs, FingerprintFileName)
	c.FaissIndexPath = filepath.Join(abs, IndexFileName)
	return nil
}

// Initialized reports whether a database folder has been configured.
func (c *AppConfig) Initialized() bool {
	return c.DatabaseFolder != "" && c.MetadataWithIDPath != "" &&
		c.ModelFingerprintPath != "" && c.FaissIndexPath != ""
}

// ModelForTier maps a summarization tier to its model. Unknown tiers use the quality model.
func (c *AppConfig) ModelForTier(tier string) string {
	if strings.EqualFold(strings.TrimSpace(tier), "speed") {
		return c.Ollama.SpeedModel
	}
	return c.Ollama.QualityModel
}

// OllamaTimeout returns the HTTP timeout for Ollama requests.
func (c *AppConfig) OllamaTimeout() time.Duration {
	return time.Duration(c.Ollama.TimeoutSecs) * time.Second
}

// OllamaBaseURL returns the configured Ollama URL, or checks host.docker.internal
// and falls back to localhost when none is set.
func (c *AppConfig) OllamaBaseURL() string {
	if c.Ollama.URL != "" {
		return strings.TrimRight(c.Ollama.URL, "/")
	}
	if _, err := net.LookupHost("host.docker.internal"); err == nil {
		return dockerOllamaURL
	}
	return DefaultOllamaURL
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		EmbeddingModelName: "nomic-embed-text",
		Ollama: OllamaConfig{
			TimeoutSecs:  120,
			QualityModel: "Mistral-Small-3.2-24B-Instruct-2506_Q4_K_M",
			SpeedModel:   "Nous-Hermes-2-Mistral-7B-DPO_Q4_K_M",
		},
		Embedder: EmbedderConfig{Type: "ollama", Dimension: 512, CacheSize: 1000},
		Index:    IndexConfig{Type: "flat", M: 16, EfSearch: 64},
		Organize: OrganizeConfig{
			BatchSize:       10,
			Workers:         1,
			PDFTopBlocks:    20,
			PPTTopBlocks:    10,
			MaxRetries:      3,
			MinOutputChars:  100,
			MinSummaryChars: 50,
		},
		Server:   ServerConfig{Host: "127.0.0.1", Port: 8501, OpenBrowser: true},
		LogLevel: "info",
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.EmbeddingModelName == "" {
		cfg.EmbeddingModelName = def.EmbeddingModelName
	}
	if cfg.Ollama.TimeoutSecs <= 0 {
		cfg.Ollama.TimeoutSecs = def.Ollama.TimeoutSecs
	}
	if cfg.Ollama.QualityModel == "" {
		cfg.Ollama.QualityModel = def.Ollama.QualityModel
	}
	if cfg.Ollama.SpeedModel == "" {
		cfg.Ollama.SpeedModel = def.Ollama.SpeedModel
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Dimension <= 0 {
		cfg.Embedder.Dimension = def.Embedder.Dimension
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = def.Index.Type
	}
	if cfg.Index.M <= 0 {
		cfg.Index.M = def.Index.M
	}
	if cfg.Index.EfSearch <= 0 {
		cfg.Index.EfSearch = def.Index.EfSearch
	}
	if cfg.Index.Type == "qdrant" && cfg.Index.Qdrant != nil {
		if cfg.Index.Qdrant.URL == "" {
			cfg.Index.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.Index.Qdrant.Collection == "" {
			cfg.Index.Qdrant.Collection = "mnemo"
		}
		if cfg.Index.Qdrant.TimeoutSecs == 0 {
			cfg.Index.Qdrant.TimeoutSecs = 30
		}
	}
	o := &cfg.Organize
	if o.BatchSize <= 0 {
		o.BatchSize = def.Organize.BatchSize
	}
	if o.Workers <= 0 {
		o.Workers = def.Organize.Workers
	}
	if o.PDFTopBlocks <= 0 {
		o.PDFTopBlocks = def.Organize.PDFTopBlocks
	}
	if o.PPTTopBlocks <= 0 {
		o.PPTTopBlocks = def.Organize.PPTTopBlocks
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = def.Organize.MaxRetries
	}
	if o.MinOutputChars < 0 {
		o.MinOutputChars = def.Organize.MinOutputChars
	}
	if o.MinSummaryChars < 0 {
		o.MinSummaryChars = def.Organize.MinSummaryChars
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("MNEMO_OLLAMA_URL"); v != "" {
		cfg.Ollama.URL = v
	} else if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		cfg.Ollama.URL = v
	}
	if v := os.Getenv("MNEMO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MNEMO_DATABASE_FOLDER"); v != "" && v != cfg.DatabaseFolder {
		if err := cfg.Initialize(v); err != nil {
			cfg.DatabaseFolder = v
		}
	}
}
