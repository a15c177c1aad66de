package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the rulebook service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Index      IndexConfig      `yaml:"index"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	QueryLog   QueryLogConfig   `yaml:"querylog"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// AuthConfig holds token signing and login settings.
type AuthConfig struct {
	SecretKey       string            `yaml:"secret_key"`
	Algorithm       string            `yaml:"algorithm"`
	TokenTTLMin     int               `yaml:"token_ttl_min"`
	LoginTTLMin     int               `yaml:"login_ttl_min"`
	Users           map[string]string `yaml:"users"`
	ProtectIngest   bool              `yaml:"protect_ingest"`
	LoginRatePerSec float64           `yaml:"login_rate_per_sec"`
	LoginBurst      int               `yaml:"login_burst"`
}

// TokenTTL returns the default token lifetime.
func (a AuthConfig) TokenTTL() time.Duration { return time.Duration(a.TokenTTLMin) * time.Minute }

// LoginTTL returns the lifetime of tokens issued by /login.
func (a AuthConfig) LoginTTL() time.Duration { return time.Duration(a.LoginTTLMin) * time.Minute }

// IndexConfig holds vector engine and retrieval settings.
type IndexConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey, qdrant (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	QdrantHost       string   `yaml:"qdrant_host"`
	QdrantPort       int      `yaml:"qdrant_port"`
	QdrantAPIKey     string   `yaml:"qdrant_api_key"`
	QdrantTLS        bool     `yaml:"qdrant_tls"`
	Collection       string   `yaml:"collection"`
	TopK             int      `yaml:"top_k"`
	MinScore         float64  `yaml:"min_score"`
	Algorithm        string   `yaml:"algorithm"` // HNSW, FLAT
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// ChunkingConfig holds text splitting settings.
type ChunkingConfig struct {
	MaxSize int `yaml:"max_size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider     string      `yaml:"provider"` // openai, hash (default: hash)
	APIKey       string      `yaml:"api_key"`
	BaseURL      string      `yaml:"base_url"`
	Model        string      `yaml:"model"`
	Dimensions   int         `yaml:"dimensions"`
	MaxBatchSize int         `yaml:"max_batch_size"`
	Cache        CacheConfig `yaml:"cache"`
}

// CacheConfig holds query embedding cache settings. Only used with Redis/Valkey engines.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// GenerationConfig holds answer generation settings.
type GenerationConfig struct {
	Backend      string  `yaml:"backend"` // template, openai (default: template)
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	TimeoutSec   int     `yaml:"timeout_sec"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float32 `yaml:"temperature"`
}

// QueryLogConfig holds the query audit trail settings.
type QueryLogConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres (default: sqlite)
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// IngestConfig holds document ingestion settings.
type IngestConfig struct {
	PDFPath string `yaml:"pdf_path"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands environment variables in data, decodes it, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Auth.Algorithm == "" {
		c.Auth.Algorithm = "HS256"
	}
	if c.Auth.TokenTTLMin <= 0 {
		c.Auth.TokenTTLMin = 30
	}
	if c.Auth.LoginTTLMin <= 0 {
		c.Auth.LoginTTLMin = 60
	}
	if c.Auth.LoginRatePerSec <= 0 {
		c.Auth.LoginRatePerSec = 5
	}
	if c.Auth.LoginBurst <= 0 {
		c.Auth.LoginBurst = 10
	}

	if c.Index.Driver == "" {
		c.Index.Driver = "redis"
	}
	if c.Index.QdrantPort <= 0 {
		c.Index.QdrantPort = 6334
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "monopoly_rules"
	}
	if c.Index.TopK <= 0 {
		c.Index.TopK = 3
	}
	if c.Index.Algorithm == "" {
		c.Index.Algorithm = "HNSW"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Index.ReadinessTimeout <= 0 {
		c.Index.ReadinessTimeout = 10
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "rulebook:"
	}

	if c.Chunking.MaxSize <= 0 {
		c.Chunking.MaxSize = 1000
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = 200
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "hash"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Embedding.Cache.TTLSec <= 0 {
		c.Embedding.Cache.TTLSec = 86400
	}

	if c.Generation.Backend == "" {
		c.Generation.Backend = "template"
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 30
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 512
	}

	if c.QueryLog.Driver == "" {
		c.QueryLog.Driver = "sqlite"
	}
	if c.QueryLog.Path == "" {
		c.QueryLog.Path = "query_log.db"
	}

	if c.Ingest.PDFPath == "" {
		c.Ingest.PDFPath = "./pdfs/monopoly.pdf"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("auth.secret_key is required")
	}
	switch c.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("auth.algorithm must be HS256, HS384 or HS512, got %q", c.Auth.Algorithm)
	}
	for user, password := range c.Auth.Users {
		if password == "" {
			return fmt.Errorf("auth.users: password for %q must not be empty", user)
		}
	}

	switch c.Index.Driver {
	case "redis", "valkey":
		if len(c.Index.Addrs) == 0 {
			return fmt.Errorf("index.addrs is required for driver %q", c.Index.Driver)
		}
	case "qdrant":
		if c.Index.QdrantHost == "" {
			return fmt.Errorf("index.qdrant_host is required for driver \"qdrant\"")
		}
	default:
		return fmt.Errorf("index.driver must be \"redis\", \"valkey\" or \"qdrant\", got %q", c.Index.Driver)
	}
	switch strings.ToUpper(c.Index.Algorithm) {
	case "HNSW", "FLAT":
	default:
		return fmt.Errorf("index.algorithm must be \"HNSW\" or \"FLAT\", got %q", c.Index.Algorithm)
	}
	if c.Index.MinScore < 0 || c.Index.MinScore > 1 {
		return fmt.Errorf("index.min_score must be between 0 and 1, got %v", c.Index.MinScore)
	}

	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxSize {
		return fmt.Errorf("chunking.overlap must be in [0, max_size), got overlap=%d max_size=%d",
			c.Chunking.Overlap, c.Chunking.MaxSize)
	}

	switch c.Embedding.Provider {
	case "hash":
	case "openai":
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for provider \"openai\"")
		}
	default:
		return fmt.Errorf("embedding.provider must be \"hash\" or \"openai\", got %q", c.Embedding.Provider)
	}

	switch c.Generation.Backend {
	case "template":
	case "openai":
		if c.Generation.Model == "" {
			return fmt.Errorf("generation.model is required for backend \"openai\"")
		}
	default:
		return fmt.Errorf("generation.backend must be \"template\" or \"openai\", got %q", c.Generation.Backend)
	}

	switch c.QueryLog.Driver {
	case "sqlite":
	case "postgres":
		if c.QueryLog.DSN == "" {
			return fmt.Errorf("querylog.dsn is required for driver \"postgres\"")
		}
	default:
		return fmt.Errorf("querylog.driver must be \"sqlite\" or \"postgres\", got %q", c.QueryLog.Driver)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
