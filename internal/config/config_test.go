package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		Auth:  AuthConfig{SecretKey: "secret"},
		Index: IndexConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"http.port", cfg.HTTP.Port, 8000},
		{"auth.algorithm", cfg.Auth.Algorithm, "HS256"},
		{"auth.token_ttl", cfg.Auth.TokenTTL().Minutes(), 30.0},
		{"auth.login_ttl", cfg.Auth.LoginTTL().Minutes(), 60.0},
		{"index.driver", cfg.Index.Driver, "redis"},
		{"index.collection", cfg.Index.Collection, "monopoly_rules"},
		{"index.top_k", cfg.Index.TopK, 3},
		{"index.key_prefix", cfg.Index.KeyPrefix, "rulebook:"},
		{"chunking.max_size", cfg.Chunking.MaxSize, 1000},
		{"chunking.overlap", cfg.Chunking.Overlap, 200},
		{"embedding.provider", cfg.Embedding.Provider, "hash"},
		{"generation.backend", cfg.Generation.Backend, "template"},
		{"generation.timeout_sec", cfg.Generation.TimeoutSec, 30},
		{"querylog.driver", cfg.QueryLog.Driver, "sqlite"},
		{"querylog.path", cfg.QueryLog.Path, "query_log.db"},
		{"ingest.pdf_path", cfg.Ingest.PDFPath, "./pdfs/monopoly.pdf"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"missing secret", func(c *Config) { c.Auth.SecretKey = "" }, "auth.secret_key"},
		{"asymmetric algorithm", func(c *Config) { c.Auth.Algorithm = "RS256" }, "auth.algorithm"},
		{"empty user password", func(c *Config) { c.Auth.Users = map[string]string{"guest": ""} }, "auth.users"},
		{"unknown driver", func(c *Config) { c.Index.Driver = "chroma" }, "index.driver"},
		{"missing addrs", func(c *Config) { c.Index.Addrs = nil }, "index.addrs"},
		{"missing qdrant host", func(c *Config) { c.Index.Driver = "qdrant" }, "index.qdrant_host"},
		{"bad algorithm", func(c *Config) { c.Index.Algorithm = "IVF" }, "index.algorithm"},
		{"min score out of range", func(c *Config) { c.Index.MinScore = 1.5 }, "index.min_score"},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = 1000 }, "chunking.overlap"},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"openai embedding without model", func(c *Config) { c.Embedding.Provider = "openai" }, "embedding.model"},
		{"unknown generation backend", func(c *Config) { c.Generation.Backend = "gemini" }, "generation.backend"},
		{"openai generation without model", func(c *Config) { c.Generation.Backend = "openai" }, "generation.model"},
		{"unknown querylog driver", func(c *Config) { c.QueryLog.Driver = "mysql" }, "querylog.driver"},
		{"postgres without dsn", func(c *Config) { c.QueryLog.Driver = "postgres" }, "querylog.dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %q", tt.want, err)
			}
		})
	}
}

func TestValidate_QdrantDoesNotNeedAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Index.Driver = "qdrant"
	cfg.Index.QdrantHost = "localhost"
	cfg.Index.Addrs = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("RULEBOOK_TEST_SECRET", "from-env")
	t.Setenv("RULEBOOK_TEST_EMPTY", "")

	data := []byte(`
http:
  port: ${RULEBOOK_TEST_PORT:-9000}
auth:
  secret_key: ${RULEBOOK_TEST_SECRET}
  users:
    user1: ${RULEBOOK_TEST_EMPTY:-1234}
index:
  addrs: ["localhost:6379"]
  collection: rules
chunking:
  max_size: 500
  overlap: 50
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("expected default port from expression, got %d", cfg.HTTP.Port)
	}
	if cfg.Auth.SecretKey != "from-env" {
		t.Errorf("expected secret from env, got %q", cfg.Auth.SecretKey)
	}
	if cfg.Auth.Users["user1"] != "1234" {
		t.Errorf("empty env var should fall back to default, got %q", cfg.Auth.Users["user1"])
	}
	if cfg.Index.Collection != "rules" || cfg.Chunking.MaxSize != 500 || cfg.Chunking.Overlap != 50 {
		t.Errorf("unexpected values: %+v %+v", cfg.Index, cfg.Chunking)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := Parse([]byte("http:\n  port: 8000\n")); err == nil {
		t.Error("expected validation error for missing secret")
	}
}

func TestLoad_LocalConfig(t *testing.T) {
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Index.Collection != "monopoly_rules" {
		t.Errorf("unexpected collection %q", cfg.Index.Collection)
	}
	if _, ok := cfg.Auth.Users["user1"]; !ok {
		t.Error("expected user1 in local config")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("does-not-exist"); err == nil {
		t.Fatal("expected error")
	}
}
