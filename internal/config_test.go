package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}

	cfg.Token = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("empty token error = %v", err)
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.App.HTTP.Port = 70000 }, "app"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "openai" }, "llm"},
		{"no model", func(c *Config) { c.LLM.Model = "" }, "llm"},
		{"tiny timeout", func(c *Config) { c.LLM.Timeout = time.Millisecond }, "llm"},
		{"unknown store", func(c *Config) { c.Session.Store = "redis" }, "session"},
		{"no cookie name", func(c *Config) { c.Session.CookieName = "" }, "session"},
		{"sqlite without path", func(c *Config) {
			c.Session.Store = SessionStoreSQLite
			c.SQLite.Path = ""
		}, "sqlite"},
		{"bad auth mode", func(c *Config) { c.Auth.Mode = "magic" }, "auth: "},
		{"token mode without token", func(c *Config) { c.Auth.Mode = AuthModeToken }, "auth: mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidate_MemoryStoreIgnoresSQLitePath(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SQLite.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("memory store should not require sqlite.path: %v", err)
	}
}

func TestLLMConfig_Options(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.LLM.APIKey = "k"
	opts := cfg.LLM.Options()
	if opts.APIKey != "k" || opts.Model != cfg.LLM.Model || opts.Timeout != cfg.LLM.Timeout {
		t.Errorf("options = %+v", opts)
	}
}
