package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/cs")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("KNOWLEDGE_THRESHOLD", "")
	t.Setenv("MEMORY_TTL_DAYS", "")

	cfg := Load()
	if cfg.MemoryFile != filepath.Join("/srv/cs", "memory.json") {
		t.Fatalf("expected memory file under data dir, got %s", cfg.MemoryFile)
	}
	if cfg.ConversationLogDir != filepath.Join("/srv/cs", "conversations") {
		t.Fatalf("expected log dir under data dir, got %s", cfg.ConversationLogDir)
	}
	if cfg.LLMProvider != "openai" || cfg.LLMModel != "gpt-4o-mini" {
		t.Fatalf("unexpected llm defaults %s/%s", cfg.LLMProvider, cfg.LLMModel)
	}
	if !cfg.KnowledgeFirst || cfg.KnowledgeThreshold != 0.6 || cfg.MemoryTTL() != 30*24*time.Hour {
		t.Fatalf("unexpected knowledge/memory defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadGeminiFallsBackToGoogleKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg := Load()
	if cfg.LLMProvider != "gemini" || cfg.LLMAPIKey != "g-key" || !cfg.LLMEnabled() {
		t.Fatalf("expected gemini with google key, got %+v", cfg)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Load()
	cfg.MemoryTTLDays = 0
	cfg.KnowledgeThreshold = 1.5
	cfg.LLMProvider = "nope"
	cfg.LLMTimeout = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, key := range []string{"MEMORY_TTL_DAYS", "KNOWLEDGE_THRESHOLD", "LLM_PROVIDER", "LLM_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in %q", key, err.Error())
		}
	}
}

func TestMaskedHidesSecrets(t *testing.T) {
	cfg := Config{
		DatabaseURL: "postgres://cs:hunter2@db:5432/cs",
		LLMAPIKey:   "sk-1234567890abcdef",
	}
	m := cfg.Masked()
	if m["DATABASE_URL"] != "postgres://cs:****@db:5432/cs" {
		t.Fatalf("unexpected masked url %s", m["DATABASE_URL"])
	}
	if m["LLM_API_KEY"] != "sk-1****cdef" {
		t.Fatalf("unexpected masked key %s", m["LLM_API_KEY"])
	}
}
