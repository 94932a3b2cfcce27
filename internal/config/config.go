// Package config loads configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/easeaico/storefront-cs/internal/models"
)

// Config holds runtime settings.
type Config struct {
	DataDir     string
	DatabaseURL string

	MemoryFile          string
	KnowledgeFile       string
	ConversationLogDir  string
	ConversationLogOff  bool
	ImagesDir           string
	ImageCategoriesPath string
	SystemPromptPath    string
	PlaybookPath        string
	ReplyTemplatesPath  string
	MediaWhitelistPath  string

	LLMProvider string
	LLMModel    string
	LLMAPIKey   string
	LLMBaseURL  string
	LLMTimeout  time.Duration

	KnowledgeFirst     bool
	KnowledgeThreshold float64
	MemoryTTLDays      int
	AddressCooldown    time.Duration
	HistoryLimit       int

	HTTPAddr       string
	PruneSchedule  string
	ReloadSchedule string
	LogLevel       string
}

// Load reads env vars and applies defaults. Call Validate before use.
func Load() Config {
	dataDir := getEnv("DATA_DIR", "./data")
	inData := func(name string) string { return filepath.Join(dataDir, name) }

	cfg := Config{
		DataDir:     dataDir,
		DatabaseURL: os.Getenv("DATABASE_URL"),

		MemoryFile:          getEnv("MEMORY_FILE", inData("memory.json")),
		KnowledgeFile:       getEnv("KNOWLEDGE_FILE", inData("knowledge.json")),
		ConversationLogDir:  getEnv("CONVERSATION_LOG_DIR", inData("conversations")),
		ConversationLogOff:  getEnvBool("CONVERSATION_LOG_DISABLED", false),
		ImagesDir:           getEnv("IMAGES_DIR", inData("images")),
		ImageCategoriesPath: getEnv("IMAGE_CATEGORIES_PATH", inData("image_categories.json")),
		SystemPromptPath:    getEnv("SYSTEM_PROMPT_PATH", inData("system_prompt.md")),
		PlaybookPath:        getEnv("PLAYBOOK_PATH", inData("playbook.md")),
		ReplyTemplatesPath:  getEnv("REPLY_TEMPLATES_PATH", inData("reply_templates.json")),
		MediaWhitelistPath:  getEnv("MEDIA_WHITELIST_PATH", inData("media_whitelist.json")),

		LLMProvider: strings.ToLower(getEnv("LLM_PROVIDER", models.ProviderOpenAI)),
		LLMModel:    os.Getenv("LLM_MODEL"),
		LLMAPIKey:   os.Getenv("LLM_API_KEY"),
		LLMBaseURL:  os.Getenv("LLM_BASE_URL"),
		LLMTimeout:  getEnvDuration("LLM_TIMEOUT", 60*time.Second),

		KnowledgeFirst:     getEnvBool("KNOWLEDGE_FIRST", true),
		KnowledgeThreshold: getEnvFloat("KNOWLEDGE_THRESHOLD", 0.6),
		MemoryTTLDays:      getEnvInt("MEMORY_TTL_DAYS", 30),
		AddressCooldown:    getEnvDuration("ADDRESS_IMAGE_COOLDOWN", 24*time.Hour),
		HistoryLimit:       getEnvInt("HISTORY_LIMIT", 10),

		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		PruneSchedule:  getEnv("PRUNE_SCHEDULE", "@every 1h"),
		ReloadSchedule: os.Getenv("RELOAD_SCHEDULE"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "debug")),
	}

	if cfg.LLMModel == "" {
		cfg.LLMModel = models.DefaultModel(cfg.LLMProvider)
	}
	if cfg.LLMAPIKey == "" && cfg.LLMProvider == models.ProviderGemini {
		cfg.LLMAPIKey = os.Getenv("GOOGLE_API_KEY")
	}
	return cfg
}

// Validate reports settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.MemoryTTLDays <= 0 {
		errs = append(errs, fmt.Errorf("MEMORY_TTL_DAYS must be positive, got %d", c.MemoryTTLDays))
	}
	if c.KnowledgeThreshold < 0 || c.KnowledgeThreshold > 1 {
		errs = append(errs, fmt.Errorf("KNOWLEDGE_THRESHOLD must be within [0,1], got %v", c.KnowledgeThreshold))
	}
	if !models.SupportedProvider(c.LLMProvider) {
		errs = append(errs, fmt.Errorf("LLM_PROVIDER %q is not one of %s", c.LLMProvider, strings.Join(models.Providers(), ", ")))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.LLMTimeout))
	}
	if c.AddressCooldown < 0 {
		errs = append(errs, fmt.Errorf("ADDRESS_IMAGE_COOLDOWN must not be negative, got %s", c.AddressCooldown))
	}
	return errors.Join(errs...)
}

// MemoryTTL returns the prune TTL as a duration.
func (c Config) MemoryTTL() time.Duration {
	return time.Duration(c.MemoryTTLDays) * 24 * time.Hour
}

// LLMEnabled reports whether an API key is available for the provider.
func (c Config) LLMEnabled() bool {
	return c.LLMAPIKey != ""
}

// LLM returns the provider settings for models.NewModel.
func (c Config) LLM() models.Config {
	return models.Config{
		Provider: c.LLMProvider,
		Model:    c.LLMModel,
		APIKey:   c.LLMAPIKey,
		BaseURL:  c.LLMBaseURL,
		Timeout:  c.LLMTimeout,
	}
}

// Masked returns the settings for display with secrets hidden.
func (c Config) Masked() map[string]string {
	return map[string]string{
		"DATA_DIR":               c.DataDir,
		"DATABASE_URL":           maskURL(c.DatabaseURL),
		"MEMORY_FILE":            c.MemoryFile,
		"KNOWLEDGE_FILE":         c.KnowledgeFile,
		"CONVERSATION_LOG_DIR":   c.ConversationLogDir,
		"IMAGES_DIR":             c.ImagesDir,
		"IMAGE_CATEGORIES_PATH":  c.ImageCategoriesPath,
		"SYSTEM_PROMPT_PATH":     c.SystemPromptPath,
		"PLAYBOOK_PATH":          c.PlaybookPath,
		"REPLY_TEMPLATES_PATH":   c.ReplyTemplatesPath,
		"MEDIA_WHITELIST_PATH":   c.MediaWhitelistPath,
		"LLM_PROVIDER":           c.LLMProvider,
		"LLM_MODEL":              c.LLMModel,
		"LLM_API_KEY":            maskSecret(c.LLMAPIKey),
		"LLM_BASE_URL":           c.LLMBaseURL,
		"LLM_TIMEOUT":            c.LLMTimeout.String(),
		"KNOWLEDGE_FIRST":        strconv.FormatBool(c.KnowledgeFirst),
		"KNOWLEDGE_THRESHOLD":    strconv.FormatFloat(c.KnowledgeThreshold, 'f', -1, 64),
		"MEMORY_TTL_DAYS":        strconv.Itoa(c.MemoryTTLDays),
		"ADDRESS_IMAGE_COOLDOWN": c.AddressCooldown.String(),
		"HTTP_ADDR":              c.HTTPAddr,
		"PRUNE_SCHEDULE":         c.PruneSchedule,
		"RELOAD_SCHEDULE":        c.ReloadSchedule,
		"LOG_LEVEL":              c.LogLevel,
	}
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}

// maskURL hides the password of a connection URL.
func maskURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	creds := raw[scheme+3 : at]
	if user, _, ok := strings.Cut(creds, ":"); ok {
		return raw[:scheme+3] + user + ":****" + raw[at:]
	}
	return raw
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
