// Package bootstrap assembles the engine and its collaborators from config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/easeaico/storefront-cs/internal/agent"
	"github.com/easeaico/storefront-cs/internal/config"
	"github.com/easeaico/storefront-cs/internal/convlog"
	"github.com/easeaico/storefront-cs/internal/knowledge"
	"github.com/easeaico/storefront-cs/internal/media"
	"github.com/easeaico/storefront-cs/internal/memory"
	"github.com/easeaico/storefront-cs/internal/models"
	"github.com/easeaico/storefront-cs/internal/prompt"
	"github.com/easeaico/storefront-cs/internal/repository"
	"github.com/easeaico/storefront-cs/internal/storage"
)

// Runtime is a fully wired engine plus the stores behind it.
type Runtime struct {
	Engine    *agent.Engine
	Knowledge *knowledge.Base
	Memory    *memory.Store
	Log       *convlog.Log

	store *repository.Store
}

// Repos opens the persistence backend: the database when DATABASE_URL is
// set, the JSON files under DATA_DIR otherwise. The returned store is nil
// for the file backend.
func Repos(ctx context.Context, cfg config.Config) (memory.Repo, knowledge.Repo, *repository.Store, error) {
	if cfg.DatabaseURL == "" {
		return storage.NewMemoryFile(cfg.MemoryFile), storage.NewKnowledgeFile(cfg.KnowledgeFile), nil, nil
	}
	store, err := repository.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	return store.Memory, store.Knowledge, store, nil
}

// New loads state and catalogs and builds the engine. Missing optional
// files are logged and tolerated.
func New(ctx context.Context, cfg config.Config) (*Runtime, error) {
	convLog, err := convlog.New(convlog.Config{Enabled: !cfg.ConversationLogOff, Dir: cfg.ConversationLogDir})
	if err != nil {
		return nil, err
	}

	memRepo, kbRepo, store, err := Repos(ctx, cfg)
	if err != nil {
		return nil, err
	}
	backend := "file"
	if store != nil {
		backend = "database"
	}

	mem := memory.NewStore(memRepo)
	if err := mem.Load(ctx); err != nil {
		slog.Warn("failed to load memory, starting empty", "backend", backend, "error", err.Error())
	}
	kb := knowledge.NewBase(kbRepo)
	if err := kb.Load(ctx); err != nil {
		slog.Warn("failed to load knowledge base, starting empty", "backend", backend, "error", err.Error())
	}

	library := media.NewLibrary(cfg.ImagesDir, cfg.ImageCategoriesPath)
	if err := library.Reload(); err != nil {
		slog.Warn("failed to load media library", "path", cfg.ImageCategoriesPath, "error", err.Error())
	}
	whitelist := media.NewWhitelist(cfg.MediaWhitelistPath)
	if err := whitelist.Reload(); err != nil {
		slog.Warn("failed to load media whitelist", "path", cfg.MediaWhitelistPath, "error", err.Error())
	}
	replies := prompt.NewReplies(cfg.ReplyTemplatesPath)
	if err := replies.Reload(); err != nil {
		slog.Warn("failed to load reply templates, using defaults", "path", cfg.ReplyTemplatesPath, "error", err.Error())
	}

	var llm agent.LLMClient
	if cfg.LLMEnabled() {
		m, err := models.NewModel(ctx, cfg.LLM())
		if err != nil {
			slog.Warn("failed to create llm, replies will use templates", "provider", cfg.LLMProvider, "error", err.Error())
		} else {
			llm = models.NewChat(m, cfg.LLMTimeout)
		}
	} else {
		slog.Info("llm api key not set, replies will use templates", "provider", cfg.LLMProvider)
	}

	engine := agent.New(agent.Config{
		Store:              mem,
		Log:                convLog,
		Knowledge:          kb,
		LLM:                llm,
		Library:            library,
		Whitelist:          whitelist,
		Replies:            replies,
		SystemPromptPath:   cfg.SystemPromptPath,
		PlaybookPath:       cfg.PlaybookPath,
		UseKnowledgeFirst:  cfg.KnowledgeFirst,
		KnowledgeThreshold: cfg.KnowledgeThreshold,
		MemoryTTL:          cfg.MemoryTTL(),
		AddressCooldown:    cfg.AddressCooldown,
		HistoryLimit:       cfg.HistoryLimit,
	})

	st := engine.Status()
	slog.Info("engine ready",
		"backend", backend,
		"sessions", st.Sessions,
		"users", st.Users,
		"knowledge_items", st.KnowledgeCount,
		"llm_model", st.LLMModel,
		"conversation_log", st.ConversationLogEnabled,
	)

	return &Runtime{
		Engine:    engine,
		Knowledge: kb,
		Memory:    mem,
		Log:       convLog,
		store:     store,
	}, nil
}

// Close releases the database connection, if any.
func (r *Runtime) Close() {
	if r.store != nil {
		r.store.Close()
	}
}
