// Package main provides the operator CLI for deployment and data maintenance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/easeaico/storefront-cs/internal/bootstrap"
	"github.com/easeaico/storefront-cs/internal/config"
	"github.com/easeaico/storefront-cs/internal/knowledge"
	"github.com/easeaico/storefront-cs/internal/memory"
	"github.com/easeaico/storefront-cs/internal/repository"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	_ = godotenv.Load()

	command := os.Args[1]

	switch command {
	case "migrate":
		migrateCmd(os.Args[2:])
	case "schema":
		schemaCmd(os.Args[2:])
	case "validate":
		validateCmd()
	case "kb-import":
		kbImportCmd(os.Args[2:])
	case "kb-export":
		kbExportCmd(os.Args[2:])
	case "prune":
		pruneCmd(os.Args[2:])
	case "version":
		fmt.Printf("storefront-cs operator v%s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`storefront-cs operator - Deployment and operations CLI

Usage:
  operator <command> [flags]

Commands:
  migrate     Create or update the session, user and knowledge tables
  schema      Execute SQL migration files from migrations/ directory
  validate    Validate environment configuration
  kb-import   Import knowledge items from a JSON file
  kb-export   Export the knowledge base as JSON
  prune       Drop sessions and users idle longer than MEMORY_TTL_DAYS
  version     Show version information
  help        Show this help message

Examples:
  operator migrate                        # AutoMigrate the tables in DATABASE_URL
  operator schema --file 001_init.sql     # Execute a specific migration file
  operator validate                       # Check settings and database connection
  operator kb-import --file faq.json      # Add items to the active backend
  operator kb-export --out backup.json    # Write every item to a file
  operator prune --dry-run                # Show how many entries are cached`)
}

// migrateCmd handles the migrate command.
func migrateCmd(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Show what would be migrated without executing")
	_ = fs.Parse(args)

	cfg := loadConfigForOperator(true)

	if *dryRun {
		fmt.Println("Dry run mode - no changes will be made")
		fmt.Println("  - Would migrate session_states, user_states and knowledge_items")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := repository.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	fmt.Println("Migrating application tables...")
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate app tables: %v", err)
	}
	fmt.Println("  ✓ Application tables migrated")
	fmt.Println("\nMigration completed successfully!")
}

// schemaCmd handles the schema command for executing SQL files.
func schemaCmd(args []string) {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	file := fs.String("file", "", "Specific migration file to execute")
	migrationsDir := fs.String("dir", "migrations", "Directory containing migration files")
	dryRun := fs.Bool("dry-run", false, "Show what would be executed without running")
	_ = fs.Parse(args)

	cfg := loadConfigForOperator(true)

	files, err := findMigrationFiles(*migrationsDir, *file)
	if err != nil {
		log.Fatalf("failed to find migration files: %v", err)
	}
	if len(files) == 0 {
		fmt.Println("No migration files found")
		return
	}

	fmt.Printf("Found %d migration file(s):\n", len(files))
	for _, f := range files {
		fmt.Printf("  - %s\n", filepath.Base(f))
	}
	if *dryRun {
		fmt.Println("\nDry run mode - no SQL will be executed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := repository.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	fmt.Println("\nExecuting migrations...")
	for _, f := range files {
		fmt.Printf("  Running %s... ", filepath.Base(f))
		if err := executeSQLFile(store.DB().WithContext(ctx), f); err != nil {
			fmt.Println("✗")
			log.Fatalf("failed to execute %s: %v", f, err)
		}
		fmt.Println("✓")
	}
	fmt.Println("\nSchema migration completed successfully!")
}

// validateCmd validates the configuration.
func validateCmd() {
	fmt.Println("Validating configuration...")

	cfg := config.Load()
	masked := cfg.Masked()
	keys := make([]string, 0, len(masked))
	for k := range masked {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if masked[k] == "" {
			fmt.Printf("  - %s: not set\n", k)
			continue
		}
		fmt.Printf("  ✓ %s: %s\n", k, masked[k])
	}

	if err := cfg.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Printf("  ✗ %s\n", line)
		}
		fmt.Println("\nConfiguration validation failed!")
		os.Exit(1)
	}
	if !cfg.LLMEnabled() {
		fmt.Println("  ! LLM_API_KEY not set, replies will use templates only")
	}

	for _, p := range []string{cfg.SystemPromptPath, cfg.PlaybookPath, cfg.ImageCategoriesPath, cfg.MediaWhitelistPath, cfg.ReplyTemplatesPath} {
		if _, err := os.Stat(p); err != nil {
			fmt.Printf("  ! %s missing (optional)\n", p)
		}
	}

	if cfg.DatabaseURL != "" {
		fmt.Println("\nTesting database connection...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store, err := repository.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			fmt.Printf("  ✗ Failed to connect: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			fmt.Printf("  ✗ Failed to ping: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("  ✓ Database connection successful")
	}

	fmt.Println("\nConfiguration validation completed!")
}

func kbImportCmd(args []string) {
	fs := flag.NewFlagSet("kb-import", flag.ExitOnError)
	file := fs.String("file", "", "JSON file with knowledge items")
	clearFirst := fs.Bool("clear", false, "Remove existing items before importing")
	_ = fs.Parse(args)

	if *file == "" {
		log.Fatal("--file is required")
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("failed to read %s: %v", *file, err)
	}

	ctx := context.Background()
	kb, closeFn := openKnowledge(ctx)
	defer closeFn()

	if *clearFirst {
		if err := kb.Clear(ctx); err != nil {
			log.Fatalf("failed to clear knowledge base: %v", err)
		}
		fmt.Println("  ✓ Existing items removed")
	}
	imported, skipped, err := kb.Import(ctx, data)
	if err != nil {
		log.Fatalf("failed to import knowledge: %v", err)
	}
	fmt.Printf("Imported %d item(s), skipped %d, total %d\n", imported, skipped, kb.Count())
}

func kbExportCmd(args []string) {
	fs := flag.NewFlagSet("kb-export", flag.ExitOnError)
	out := fs.String("out", "", "Output file (stdout when empty)")
	_ = fs.Parse(args)

	ctx := context.Background()
	kb, closeFn := openKnowledge(ctx)
	defer closeFn()

	data, err := kb.Export()
	if err != nil {
		log.Fatalf("failed to export knowledge: %v", err)
	}
	if *out == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatalf("failed to write %s: %v", *out, err)
	}
	fmt.Printf("Exported %d item(s) to %s\n", kb.Count(), *out)
}

func pruneCmd(args []string) {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Only report the cached entry counts")
	_ = fs.Parse(args)

	cfg := loadConfigForOperator(false)
	ctx := context.Background()

	memRepo, _, store, err := bootstrap.Repos(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	mem := memory.NewStore(memRepo)
	if err := mem.Load(ctx); err != nil {
		log.Fatalf("failed to load memory: %v", err)
	}
	sessions, users := mem.Counts()
	fmt.Printf("Cached: %d session(s), %d user(s)\n", sessions, users)
	if *dryRun {
		fmt.Println("Dry run mode - nothing removed")
		return
	}
	sessions, users = mem.PruneExpired(ctx, cfg.MemoryTTL())
	fmt.Printf("Removed %d session(s) and %d user(s) idle longer than %d day(s)\n", sessions, users, cfg.MemoryTTLDays)
}

func openKnowledge(ctx context.Context) (*knowledge.Base, func()) {
	cfg := loadConfigForOperator(false)
	_, kbRepo, store, err := bootstrap.Repos(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	closeFn := func() {
		if store != nil {
			store.Close()
		}
	}
	kb := knowledge.NewBase(kbRepo)
	if err := kb.Load(ctx); err != nil {
		closeFn()
		log.Fatalf("failed to load knowledge base: %v", err)
	}
	return kb, closeFn
}

// loadConfigForOperator loads config with relaxed validation. needDB makes
// DATABASE_URL mandatory.
func loadConfigForOperator(needDB bool) config.Config {
	cfg := config.Load()
	if needDB && cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	if cfg.MemoryTTLDays <= 0 {
		log.Fatalf("MEMORY_TTL_DAYS must be positive, got %d", cfg.MemoryTTLDays)
	}
	return cfg
}

func findMigrationFiles(dir, specificFile string) ([]string, error) {
	if specificFile != "" {
		fullPath := filepath.Join(dir, specificFile)
		if _, err := os.Stat(fullPath); err != nil {
			return nil, fmt.Errorf("migration file not found: %s", fullPath)
		}
		return []string{fullPath}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func executeSQLFile(db *gorm.DB, filePath string) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := db.Exec(string(content)).Error; err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}
