package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/refundworks/refundflow/internal/columns"
	"github.com/refundworks/refundflow/internal/config"
	"github.com/refundworks/refundflow/internal/engine"
	"github.com/refundworks/refundflow/internal/llm"
	"github.com/refundworks/refundflow/internal/service"
	"github.com/refundworks/refundflow/internal/storage"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DefaultDataPath()
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initRegistry loads the configured column layout, or the default one.
func initRegistry() (*columns.Registry, error) {
	layoutPath := viper.GetString("columns.layout")

	layout := columns.DefaultLayout()
	if layoutPath != "" {
		loaded, err := columns.LoadLayout(config.ExpandPath(layoutPath))
		if err != nil {
			return nil, fmt.Errorf("failed to load column layout: %w", err)
		}
		layout = loaded
	}

	return columns.NewRegistry(layout)
}

// loadAllocationDefaults reads the methodology allocation config. A configured
// but unreadable file is fatal; an unconfigured one means no global defaults.
func loadAllocationDefaults() (map[string]float64, error) {
	path := viper.GetString("allocation.config")
	if path == "" {
		return nil, nil
	}

	cfg, err := config.LoadAllocationConfig(config.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation config: %w", err)
	}
	return cfg.Methodologies, nil
}

// createRefiner creates the semantic classifier from configuration. Provider
// "none" disables semantic refinement entirely.
func createRefiner() (engine.SemanticRefiner, error) {
	provider := viper.GetString("llm.provider")
	if provider == "" || provider == "none" {
		return nil, nil
	}

	cfg := llm.Config{
		Provider:    provider,
		Model:       viper.GetString("llm.model"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
		MaxRetries:  viper.GetInt("llm.max_retries"),
		RetryDelay:  viper.GetDuration("llm.retry_delay"),
		Timeout:     viper.GetDuration("llm.timeout"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
	}

	switch provider {
	case "openai":
		cfg.APIKey = viper.GetString("llm.openai_api_key")
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key not found in config or OPENAI_API_KEY environment variable")
		}
	case "anthropic":
		cfg.APIKey = viper.GetString("llm.anthropic_api_key")
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key not found in config or ANTHROPIC_API_KEY environment variable")
		}
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}

	return llm.NewClassifier(cfg, slog.Default())
}

// buildEngine assembles the classification engine from configuration.
func buildEngine(ctx context.Context, withRefiner bool) (*engine.Engine, service.Storage, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	registry, err := initRegistry()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	defaults, err := loadAllocationDefaults()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	var refiner engine.SemanticRefiner
	if withRefiner {
		refiner, err = createRefiner()
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
	}

	cfg := engine.DefaultConfig()
	cfg.AllocationDefaults = defaults
	if workers := viper.GetInt("classification.workers"); workers > 0 {
		cfg.Workers = workers
	}
	if rate := viper.GetFloat64("tax.rate"); rate > 0 {
		cfg.TaxRate = rate
	}
	if threshold := viper.GetInt("classification.review_threshold"); threshold > 0 {
		cfg.ReviewThreshold = threshold
	}

	return engine.New(store, registry, refiner, slog.Default(), cfg), store, nil
}

func closeStorage(store service.Storage) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}
