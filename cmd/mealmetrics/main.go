package main

import (
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/mealmetrics/mealmetrics/internal/config"
	"github.com/mealmetrics/mealmetrics/internal/db"
	"github.com/mealmetrics/mealmetrics/internal/imageprep"
	"github.com/mealmetrics/mealmetrics/internal/logging"
	"github.com/mealmetrics/mealmetrics/internal/photostore/local"
	"github.com/mealmetrics/mealmetrics/internal/service"
	"github.com/mealmetrics/mealmetrics/internal/store"
	"github.com/mealmetrics/mealmetrics/internal/vision"
	anthropicvision "github.com/mealmetrics/mealmetrics/internal/vision/anthropic"
	ollamavision "github.com/mealmetrics/mealmetrics/internal/vision/ollama"
	"github.com/mealmetrics/mealmetrics/internal/vision/openrouter"
	"github.com/mealmetrics/mealmetrics/internal/web"
)

func main() {
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	mealStore := store.NewMealStore(database)

	photoStg, err := local.NewLocalPhotoStore(cfg.PhotoPath)
	if err != nil {
		logger.Error("failed to initialize photo store", "error", err)
		return
	}

	models, err := buildModelChain(cfg, logger)
	if err != nil {
		logger.Error("failed to build model chain", "error", err)
		return
	}

	gateway, err := vision.NewGateway(models, vision.GatewayOptions{
		BaseDelay: time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:  time.Duration(cfg.RetryMaxDelaySec) * time.Second,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize gateway", "error", err)
		return
	}

	prepOpts := imageprep.DefaultOptions()
	prepOpts.MaxDimension = cfg.MaxImageDimension
	preparer := imageprep.NewPreparer(prepOpts, logger)

	svc := service.NewAnalysisService(
		preparer,
		gateway,
		mealStore,
		photoStg,
		int64(cfg.MaxImageSizeMB)*1024*1024,
		logger,
	)

	server := web.NewServer(svc, photoStg, logger)
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

// buildModelChain turns the ranked backend:model pairs from configuration
// into ModelSpecs. Backends whose credentials are missing are skipped with a
// warning so a partially configured deployment still runs on its remaining
// models.
func buildModelChain(cfg *config.Config, logger *slog.Logger) ([]vision.ModelSpec, error) {
	timeout := time.Duration(cfg.ModelTimeoutSec) * time.Second

	var openrouterClient *openrouter.Client
	var anthropicClient *anthropicvision.Client
	var ollamaClient *ollamavision.Client

	var specs []vision.ModelSpec
	for _, entry := range strings.Split(cfg.ModelChain, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		backend, model, ok := strings.Cut(entry, ":")
		if !ok || model == "" {
			return nil, fmt.Errorf("invalid model chain entry %q, expected backend:model", entry)
		}

		var client vision.ModelClient
		switch backend {
		case "openrouter":
			if cfg.OpenRouterAPIKey == "" {
				logger.Warn("skipping model, OPENROUTER_API_KEY not set", "model", model)
				continue
			}
			if openrouterClient == nil {
				openrouterClient = openrouter.NewClient(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL)
			}
			client = openrouterClient
		case "anthropic":
			if cfg.AnthropicAPIKey == "" {
				logger.Warn("skipping model, ANTHROPIC_API_KEY not set", "model", model)
				continue
			}
			if anthropicClient == nil {
				anthropicClient = anthropicvision.NewClient(cfg.AnthropicAPIKey)
			}
			client = anthropicClient
		case "ollama":
			if ollamaClient == nil {
				ollamaClient = ollamavision.NewClient(cfg.OllamaHost)
			}
			client = ollamaClient
		default:
			return nil, fmt.Errorf("unknown model backend %q", backend)
		}

		specs = append(specs, vision.ModelSpec{
			Name:       model,
			Client:     client,
			Timeout:    timeout,
			MaxRetries: cfg.ModelMaxRetries,
		})
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("model chain is empty after filtering, check MODEL_CHAIN and API keys")
	}

	logger.Info("model chain configured", "models", len(specs))
	return specs, nil
}
