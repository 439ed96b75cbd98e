package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/option"

	"github.com/kozaktomas/photo-dedup/internal/caption"
	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/database/postgres"
	"github.com/kozaktomas/photo-dedup/internal/feature"
	"github.com/kozaktomas/photo-dedup/internal/fetch"
	"github.com/kozaktomas/photo-dedup/internal/logging"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
	"github.com/kozaktomas/photo-dedup/internal/resilience"
	"github.com/kozaktomas/photo-dedup/internal/similarity"
)

const serviceName = "photo-dedup"

// deps holds the collaborators of a pipeline built from configuration.
type deps struct {
	cfg       *config.Config
	logger    *slog.Logger
	fetcher   *fetch.Client
	extractor *feature.Extractor
	captioner *caption.Captioner
	cache     *postgres.Pool
	modelHeld bool
}

// newDeps wires fetcher, embedding model, feature cache and captioner from cfg.
// withVisual and withSemantic skip the collaborators of disabled layers.
func newDeps(ctx context.Context, cfg *config.Config, withVisual, withSemantic bool) (*deps, error) {
	logger := logging.NewLogger(serviceName, cfg.LogLevel)
	exec := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	d := &deps{
		cfg:    cfg,
		logger: logger,
		fetcher: fetch.NewClient(fetch.Config{
			Timeout:   cfg.Fetch.Timeout,
			RateLimit: cfg.Fetch.RateLimit,
			Burst:     cfg.Pipeline.BatchSize,
		}, exec),
	}

	if withVisual {
		var opts []feature.ExtractorOption
		opts = append(opts, feature.WithLogger(logger))

		if cfg.Database.URL != "" {
			pool, err := postgres.Open(ctx, &cfg.Database)
			if err != nil {
				return nil, fmt.Errorf("failed to open feature cache: %w", err)
			}
			d.cache = pool
			opts = append(opts, feature.WithCache(postgres.NewFeatureCache(pool)))
		}

		model := feature.NewHTTPModel(cfg.Embedding.URL, "", cfg.Embedding.Dim, exec)
		d.extractor = feature.NewExtractor(model, opts...)
	}

	if withSemantic && cfg.Caption.Provider != "" {
		provider, err := newCaptionProvider(ctx, cfg, exec)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.captioner = caption.NewCaptioner(provider, d.fetcher, logger)
	}

	return d, nil
}

// newCaptionProvider returns the provider selected by CAPTION_PROVIDER.
func newCaptionProvider(ctx context.Context, cfg *config.Config, exec *resilience.Executor) (caption.Provider, error) {
	switch cfg.Caption.Provider {
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required for the openai caption provider")
		}
		pricing := cfg.GetModelPricing("gpt-4.1-mini").Standard
		return caption.NewOpenAIProvider(cfg.OpenAI.Token,
			caption.Pricing{Input: pricing.Input, Output: pricing.Output},
			option.WithMaxRetries(2),
		), nil
	case "gemini":
		apiKey := cfg.Gemini.GetAPIKey()
		if apiKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required for the gemini caption provider")
		}
		pricing := cfg.GetModelPricing("gemini-2.5-flash").Standard
		provider, err := caption.NewGeminiProvider(ctx, apiKey, caption.Pricing{Input: pricing.Input, Output: pricing.Output})
		if err != nil {
			return nil, err
		}
		return provider, nil
	case "ollama":
		return caption.NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model, exec), nil
	case "llamacpp":
		provider, err := caption.NewLlamaCppProvider(cfg.LlamaCpp.URL, cfg.LlamaCpp.Model, exec)
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown caption provider %q (expected openai, gemini, ollama or llamacpp)", cfg.Caption.Provider)
	}
}

// pipelineOptions converts the PIPELINE_* configuration into run options.
func pipelineOptions(cfg *config.Config) pipeline.Options {
	opts := pipeline.DefaultOptions()
	p := cfg.Pipeline

	opts.SimilarityThreshold = p.SimilarityThreshold
	opts.ConfidenceThreshold = p.ConfidenceThreshold
	opts.DHashSize = p.DHashSize
	opts.DHashThreshold = p.DHashThreshold
	opts.SemanticThreshold = p.SemanticThreshold
	opts.BatchSize = p.BatchSize
	opts.BatchDelay = p.BatchDelay
	opts.FallbackSampleSize = p.FallbackSampleSize
	if purposes := photo.ParsePurposes(p.ImagePurposes); len(purposes) > 0 {
		opts.ImagePurposes = purposes
	}
	return opts
}

// newPipeline builds a pipeline over the collaborators.
func (d *deps) newPipeline(telemetry pipeline.Telemetry) *pipeline.Pipeline {
	opts := []pipeline.Option{
		pipeline.WithLogger(d.logger),
		pipeline.WithVocabulary(similarity.NewVocabulary(d.cfg.Vocabulary.Terms)),
	}
	if telemetry != nil {
		opts = append(opts, pipeline.WithTelemetry(telemetry))
	}
	if d.extractor != nil {
		opts = append(opts, pipeline.WithExtractor(d.extractor))
	}
	if d.captioner != nil {
		opts = append(opts, pipeline.WithCaptioner(d.captioner))
	}
	return pipeline.New(d.fetcher, opts...)
}

// holdModel loads the embedding model and keeps it loaded until Close, so
// every run of a long-lived pipeline reuses it.
func (d *deps) holdModel(ctx context.Context) error {
	if d.extractor == nil || d.modelHeld {
		return nil
	}
	if err := d.extractor.Init(ctx); err != nil {
		return err
	}
	d.modelHeld = true
	return nil
}

// Close releases the held model and the feature cache connection.
func (d *deps) Close() {
	if d.modelHeld {
		if err := d.extractor.Dispose(); err != nil {
			d.logger.Warn("failed to release feature model", "error", err)
		}
		d.modelHeld = false
	}
	if d.cache != nil {
		if err := d.cache.Close(); err != nil {
			d.logger.Warn("failed to close feature cache", "error", err)
		}
	}
}
