package cmd

import (
	"context"
	"fmt"
	"time"

	"mnemo/internal/config"
	"mnemo/internal/domain"
	"mnemo/internal/embedding"
	"mnemo/internal/embedding/hashed"
	"mnemo/internal/embedding/ollama"
	"mnemo/internal/llm"
	"mnemo/internal/parser"
	"mnemo/internal/service"
	"mnemo/internal/summarizer"
	"mnemo/internal/vectorstore"
	"mnemo/internal/vectorstore/flat"
	"mnemo/internal/vectorstore/hnsw"
	"mnemo/internal/vectorstore/qdrant"
)

func newEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	var emb embedding.Embedder
	switch cfg.Embedder.Type {
	case "ollama", "":
		emb = ollama.NewClient(ollama.Config{
			BaseURL: cfg.OllamaBaseURL(),
			Model:   cfg.EmbeddingModelName,
			Timeout: cfg.OllamaTimeout(),
		})
	case "hashed":
		emb = hashed.NewEmbedder(cfg.Embedder.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	if cfg.Embedder.CacheSize > 0 {
		emb = embedding.NewCached(emb, cfg.Embedder.CacheSize)
	}
	return emb, nil
}

func newIndexFactory(cfg *config.AppConfig) (service.IndexFactory, error) {
	switch cfg.Index.Type {
	case "flat", "":
		return func() (vectorstore.Index, error) { return flat.NewStorage(), nil }, nil
	case "hnsw":
		hcfg := hnsw.Config{M: cfg.Index.M, EfSearch: cfg.Index.EfSearch}
		return func() (vectorstore.Index, error) { return hnsw.NewStorage(hcfg), nil }, nil
	case "qdrant":
		if cfg.Index.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		qcfg := qdrant.Config{
			URL:        cfg.Index.Qdrant.URL,
			APIKey:     cfg.Index.Qdrant.APIKey,
			Collection: cfg.Index.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Index.Qdrant.TimeoutSecs) * time.Second,
		}
		return func() (vectorstore.Index, error) { return qdrant.NewStorage(qcfg), nil }, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s", cfg.Index.Type)
	}
}

// modelPreflight fails an organize run early when Ollama is down or the tier's
// model has not been pulled.
func modelPreflight(cfg *config.AppConfig, client *llm.Client) service.Preflight {
	return func(ctx context.Context, tier string) error {
		model := cfg.ModelForTier(tier)
		ok, err := client.HasModel(ctx, model)
		if err != nil {
			return fmt.Errorf("check model %s: %w", model, err)
		}
		if !ok {
			return fmt.Errorf("model %s not found, run 'ollama pull %s': %w", model, model, domain.ErrLLMUnavailable)
		}
		return nil
	}
}

// newService assembles the service from the loaded config.
func (a *app) newService(offline bool) (*service.Service, error) {
	emb, err := newEmbedder(a.cfg)
	if err != nil {
		return nil, err
	}
	newIndex, err := newIndexFactory(a.cfg)
	if err != nil {
		return nil, err
	}
	if offline {
		return service.New(a.cfg, a.cfgPath, parser.Default(), emb, summarizer.NewFactory(a.cfg, nil, true), newIndex), nil
	}
	client := llm.NewClient(a.cfg.OllamaBaseURL(), a.cfg.OllamaTimeout())
	svc := service.New(a.cfg, a.cfgPath, parser.Default(), emb, summarizer.NewFactory(a.cfg, client, false), newIndex)
	return svc.WithPreflight(modelPreflight(a.cfg, client)), nil
}
