package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/internal/config"
	"mnemo/internal/domain"
	"mnemo/internal/embedding"
	"mnemo/internal/llm"
)

func TestModelPreflight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"small:latest"}]}`))
	}))
	defer srv.Close()

	cfg, err := config.Load(t.TempDir() + "/config.json")
	require.NoError(t, err)
	cfg.Ollama.QualityModel = "big"
	cfg.Ollama.SpeedModel = "small"
	check := modelPreflight(cfg, llm.NewClient(srv.URL, time.Second))

	require.NoError(t, check(context.Background(), "speed"))
	err = check(context.Background(), "quality")
	require.ErrorIs(t, err, domain.ErrLLMUnavailable)
	assert.Contains(t, err.Error(), "ollama pull big")
}

func TestModelPreflightUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg, err := config.Load(t.TempDir() + "/config.json")
	require.NoError(t, err)
	err = modelPreflight(cfg, llm.NewClient(url, time.Second))(context.Background(), "quality")
	require.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestNewEmbedderCaches(t *testing.T) {
	cfg, err := config.Load(t.TempDir() + "/config.json")
	require.NoError(t, err)
	cfg.Embedder.Type = "hashed"
	cfg.Embedder.Dimension = 32
	cfg.Embedder.CacheSize = 10

	emb, err := newEmbedder(cfg)
	require.NoError(t, err)
	_, cached := emb.(*embedding.Cached)
	assert.True(t, cached)
	assert.Equal(t, 32, emb.Dimension())
}

func TestNewIndexFactory(t *testing.T) {
	cfg, err := config.Load(t.TempDir() + "/config.json")
	require.NoError(t, err)

	for _, typ := range []string{"flat", "hnsw"} {
		cfg.Index.Type = typ
		newIndex, err := newIndexFactory(cfg)
		require.NoError(t, err, typ)
		idx, err := newIndex()
		require.NoError(t, err, typ)
		assert.Equal(t, 0, idx.Len(), typ)
	}

	cfg.Index.Type = "qdrant"
	cfg.Index.Qdrant = nil
	_, err = newIndexFactory(cfg)
	require.Error(t, err)
}
