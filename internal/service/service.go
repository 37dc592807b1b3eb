// Package service ties parsing, summarization, embedding and the vector index
// together into the initialize / organize / search operations.
package service

import (
	"context"
	"fmt"
	"os"
	"sync"

	"mnemo/internal/catalog"
	"mnemo/internal/config"
	"mnemo/internal/domain"
	"mnemo/internal/embedding"
	"mnemo/internal/parser"
	"mnemo/internal/summarizer"
	"mnemo/internal/vectorstore"
)

// IndexFactory returns a fresh, empty index of the configured type.
type IndexFactory func() (vectorstore.Index, error)

// Preflight checks that the summarization model of a tier can be used before
// an organize run starts.
type Preflight func(ctx context.Context, tier string) error

// Service is safe for concurrent use. Index writes are serialized in-process
// by a mutex and across processes by a lock file in the database folder.
type Service struct {
	cfgMu   sync.RWMutex
	cfg     *config.AppConfig
	cfgPath string

	parsers     *parser.Registry
	embedder    embedding.Embedder
	summarizers summarizer.Factory
	newIndex    IndexFactory
	preflight   Preflight

	mu   sync.RWMutex
	snap *snapshot
}

func New(cfg *config.AppConfig, cfgPath string, parsers *parser.Registry, emb embedding.Embedder, sums summarizer.Factory, newIndex IndexFactory) *Service {
	return &Service{
		cfg:         cfg,
		cfgPath:     cfgPath,
		parsers:     parsers,
		embedder:    emb,
		summarizers: sums,
		newIndex:    newIndex,
	}
}

// WithPreflight sets the check run before each organize.
func (s *Service) WithPreflight(fn Preflight) *Service {
	s.preflight = fn
	return s
}

// Config returns a copy of the current configuration.
func (s *Service) Config() config.AppConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return *s.cfg
}

// Initialize sets the database folder and persists the configuration.
func (s *Service) Initialize(folder string) error {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	next := *s.cfg
	if err := next.Initialize(folder); err != nil {
		return err
	}
	if s.cfgPath != "" {
		// the file keeps its own values; environment overrides stay in memory
		stored, err := config.LoadFile(s.cfgPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		stored.DatabaseFolder = next.DatabaseFolder
		stored.MetadataWithIDPath = next.MetadataWithIDPath
		stored.ModelFingerprintPath = next.ModelFingerprintPath
		stored.FaissIndexPath = next.FaissIndexPath
		if err := config.Save(s.cfgPath, stored); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}
	*s.cfg = next

	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
	return nil
}

type paths struct {
	folder      string
	metadata    string
	fingerprint string
	index       string
}

func (s *Service) paths() (paths, error) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	if !s.cfg.Initialized() {
		return paths{}, domain.ErrNotInitialized
	}
	return paths{
		folder:      s.cfg.DatabaseFolder,
		metadata:    s.cfg.MetadataWithIDPath,
		fingerprint: s.cfg.ModelFingerprintPath,
		index:       s.cfg.FaissIndexPath,
	}, nil
}

func (p paths) catalog() *catalog.Catalog {
	return catalog.New(p.metadata, p.fingerprint)
}

// hasDatabase reports whether both the index and the metadata exist.
func (p paths) hasDatabase() bool {
	return fileExists(p.index) && p.catalog().Exists()
}

// Status describes the database folder.
type Status struct {
	Initialized        bool   `json:"initialized"`
	DatabaseFolder     string `json:"database_folder"`
	HasDatabase        bool   `json:"has_database"`
	Documents          int    `json:"documents"`
	Vectors            int    `json:"vectors"`
	EmbeddingModel     string `json:"embedding_model"`
	IndexType          string `json:"index_type"`
	Fingerprint        string `json:"fingerprint,omitempty"`
	CurrentFingerprint string `json:"current_fingerprint,omitempty"`
	ModelConsistent    bool   `json:"model_consistent"`
	Warning            string `json:"warning,omitempty"`
}

// Status reports the state of the database. The current fingerprint needs the
// embedder's dimension; when it cannot be resolved a warning is set instead.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	cfg := s.Config()
	st := &Status{
		Initialized:    cfg.Initialized(),
		DatabaseFolder: cfg.DatabaseFolder,
		EmbeddingModel: s.embedder.Name(),
		IndexType:      cfg.Index.Type,
	}
	p, err := s.paths()
	if err != nil {
		return st, nil
	}
	st.HasDatabase = p.hasDatabase()

	if st.HasDatabase {
		snap, err := s.load(p)
		if err != nil {
			return nil, err
		}
		st.Documents = len(snap.docs)
		st.Vectors = snap.index.Len()
	}

	fp, ok, err := p.catalog().Fingerprint()
	if err != nil {
		return nil, err
	}
	st.Fingerprint = fp

	dim, err := embedding.ResolveDimension(ctx, s.embedder)
	if err != nil {
		st.Warning = fmt.Sprintf("embedding model unavailable: %v", err)
		return st, nil
	}
	st.CurrentFingerprint = embedding.Fingerprint(s.embedder.Name(), dim)
	st.ModelConsistent = !ok || fp == st.CurrentFingerprint
	return st, nil
}

// Document returns the stored metadata of id.
func (s *Service) Document(id int64) (domain.Document, error) {
	p, err := s.paths()
	if err != nil {
		return domain.Document{}, err
	}
	if !p.hasDatabase() {
		return domain.Document{}, domain.ErrNoDatabase
	}
	snap, err := s.load(p)
	if err != nil {
		return domain.Document{}, err
	}
	doc, ok := snap.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
	}
	return doc, nil
}

// snapshot caches the loaded index and metadata between searches. It is
// reloaded when either file changes on disk.
type snapshot struct {
	index    vectorstore.Index
	docs     map[int64]domain.Document
	indexMod fileStamp
	metaMod  fileStamp
}

type fileStamp struct {
	mod  int64
	size int64
}

func stampOf(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{mod: info.ModTime().UnixNano(), size: info.Size()}
}

func (s *Service) load(p paths) (*snapshot, error) {
	indexMod, metaMod := stampOf(p.index), stampOf(p.metadata)

	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap != nil && snap.indexMod == indexMod && snap.metaMod == metaMod {
		return snap, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(p)
}

// loadLocked requires s.mu held for writing.
func (s *Service) loadLocked(p paths) (*snapshot, error) {
	indexMod, metaMod := stampOf(p.index), stampOf(p.metadata)
	if s.snap != nil && s.snap.indexMod == indexMod && s.snap.metaMod == metaMod {
		return s.snap, nil
	}
	idx, err := s.newIndex()
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	if err := idx.Load(p.index); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	docs, err := p.catalog().Load()
	if err != nil {
		return nil, err
	}
	s.snap = &snapshot{index: idx, docs: docs, indexMod: indexMod, metaMod: metaMod}
	return s.snap, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
