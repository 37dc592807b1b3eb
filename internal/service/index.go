package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"mnemo/internal/catalog"
	"mnemo/internal/domain"
	"mnemo/internal/embedding"
	"mnemo/internal/vectorstore"
)

// indexBatch embeds docs and merges them into the stored index and metadata.
// Per-file problems are recorded in report; the returned error is fatal for the run.
func (s *Service) indexBatch(ctx context.Context, p paths, docs []domain.Document, report *Report) error {
	if len(docs) == 0 {
		return errors.New("empty batch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.snap = nil }()

	existing := p.hasDatabase()
	idx, stored, err := s.openForWrite(p)
	if err != nil {
		return err
	}

	var (
		ids   []int64
		texts []string
		kept  []domain.Document
	)
	seen := make(map[int64]bool, len(docs))
	for _, d := range docs {
		id := catalog.DocumentID(d.FilePath)
		if _, dup := stored[id]; dup || seen[id] {
			slog.Warn("file skipped", "file", d.FileName, "id", id, "error", domain.ErrAlreadyIndexed)
			report.skip(domain.ReasonEmbedding, d.FileName)
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		texts = append(texts, embedding.PassageText(d.FileName, d.Keywords, d.Summary))
		kept = append(kept, d)
	}
	if len(kept) == 0 {
		return nil
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	if err != nil {
		slog.Error("embedding failed", "files", len(kept), "error", err)
		for _, d := range kept {
			report.skip(domain.ReasonEmbedding, d.FileName)
		}
		return nil
	}

	dim := idx.Dimension()
	if dim == 0 {
		dim = len(vecs[0])
	}
	current := embedding.Fingerprint(s.embedder.Name(), dim)
	var (
		fp       string
		mismatch bool
	)
	// a fingerprint left without index and metadata is overwritten
	if existing {
		var ok bool
		if fp, ok, err = p.catalog().Fingerprint(); err != nil {
			return err
		}
		mismatch = ok && fp != current
	}
	if !mismatch && idx.Len() > 0 {
		for _, v := range vecs {
			if len(v) != dim {
				mismatch = true
				break
			}
		}
	}
	if mismatch {
		for _, d := range kept {
			report.skip(domain.ReasonModelChanged, d.FileName)
		}
		return fmt.Errorf("stored fingerprint %q, current %q: %w", fp, current, domain.ErrModelChanged)
	}

	var (
		validIDs  []int64
		validVecs [][]float32
		validDocs []domain.Document
		invalid   []domain.Document
	)
	for i, v := range vecs {
		embedding.Normalize(v)
		if len(v) != dim || !embedding.Valid(v) {
			invalid = append(invalid, kept[i])
			continue
		}
		validIDs = append(validIDs, ids[i])
		validVecs = append(validVecs, v)
		validDocs = append(validDocs, kept[i])
	}
	if len(validVecs) == 0 {
		for _, d := range kept {
			report.skip(domain.ReasonNoValidVector, d.FileName)
		}
		return domain.ErrNoValidVectors
	}
	for _, d := range invalid {
		slog.Warn("invalid vector", "file", d.FileName)
		report.skip(domain.ReasonEmbedding, d.FileName)
	}

	if err := idx.Add(ctx, validIDs, validVecs); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	for i, id := range validIDs {
		stored[id] = validDocs[i]
	}
	if err := s.persist(p, idx, stored, current); err != nil {
		// remote indexes keep added points even when the files were not written
		if rmErr := idx.Remove(ctx, validIDs); rmErr != nil {
			slog.Warn("rollback of added vectors failed", "error", rmErr)
		}
		return err
	}
	report.processed(len(validDocs))
	slog.Info("batch indexed", "added", len(validDocs), "documents", len(stored))
	return nil
}

// openForWrite loads the stored index and metadata, or returns empty ones when
// no database exists yet. Requires s.mu.
func (s *Service) openForWrite(p paths) (vectorstore.Index, map[int64]domain.Document, error) {
	idx, err := s.newIndex()
	if err != nil {
		return nil, nil, fmt.Errorf("create index: %w", err)
	}
	if !p.hasDatabase() {
		return idx, map[int64]domain.Document{}, nil
	}
	if err := idx.Load(p.index); err != nil {
		return nil, nil, fmt.Errorf("load index: %w", err)
	}
	docs, err := p.catalog().Load()
	if err != nil {
		return nil, nil, err
	}
	return idx, docs, nil
}

// persist checks that index and metadata agree, then writes all three files.
func (s *Service) persist(p paths, idx vectorstore.Index, docs map[int64]domain.Document, fingerprint string) error {
	if idx.Len() != len(docs) {
		return fmt.Errorf("index has %d vectors but metadata has %d documents", idx.Len(), len(docs))
	}
	if err := idx.Save(p.index); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	cat := p.catalog()
	if err := cat.Save(docs); err != nil {
		return err
	}
	if fingerprint == "" {
		return nil
	}
	return cat.SaveFingerprint(fingerprint)
}

// Forget removes the documents named name (file name or full path) from the
// index and metadata so they can be organized again.
func (s *Service) Forget(ctx context.Context, name string) ([]domain.Document, error) {
	return s.remove(ctx, func(d domain.Document) bool {
		return d.FileName == name || d.FilePath == name
	})
}

// Prune forgets documents whose file no longer exists.
func (s *Service) Prune(ctx context.Context) ([]domain.Document, error) {
	removed, err := s.remove(ctx, func(d domain.Document) bool {
		_, err := os.Stat(d.FilePath)
		return errors.Is(err, os.ErrNotExist)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return removed, err
}

func (s *Service) remove(ctx context.Context, match func(domain.Document) bool) ([]domain.Document, error) {
	p, err := s.paths()
	if err != nil {
		return nil, err
	}
	if !p.hasDatabase() {
		return nil, domain.ErrNoDatabase
	}
	lock := flock.New(filepath.Join(p.folder, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock database: %w", err)
	}
	if !locked {
		return nil, domain.ErrOrganizeRunning
	}
	defer func() { _ = lock.Unlock() }()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.snap = nil }()

	idx, docs, err := s.openForWrite(p)
	if err != nil {
		return nil, err
	}
	var (
		ids     []int64
		removed []domain.Document
	)
	for id, d := range docs {
		if match(d) {
			ids = append(ids, id)
			removed = append(removed, d)
		}
	}
	if len(ids) == 0 {
		return nil, domain.ErrNotFound
	}
	if err := idx.Remove(ctx, ids); err != nil {
		return nil, fmt.Errorf("remove vectors: %w", err)
	}
	for _, id := range ids {
		delete(docs, id)
	}
	if err := s.persist(p, idx, docs, ""); err != nil {
		return nil, err
	}
	slog.Info("documents removed", "count", len(removed), "remaining", len(docs))
	return removed, nil
}
