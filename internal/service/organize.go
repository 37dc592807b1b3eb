package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"mnemo/internal/config"
	"mnemo/internal/domain"
	"mnemo/internal/summarizer"
)

const lockFileName = ".organize.lock"

// Request selects what an organize run processes.
type Request struct {
	Folder string   `json:"folder"`
	Types  []string `json:"types"`
	Tier   string   `json:"tier"`
}

// EventKind identifies a progress event.
type EventKind string

const (
	EventStarted     EventKind = "started"
	EventFileStarted EventKind = "file_started"
	EventFileDone    EventKind = "file_done"
	EventFileSkipped EventKind = "file_skipped"
	EventEmbedding   EventKind = "embedding"
	EventFinished    EventKind = "finished"
)

// Event reports organize progress. Done counts files that finished
// summarization, whether or not they were skipped.
type Event struct {
	Kind    EventKind         `json:"kind"`
	File    string            `json:"file,omitempty"`
	Reason  domain.SkipReason `json:"reason,omitempty"`
	Done    int               `json:"done"`
	Total   int               `json:"total"`
	Batch   int               `json:"batch,omitempty"`
	Batches int               `json:"batches,omitempty"`
}

// Report summarizes an organize run.
type Report struct {
	Total     int                            `json:"total"`
	Processed int                            `json:"processed"`
	Skipped   map[domain.SkipReason][]string `json:"skipped"`
	Duration  time.Duration                  `json:"-"`
	Seconds   float64                        `json:"seconds"`
	Stopped   bool                           `json:"stopped"`
	Fatal     string                         `json:"fatal,omitempty"`

	mu sync.Mutex
}

func newReport(total int) *Report {
	return &Report{Total: total, Skipped: make(map[domain.SkipReason][]string)}
}

func (r *Report) skip(reason domain.SkipReason, file string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped[reason] = append(r.Skipped[reason], file)
}

func (r *Report) processed(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Processed += n
}

// SkippedCount is the number of skipped files over all reasons.
func (r *Report) SkippedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, files := range r.Skipped {
		n += len(files)
	}
	return n
}

// AllSkipped reports a run where every attempted file was skipped.
func (r *Report) AllSkipped() bool {
	return r.Processed == 0 && r.SkippedCount() > 0
}

// Reasons returns the skip reasons in a stable order.
func (r *Report) Reasons() []domain.SkipReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SkipReason, 0, len(r.Skipped))
	for reason := range r.Skipped {
		out = append(out, reason)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Outcome renders the user-facing result lines of a finished run.
func Outcome(report *Report, err error) []string {
	var out []string
	switch {
	case errors.Is(err, domain.ErrNothingToOrganize):
		return []string{"No valid files found in this folder or all files have been indexed already."}
	case err != nil && report == nil:
		return []string{"Error: " + err.Error()}
	case err != nil:
		out = append(out, fmt.Sprintf("WARNING: A fatal %s has occurred!", domain.FatalReason(err)))
	}
	if report == nil {
		return out
	}
	reasons := report.Reasons()
	names := make([]string, len(reasons))
	var files []string
	for i, r := range reasons {
		names[i] = string(r)
		files = append(files, report.Skipped[r]...)
	}
	if report.AllSkipped() {
		return append(out, fmt.Sprintf("All files in the folder are skipped due to errors %s, please check the folder path and file types.",
			strings.Join(names, ", ")))
	}
	if err == nil {
		mins := report.Duration.Minutes()
		if report.Stopped {
			out = append(out, fmt.Sprintf("Stopped. Processed %d files, took %.2f mins.", report.Processed, mins))
		} else {
			out = append(out, fmt.Sprintf("Processed %d files successfully, took %.2f mins.", report.Processed, mins))
		}
	}
	if len(files) > 0 {
		out = append(out, fmt.Sprintf("Skipped %d files due to errors %s: %s", len(files), strings.Join(names, ", "), strings.Join(files, ", ")))
	}
	return out
}

// Extensions maps organize types ("pdf", "ppt") to file extensions. No types
// selects all of them.
func Extensions(types []string) ([]string, error) {
	if len(types) == 0 {
		return []string{".pdf", ".pptx"}, nil
	}
	var exts []string
	seen := map[string]bool{}
	for _, t := range types {
		var ext string
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "pdf":
			ext = ".pdf"
		case "ppt", "pptx":
			ext = ".pptx"
		default:
			return nil, fmt.Errorf("unknown file type %q", t)
		}
		if !seen[ext] {
			seen[ext] = true
			exts = append(exts, ext)
		}
	}
	return exts, nil
}

// PlanOrganize lists the files of folder (non-recursive) that match types and
// are not yet indexed, by file name.
func (s *Service) PlanOrganize(folder string, types []string) ([]string, error) {
	p, err := s.paths()
	if err != nil {
		return nil, err
	}
	exts, err := Extensions(types)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read folder: %w", err)
	}
	indexed, err := p.catalog().IndexedNames()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~$") {
			continue
		}
		if !hasExt(name, exts) {
			continue
		}
		if _, ok := indexed[name]; ok {
			continue
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return nil, domain.ErrNothingToOrganize
	}
	return files, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Organize summarizes and indexes the new files of req.Folder in batches.
// Cancelling ctx stops the run gracefully: files already being summarized
// finish, the batch gathered so far is indexed and Report.Stopped is set.
// Model changes and batches without any valid vector end the run with an error.
func (s *Service) Organize(ctx context.Context, req Request, progress func(Event)) (*Report, error) {
	p, err := s.paths()
	if err != nil {
		return nil, err
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

	folder, err := filepath.Abs(req.Folder)
	if err != nil {
		return nil, err
	}
	files, err := s.PlanOrganize(folder, req.Types)
	if err != nil {
		return nil, err
	}
	if s.preflight != nil {
		if err := s.preflight(ctx, req.Tier); err != nil {
			return nil, err
		}
	}

	cfg := s.Config()
	sum := s.summarizers(req.Tier)
	emit := serialize(progress)
	report := newReport(len(files))
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		report.Seconds = report.Duration.Seconds()
	}()

	slog.Info("organize started", "folder", folder, "files", len(files), "tier", req.Tier)
	emit(Event{Kind: EventStarted, Total: len(files)})

	batches := split(files, cfg.Organize.BatchSize)
	var done atomic.Int64
	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		docs := s.summarizeBatch(ctx, folder, batch, sum, cfg.Organize, report, emit, &done, len(files))
		if len(docs) == 0 {
			continue
		}
		emit(Event{Kind: EventEmbedding, Done: int(done.Load()), Total: len(files), Batch: i + 1, Batches: len(batches)})
		if err := s.indexBatch(context.WithoutCancel(ctx), p, docs, report); err != nil {
			report.Fatal = err.Error()
			slog.Error("organize aborted", "batch", i+1, "error", err)
			emit(Event{Kind: EventFinished, Done: int(done.Load()), Total: len(files)})
			return report, err
		}
	}
	report.Stopped = ctx.Err() != nil

	emit(Event{Kind: EventFinished, Done: int(done.Load()), Total: len(files)})
	slog.Info("organize finished",
		"processed", report.Processed,
		"skipped", report.SkippedCount(),
		"stopped", report.Stopped,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return report, nil
}

// summarizeBatch returns the documents of batch that were summarized, in batch order.
func (s *Service) summarizeBatch(ctx context.Context, folder string, batch []string, sum domain.Summarizer, opts config.OrganizeConfig, report *Report, emit func(Event), done *atomic.Int64, total int) []domain.Document {
	results := make([]*domain.Document, len(batch))
	workCtx := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(max(opts.Workers, 1))
	for i, name := range batch {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			emit(Event{Kind: EventFileStarted, File: name, Done: int(done.Load()), Total: total})
			doc, err := s.summarizeFile(workCtx, folder, name, sum, opts)
			n := int(done.Add(1))
			if err != nil {
				reason := domain.ReasonOf(err)
				report.skip(reason, name)
				slog.Warn("file skipped", "file", name, "reason", reason, "error", err)
				emit(Event{Kind: EventFileSkipped, File: name, Reason: reason, Done: n, Total: total})
				return nil
			}
			results[i] = &doc
			emit(Event{Kind: EventFileDone, File: name, Done: n, Total: total})
			return nil
		})
	}
	_ = g.Wait()

	docs := make([]domain.Document, 0, len(batch))
	for _, d := range results {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	return docs
}

func (s *Service) summarizeFile(ctx context.Context, folder, name string, sum domain.Summarizer, opts config.OrganizeConfig) (domain.Document, error) {
	path := filepath.Join(folder, name)
	blocks, err := s.parsers.Parse(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedType) {
			return domain.Document{}, domain.Skip(domain.ReasonFileType, err)
		}
		return domain.Document{}, domain.Skip(domain.ReasonTextBlocks, err)
	}
	if len(blocks) == 0 {
		return domain.Document{}, domain.Skip(domain.ReasonTextBlocks, errors.New("no text blocks"))
	}

	k := opts.PDFTopBlocks
	if strings.EqualFold(filepath.Ext(name), ".pptx") {
		k = opts.PPTTopBlocks
	}
	top, err := summarizer.SelectTopBlocks(ctx, s.embedder, blocks, k)
	if err != nil {
		return domain.Document{}, err
	}

	out, err := sum.Summarize(ctx, name, top)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{
		FileName: name,
		FilePath: path,
		Keywords: out.Keywords,
		Summary:  out.Summary,
	}, nil
}

// serialize wraps fn so concurrent workers never call it at the same time.
func serialize(fn func(Event)) func(Event) {
	if fn == nil {
		return func(Event) {}
	}
	var mu sync.Mutex
	return func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		fn(e)
	}
}

func split(files []string, size int) [][]string {
	if size <= 0 {
		size = len(files)
	}
	var out [][]string
	for start := 0; start < len(files); start += size {
		out = append(out, files[start:min(start+size, len(files))])
	}
	return out
}
