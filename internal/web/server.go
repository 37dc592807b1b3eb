// Package web serves the browser UI and the JSON API.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mnemo/internal/domain"
	"mnemo/internal/service"
	"mnemo/internal/textclean"
)

//go:embed templates/*.html
var templateFS embed.FS

// Backend is the part of the service the web layer drives.
type Backend interface {
	Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
	Organize(ctx context.Context, req service.Request, progress func(service.Event)) (*service.Report, error)
	Initialize(folder string) error
	Status(ctx context.Context) (*service.Status, error)
	Document(id int64) (domain.Document, error)
}

// FileOpener opens a document with the desktop's default application.
type FileOpener interface {
	OpenFile(path string) error
}

// Config holds the HTTP server settings.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the local-only defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:         "127.0.0.1",
		Port:         8501,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
}

// Server is the HTTP front end.
type Server struct {
	config  *Config
	backend Backend
	opener  FileOpener
	jobs    *JobManager
	pages   *template.Template
	httpSrv *http.Server
}

func NewServer(config *Config, backend Backend, opener FileOpener) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	pages, err := template.New("pages").Funcs(template.FuncMap{
		"cut":  textclean.CutText,
		"join": strings.Join,
		"inc":  func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{
		config:  config,
		backend: backend,
		opener:  opener,
		jobs:    NewJobManager(backend.Organize),
		pages:   pages,
	}
	s.httpSrv = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.buildRouter(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s, nil
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// URL is the address a browser should open.
func (s *Server) URL() string {
	return "http://" + s.Addr() + "/"
}

// Jobs exposes the organize job manager.
func (s *Server) Jobs() *JobManager { return s.jobs }

// Start listens until Stop is called.
func (s *Server) Start() error {
	slog.Info("web server starting", "addr", s.Addr())
	return s.httpSrv.ListenAndServe()
}

// Stop stops the running organize job and shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.jobs.Shutdown(ctx); err != nil {
		slog.Warn("organize job did not stop in time", "error", err)
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(sameOrigin)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.registerPages(r)
	s.registerAPI(r)
	return r
}
