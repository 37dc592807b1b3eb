package web

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mnemo/internal/domain"
	"mnemo/internal/service"
)

const (
	minSliderK  = 5
	maxSliderK  = 30
	defaultK    = 10
	showStep    = 5
	displayName = 70
)

type page struct {
	Title   string
	Refresh bool
	Active  string
	Status  *service.Status
	Info    string
	Notice  string
	Error   string
}

type searchPage struct {
	page
	Query     string
	K         int
	Results   []domain.SearchResult
	Found     int
	More      bool
	NextShown int
	Width     int
	Self      string
}

type organizePage struct {
	page
	Folder  string
	PPT     bool
	PDF     bool
	Tier    string
	Running *JobView
	Jobs    []JobView
}

type jobPage struct {
	page
	Job JobView
}

type initPage struct {
	page
	Folder string
}

func (s *Server) registerPages(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/search", http.StatusFound)
	})
	r.Get("/search", s.searchPage)
	r.Post("/open", s.openFile)
	r.Get("/organize", s.organizePage)
	r.Post("/organize", s.startOrganize)
	r.Get("/organize/{id}", s.jobPage)
	r.Post("/organize/{id}/stop", s.stopJobPage)
	r.Get("/initialize", s.initializePage)
	r.Post("/initialize", s.initialize)
}

func (s *Server) basePage(r *http.Request, title, active string) page {
	p := page{Title: title, Active: active}
	st, err := s.backend.Status(r.Context())
	if err != nil {
		slog.Warn("status failed", "error", err)
	}
	p.Status = st
	return p
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("render page", "page", name, "error", err)
	}
}

func intParam(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func (s *Server) searchPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := searchPage{
		page:  s.basePage(r, "Search", "search"),
		Query: q.Get("q"),
		K:     min(max(intParam(q.Get("k"), defaultK), minSliderK), maxSliderK),
		Width: displayName,
	}
	if strings.TrimSpace(data.Query) == "" {
		data.Info = "Waiting for input ..."
		s.render(w, "search.html", data)
		return
	}

	results, err := s.backend.Search(r.Context(), data.Query, data.K)
	switch {
	case errors.Is(err, domain.ErrNotInitialized):
		data.Error = "Please initialize the database folder first."
	case errors.Is(err, domain.ErrNoDatabase):
		data.Error = "No database found. Organize some files first."
	case err != nil:
		data.Error = err.Error()
	case len(results) == 0:
		data.Info = "No matching files."
	default:
		shown := max(intParam(q.Get("shown"), showStep), showStep)
		data.Found = len(results)
		data.Notice = "Found following files:"
		data.Results = results[:min(shown, len(results))]
		data.More = shown < len(results)
		data.NextShown = shown + showStep
		data.Self = "/search?" + url.Values{
			"q":     {data.Query},
			"k":     {strconv.Itoa(data.K)},
			"shown": {strconv.Itoa(shown)},
		}.Encode()
	}
	s.render(w, "search.html", data)
}

func (s *Server) openFile(w http.ResponseWriter, r *http.Request) {
	back := localPath(r.FormValue("return"), "/search")
	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid document id", http.StatusBadRequest)
		return
	}
	doc, err := s.backend.Document(id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if err := s.opener.OpenFile(doc.FilePath); err != nil {
		slog.Warn("open file failed", "path", doc.FilePath, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (s *Server) organizeForm(r *http.Request) organizePage {
	data := organizePage{page: s.basePage(r, "Organize", "organize"), PPT: true, PDF: true, Tier: "quality", Jobs: s.jobs.List()}
	if job := s.jobs.Running(); job != nil {
		v := job.View()
		data.Running = &v
	}
	return data
}

func (s *Server) organizePage(w http.ResponseWriter, r *http.Request) {
	data := s.organizeForm(r)
	data.Info = "Program will try to organize all files in the folder except for the ones already in the database."
	s.render(w, "organize.html", data)
}

func (s *Server) startOrganize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data := s.organizeForm(r)
	data.Folder = strings.TrimSpace(r.PostForm.Get("folder"))
	data.PPT = r.PostForm.Get("ppt") != ""
	data.PDF = r.PostForm.Get("pdf") != ""
	if tier := r.PostForm.Get("tier"); tier == "speed" {
		data.Tier = tier
	}

	var types []string
	if data.PPT {
		types = append(types, "ppt")
	}
	if data.PDF {
		types = append(types, "pdf")
	}
	switch {
	case data.Folder == "":
		data.Error = "Please enter the file folder path."
	case !isDir(data.Folder):
		data.Error = "The specified folder does not exist or is not a directory."
	case len(types) == 0:
		data.Error = "Please select at least one file type."
	case data.Status == nil || !data.Status.Initialized:
		data.Error = "Please initialize the database folder first."
	}
	if data.Error != "" {
		w.WriteHeader(http.StatusBadRequest)
		s.render(w, "organize.html", data)
		return
	}

	job, err := s.jobs.Start(service.Request{Folder: data.Folder, Types: types, Tier: data.Tier})
	if err != nil {
		data.Error = err.Error()
		w.WriteHeader(statusFor(err))
		s.render(w, "organize.html", data)
		return
	}
	http.Redirect(w, r, "/organize/"+url.PathEscape(job.ID), http.StatusSeeOther)
}

func (s *Server) jobPage(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	data := jobPage{page: s.basePage(r, "Organize", "organize"), Job: job.View()}
	data.Refresh = data.Job.Running()
	s.render(w, "job.html", data)
}

func (s *Server) stopJobPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobs.Stop(id); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	http.Redirect(w, r, "/organize/"+url.PathEscape(id), http.StatusSeeOther)
}

func (s *Server) initializePage(w http.ResponseWriter, r *http.Request) {
	data := initPage{page: s.basePage(r, "Initialize", "initialize")}
	data.Info = "Database files will be saved in this folder. If the folder does not exist, it will be created automatically."
	if data.Status != nil {
		data.Folder = data.Status.DatabaseFolder
	}
	s.render(w, "initialize.html", data)
}

func (s *Server) initialize(w http.ResponseWriter, r *http.Request) {
	folder := strings.TrimSpace(r.FormValue("folder"))
	if folder == "" {
		data := initPage{page: s.basePage(r, "Initialize", "initialize")}
		data.Error = "Please enter the database folder path."
		w.WriteHeader(http.StatusBadRequest)
		s.render(w, "initialize.html", data)
		return
	}
	err := s.backend.Initialize(folder)
	data := initPage{page: s.basePage(r, "Initialize", "initialize"), Folder: folder}
	if err != nil {
		data.Error = err.Error()
		w.WriteHeader(statusFor(err))
	} else {
		data.Notice = "The database has been initialized successfully!"
	}
	s.render(w, "initialize.html", data)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
