package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mnemo/internal/domain"
	"mnemo/internal/service"
)

func (s *Server) registerAPI(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.apiSearch)
		r.Get("/status", s.apiStatus)
		r.Get("/documents/{id}", s.apiDocument)
		r.Get("/organize", s.apiListJobs)
		r.Get("/organize/{id}", s.apiJob)

		r.Group(func(r chi.Router) {
			r.Use(requireJSON)
			r.Post("/initialize", s.apiInitialize)
			r.Post("/documents/{id}/open", s.apiOpen)
			r.Post("/organize", s.apiOrganize)
			r.Post("/organize/{id}/stop", s.apiStopJob)
		})
	})
}

func (s *Server) apiSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := s.backend.Search(r.Context(), q.Get("q"), intParam(q.Get("k"), service.DefaultTopK))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) apiStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.Status(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type initializeRequest struct {
	Folder string `json:"folder"`
}

func (s *Server) apiInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Folder) == "" {
		writeError(w, http.StatusBadRequest, "folder is required")
		return
	}
	if err := s.backend.Initialize(req.Folder); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.apiStatus(w, r)
}

func documentID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func (s *Server) apiDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	doc, err := s.backend.Document(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, domain.SearchResult{ID: id, Document: doc})
}

func (s *Server) apiOpen(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	doc, err := s.backend.Document(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err := s.opener.OpenFile(doc.FilePath); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"opened": doc.FilePath})
}

func (s *Server) apiListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.List())
}

func (s *Server) apiOrganize(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	req.Folder = strings.TrimSpace(req.Folder)
	if !isDir(req.Folder) {
		writeError(w, http.StatusBadRequest, "folder does not exist or is not a directory")
		return
	}
	if _, err := service.Extensions(req.Types); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.jobs.Start(req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job.View())
}

func (s *Server) apiJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.View())
}

func (s *Server) apiStopJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobs.Stop(id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	job, _ := s.jobs.Get(id)
	writeJSON(w, http.StatusOK, job.View())
}
