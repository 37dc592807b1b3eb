package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/internal/domain"
	"mnemo/internal/service"
)

type fakeBackend struct {
	mu          sync.Mutex
	results     []domain.SearchResult
	searchErr   error
	query       string
	topK        int
	initialized string
	docs        map[int64]domain.Document

	release  chan struct{}
	organize func(ctx context.Context, req service.Request, progress func(service.Event)) (*service.Report, error)
}

func (f *fakeBackend) Search(_ context.Context, query string, topK int) ([]domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query, f.topK = query, topK
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	return f.results, f.searchErr
}

func (f *fakeBackend) Organize(ctx context.Context, req service.Request, progress func(service.Event)) (*service.Report, error) {
	return f.organize(ctx, req, progress)
}

func (f *fakeBackend) Initialize(folder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized = folder
	return nil
}

func (f *fakeBackend) Status(context.Context) (*service.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &service.Status{Initialized: true, DatabaseFolder: "/db", HasDatabase: true, Documents: len(f.docs), ModelConsistent: true}, nil
}

func (f *fakeBackend) Document(id int64) (domain.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	return d, nil
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
}

func (o *fakeOpener) OpenFile(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, path)
	return nil
}

func results(n int) []domain.SearchResult {
	out := make([]domain.SearchResult, n)
	for i := range out {
		name := string(rune('a'+i)) + ".pdf"
		out[i] = domain.SearchResult{ID: int64(i + 1), Score: 1 - float64(i)/100, Document: domain.Document{
			FileName: name, FilePath: "/docs/" + name, Keywords: []string{"k"}, Summary: "summary of " + name,
		}}
	}
	return out
}

// blockingOrganize reports one file and waits for cancellation or release.
func blockingOrganize(release chan struct{}) func(ctx context.Context, req service.Request, progress func(service.Event)) (*service.Report, error) {
	return func(ctx context.Context, req service.Request, progress func(service.Event)) (*service.Report, error) {
		progress(service.Event{Kind: service.EventStarted, Total: 2})
		progress(service.Event{Kind: service.EventFileStarted, File: "a.pdf", Total: 2})
		report := &service.Report{Total: 2, Skipped: map[domain.SkipReason][]string{}}
		select {
		case <-ctx.Done():
			report.Stopped = true
		case <-release:
			report.Processed = 1
			report.Skipped[domain.ReasonJSONParse] = []string{"b.pdf"}
		}
		progress(service.Event{Kind: service.EventFinished, Done: 2, Total: 2})
		return report, nil
	}
}

func newTestServer(t *testing.T) (*Server, *fakeBackend, *fakeOpener) {
	t.Helper()
	fb := &fakeBackend{
		results: results(12),
		docs:    map[int64]domain.Document{7: {FileName: "seven.pdf", FilePath: "/docs/seven.pdf"}},
		release: make(chan struct{}),
	}
	fb.organize = blockingOrganize(fb.release)
	op := &fakeOpener{}
	srv, err := NewServer(nil, fb, op)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv, fb, op
}

func do(t *testing.T, h http.Handler, method, target string, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) APIResponse {
	t.Helper()
	var resp APIResponse
	if data != nil {
		resp.Data = data
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":200,"message":"ok","data":{"status":"ok"}}`, rec.Body.String())
}

func TestRootRedirects(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/search", rec.Header().Get("Location"))
}

func TestSearchPageShowsFirstFiveAndMore(t *testing.T) {
	srv, fb, _ := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/search", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Waiting for input")

	rec = do(t, h, http.MethodGet, "/search?q=rivers&k=50", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, fb.topK)
	body := rec.Body.String()
	assert.Contains(t, body, "Found following files:")
	assert.Contains(t, body, "e.pdf")
	assert.NotContains(t, body, "f.pdf")
	assert.Contains(t, body, "shown=10")

	rec = do(t, h, http.MethodGet, "/search?q=rivers&k=10&shown=10", "", "")
	body = rec.Body.String()
	assert.Contains(t, body, "j.pdf")
	assert.Equal(t, 10, fb.topK)
}

func TestSearchPageErrors(t *testing.T) {
	srv, fb, _ := newTestServer(t)
	fb.searchErr = domain.ErrNoDatabase
	rec := do(t, srv.Handler(), http.MethodGet, "/search?q=rivers", "", "")
	assert.Contains(t, rec.Body.String(), "No database found")
}

func TestOpenFile(t *testing.T) {
	srv, _, op := newTestServer(t)
	form := url.Values{"id": {"7"}, "return": {"/search?q=x"}}.Encode()
	rec := do(t, srv.Handler(), http.MethodPost, "/open", form, "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/search?q=x", rec.Header().Get("Location"))
	assert.Equal(t, []string{"/docs/seven.pdf"}, op.opened)

	form = url.Values{"id": {"8"}, "return": {"//evil.example"}}.Encode()
	rec = do(t, srv.Handler(), http.MethodPost, "/open", form, "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPISearch(t *testing.T) {
	srv, fb, _ := newTestServer(t)
	fb.results = results(2)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/search?q=rivers&k=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []domain.SearchResult
	resp := decode(t, rec, &got)
	assert.Equal(t, 200, resp.Code)
	require.Len(t, got, 2)
	assert.Equal(t, "a.pdf", got[0].FileName)
	assert.Contains(t, rec.Body.String(), `"search_score"`)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/search?q=", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp = decode(t, rec, nil)
	assert.Equal(t, domain.ErrEmptyQuery.Error(), resp.Message)
}

func TestAPIInitializeAndStatus(t *testing.T) {
	srv, fb, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodPost, "/api/initialize", `{"folder":"/tmp/db"}`, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/tmp/db", fb.initialized)

	rec = do(t, srv.Handler(), http.MethodPost, "/api/initialize", `{"folder":" "}`, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/status", "", "")
	var st service.Status
	decode(t, rec, &st)
	assert.True(t, st.Initialized)
	assert.Equal(t, "/db", st.DatabaseFolder)
}

func TestInitializePage(t *testing.T) {
	srv, fb, _ := newTestServer(t)
	form := url.Values{"folder": {"/tmp/newdb"}}.Encode()
	rec := do(t, srv.Handler(), http.MethodPost, "/initialize", form, "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "initialized successfully")
	assert.Equal(t, "/tmp/newdb", fb.initialized)
}

func TestOrganizeJobLifecycle(t *testing.T) {
	srv, fb, _ := newTestServer(t)
	h := srv.Handler()
	folder := t.TempDir()

	rec := do(t, h, http.MethodPost, "/api/organize", `{"folder":"`+folder+`","types":["pdf"],"tier":"speed"}`, "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job JobView
	decode(t, rec, &job)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, JobRunning, job.State)

	rec = do(t, h, http.MethodPost, "/api/organize", `{"folder":"`+folder+`"}`, "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Eventually(t, func() bool {
		v, _ := srv.Jobs().Get(job.ID)
		return v.View().Current == "a.pdf"
	}, time.Second, 10*time.Millisecond)

	rec = do(t, h, http.MethodGet, "/organize/"+job.ID, "", "")
	assert.Contains(t, rec.Body.String(), `http-equiv="refresh"`)
	assert.Contains(t, rec.Body.String(), "a.pdf")

	close(fb.release)
	j, ok := srv.Jobs().Get(job.ID)
	require.True(t, ok)
	<-j.Done()

	rec = do(t, h, http.MethodGet, "/api/organize/"+job.ID, "", "")
	decode(t, rec, &job)
	assert.Equal(t, JobDone, job.State)
	require.NotNil(t, job.Report)
	assert.Equal(t, 1, job.Report.Processed)
	require.Len(t, job.Messages, 2)
	assert.Contains(t, job.Messages[0], "Processed 1 files successfully")
	assert.Contains(t, job.Messages[1], "Skipped 1 files due to errors json_parse_error: b.pdf")

	rec = do(t, h, http.MethodGet, "/organize/"+job.ID, "", "")
	assert.NotContains(t, rec.Body.String(), `http-equiv="refresh"`)
	assert.Nil(t, srv.Jobs().Running())
}

func TestOrganizeStopFromPage(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()
	folder := t.TempDir()

	form := url.Values{"folder": {folder}, "pdf": {"1"}, "tier": {"quality"}}.Encode()
	rec := do(t, h, http.MethodPost, "/organize", form, "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/organize/"))
	id := strings.TrimPrefix(loc, "/organize/")

	rec = do(t, h, http.MethodPost, loc+"/stop", "", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	j, ok := srv.Jobs().Get(id)
	require.True(t, ok)
	select {
	case <-j.Done():
	case <-time.After(time.Second):
		t.Fatal("job did not stop")
	}
	v := j.View()
	assert.Equal(t, JobDone, v.State)
	assert.True(t, v.Report.Stopped)
	assert.True(t, v.Warn)
}

func TestOrganizeFormValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	form := url.Values{"folder": {"/definitely/missing"}, "pdf": {"1"}}.Encode()
	rec := do(t, h, http.MethodPost, "/organize", form, "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not exist or is not a directory")

	form = url.Values{"folder": {t.TempDir()}}.Encode()
	rec = do(t, h, http.MethodPost, "/organize", form, "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "select at least one file type")

	rec = do(t, h, http.MethodPost, "/api/organize", `{"folder":"`+t.TempDir()+`","types":["docx"]}`, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessages(t *testing.T) {
	assert.Equal(t,
		[]string{"No valid files found in this folder or all files have been indexed already."},
		messages(JobFailed, nil, domain.ErrNothingToOrganize))

	report := &service.Report{Skipped: map[domain.SkipReason][]string{
		domain.ReasonTextBlocks: {"a.pdf"},
		domain.ReasonFileType:   {"b.doc"},
	}}
	msgs := messages(JobDone, report, nil)
	require.Len(t, msgs, 1)
	assert.Equal(t, "All files in the folder are skipped due to errors file_type_error, text_blocks_error, please check the folder path and file types.", msgs[0])

	fatal := &service.Report{Processed: 3, Skipped: map[domain.SkipReason][]string{domain.ReasonModelChanged: {"c.pdf"}}}
	msgs = messages(JobFailed, fatal, errors.Join(errors.New("stored fingerprint differs"), domain.ErrModelChanged))
	require.NotEmpty(t, msgs)
	assert.Equal(t, "WARNING: A fatal model_changed_error has occurred!", msgs[0])
}

func TestCrossSitePostsAreRejected(t *testing.T) {
	srv, fb, op := newTestServer(t)
	h := srv.Handler()

	send := func(target, body, contentType string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	form := url.Values{"folder": {"/tmp/evil"}}.Encode()
	rec := send("/initialize", form, "application/x-www-form-urlencoded", map[string]string{"Sec-Fetch-Site": "cross-site"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = send("/open", url.Values{"id": {"7"}}.Encode(), "application/x-www-form-urlencoded", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = send("/api/initialize", `{"folder":"/tmp/evil"}`, "text/plain", nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	fb.mu.Lock()
	assert.Empty(t, fb.initialized)
	fb.mu.Unlock()
	assert.Empty(t, op.opened)

	// the UI's own forms carry a same-origin Origin header
	rec = send("/initialize", form, "application/x-www-form-urlencoded", map[string]string{
		"Origin": "http://example.com", "Sec-Fetch-Site": "same-origin",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/tmp/evil", fb.initialized)

	rec = send("/api/documents/7/open", "", "application/json; charset=utf-8", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOpenFileRejectsOffsiteReturn(t *testing.T) {
	srv, _, _ := newTestServer(t)
	for _, back := range []string{`/\evil.example`, "//evil.example", "https://evil.example/", "search"} {
		form := url.Values{"id": {"7"}, "return": {back}}.Encode()
		rec := do(t, srv.Handler(), http.MethodPost, "/open", form, "application/x-www-form-urlencoded")
		assert.Equal(t, http.StatusSeeOther, rec.Code, back)
		assert.Equal(t, "/search", rec.Header().Get("Location"), back)
	}
	assert.Equal(t, "/search?q=a%20b", localPath("/search?q=a%20b", "/"))
}
