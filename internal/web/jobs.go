package web

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mnemo/internal/domain"
	"mnemo/internal/service"
)

// JobState is the lifecycle of an organize job.
type JobState string

const (
	JobRunning  JobState = "running"
	JobStopping JobState = "stopping"
	JobDone     JobState = "done"
	JobFailed   JobState = "failed"
)

// OrganizeFunc runs one organize pass.
type OrganizeFunc func(ctx context.Context, req service.Request, progress func(service.Event)) (*service.Report, error)

// Job is a background organize run.
type Job struct {
	ID        string
	Request   service.Request
	StartedAt time.Time

	mu       sync.Mutex
	state    JobState
	current  string
	done     int
	total    int
	phase    string
	report   *service.Report
	err      error
	finished time.Time

	cancel context.CancelFunc
	doneCh chan struct{}
}

// JobView is a point-in-time copy of a job, shaped for JSON and templates.
type JobView struct {
	ID       string             `json:"id"`
	State    JobState           `json:"state"`
	Folder   string             `json:"folder"`
	Tier     string             `json:"tier"`
	Types    []string           `json:"types"`
	Current  string             `json:"current,omitempty"`
	Phase    string             `json:"phase,omitempty"`
	Done     int                `json:"done"`
	Total    int                `json:"total"`
	Percent  int                `json:"percent"`
	Report   *service.Report    `json:"report,omitempty"`
	Error    string             `json:"error,omitempty"`
	Messages []string           `json:"messages,omitempty"`
	Started  time.Time          `json:"started_at"`
	Finished *time.Time         `json:"finished_at,omitempty"`
	Skipped  []SkippedGroupView `json:"-"`
	Warn     bool               `json:"-"`
}

// SkippedGroupView lists the files skipped for one reason.
type SkippedGroupView struct {
	Reason domain.SkipReason
	Files  []string
}

// Running reports whether the job has not finished yet.
func (v JobView) Running() bool {
	return v.State == JobRunning || v.State == JobStopping
}

func (j *Job) onEvent(e service.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.total = e.Total
	j.done = e.Done
	switch e.Kind {
	case service.EventFileStarted:
		j.current = e.File
		j.phase = "summarizing"
	case service.EventEmbedding:
		j.current = ""
		j.phase = "embedding"
	case service.EventFinished:
		j.current = ""
		j.phase = ""
	}
}

// View snapshots the job.
func (j *Job) View() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	v := JobView{
		ID:      j.ID,
		State:   j.state,
		Folder:  j.Request.Folder,
		Tier:    j.Request.Tier,
		Types:   j.Request.Types,
		Current: j.current,
		Phase:   j.phase,
		Done:    j.done,
		Total:   j.total,
		Report:  j.report,
		Started: j.StartedAt,
	}
	if j.total > 0 {
		v.Percent = j.done * 100 / j.total
	}
	if j.err != nil {
		v.Error = j.err.Error()
	}
	if !j.finished.IsZero() {
		f := j.finished
		v.Finished = &f
	}
	if j.report != nil {
		for _, reason := range j.report.Reasons() {
			v.Skipped = append(v.Skipped, SkippedGroupView{Reason: reason, Files: j.report.Skipped[reason]})
		}
	}
	v.Messages = messages(j.state, j.report, j.err)
	v.Warn = j.state == JobFailed || (j.report != nil && (j.report.AllSkipped() || j.report.Stopped))
	return v
}

// Done is closed when the job finishes.
func (j *Job) Done() <-chan struct{} { return j.doneCh }

// messages renders the outcome lines shown once a job has finished.
func messages(state JobState, report *service.Report, err error) []string {
	if state == JobRunning || state == JobStopping {
		return nil
	}
	return service.Outcome(report, err)
}

// JobManager runs at most one organize job at a time and remembers finished ones.
type JobManager struct {
	organize OrganizeFunc
	keep     int

	mu      sync.Mutex
	jobs    map[string]*Job
	order   []string
	running *Job
}

func NewJobManager(organize OrganizeFunc) *JobManager {
	return &JobManager{organize: organize, keep: 20, jobs: make(map[string]*Job)}
}

// Start launches a job. It fails with domain.ErrOrganizeRunning while another job runs.
func (m *JobManager) Start(req service.Request) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running != nil {
		return nil, domain.ErrOrganizeRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.NewString(),
		Request:   req,
		StartedAt: time.Now(),
		state:     JobRunning,
		cancel:    cancel,
		doneCh:    make(chan struct{}),
	}
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.running = job
	m.evict()

	go m.run(ctx, job)
	return job, nil
}

func (m *JobManager) run(ctx context.Context, job *Job) {
	defer job.cancel()
	slog.Info("organize job started", "job", job.ID, "folder", job.Request.Folder)
	report, err := m.organize(ctx, job.Request, job.onEvent)

	job.mu.Lock()
	job.report = report
	job.err = err
	job.finished = time.Now()
	if err != nil {
		job.state = JobFailed
	} else {
		job.state = JobDone
	}
	job.mu.Unlock()

	m.mu.Lock()
	if m.running == job {
		m.running = nil
	}
	m.mu.Unlock()
	close(job.doneCh)
	slog.Info("organize job finished", "job", job.ID, "error", err)
}

// evict drops the oldest finished jobs beyond keep. Requires m.mu.
func (m *JobManager) evict() {
	for len(m.order) > m.keep {
		id := m.order[0]
		if j := m.jobs[id]; j == m.running {
			return
		}
		delete(m.jobs, id)
		m.order = m.order[1:]
	}
}

// Get returns a job by id.
func (m *JobManager) Get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}

// Running returns the running job, if any.
func (m *JobManager) Running() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// List returns all remembered jobs, newest first.
func (m *JobManager) List() []JobView {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	views := make([]JobView, len(jobs))
	for i, j := range jobs {
		views[i] = j.View()
	}
	sort.Slice(views, func(i, k int) bool { return views[i].Started.After(views[k].Started) })
	return views
}

// Stop asks a running job to stop after its current files.
func (m *JobManager) Stop(id string) error {
	job, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	if job.state == JobRunning {
		job.state = JobStopping
		job.cancel()
	}
	return nil
}

// Shutdown stops the running job and waits for it, bounded by ctx.
func (m *JobManager) Shutdown(ctx context.Context) error {
	job := m.Running()
	if job == nil {
		return nil
	}
	_ = m.Stop(job.ID)
	select {
	case <-job.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
