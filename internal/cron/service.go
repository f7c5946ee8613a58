// Package cron runs scheduled maintenance jobs for the bridge, such as
// pruning idle conversation mappings.
//
// Run state is persisted to jobs.json:
//
//	{ "version": 1, "jobs": [ { "name":"prune-sessions", "schedule":"0 0 4 * * *",
//	    "state":{"nextRunAtMs":…,"lastRunAtMs":…,"lastStatus":"ok"} } ] }
package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

var (
	ErrJobNotFound    = errors.New("cron: job not found")
	ErrAlreadyStarted = errors.New("cron: service already started")
)

// parser accepts standard five-field expressions, an optional leading
// seconds field, and descriptors such as "@daily" or "@every 6h".
var parser = robfigcron.NewParser(
	robfigcron.SecondOptional | robfigcron.Minute | robfigcron.Hour |
		robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

// JobFunc is the work a job performs when it fires.
type JobFunc func(ctx context.Context) error

type JobState struct {
	NextRunAtMs *int64  `json:"nextRunAtMs,omitempty"`
	LastRunAtMs *int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  *string `json:"lastStatus,omitempty"` // "ok" | "error"
	LastError   *string `json:"lastError,omitempty"`
}

type Job struct {
	Name     string   `json:"name"`
	Schedule string   `json:"schedule"`
	State    JobState `json:"state"`
}

type jobStore struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// Service schedules named jobs on robfig/cron and records their outcomes.
type Service struct {
	storePath string
	now       func() time.Time

	mu      sync.Mutex
	store   jobStore
	loaded  bool
	started bool
	funcs   map[string]JobFunc
	scheds  map[string]robfigcron.Schedule
	robfig  *robfigcron.Cron
}

// NewService creates a Service persisting run state at storePath
// (e.g. ~/.openresearch/bridge/cron/jobs.json).
func NewService(storePath string) *Service {
	return &Service{
		storePath: storePath,
		now:       time.Now,
		funcs:     make(map[string]JobFunc),
		scheds:    make(map[string]robfigcron.Schedule),
		robfig:    robfigcron.New(robfigcron.WithParser(parser)),
	}
}

// AddJob registers fn under name. Jobs must be added before Start; adding
// a name twice replaces the earlier registration.
func (s *Service) AddJob(name, schedule string, fn JobFunc) error {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("cron: invalid schedule %q for %s: %w", schedule, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	if err := s.loadLocked(); err != nil {
		slog.Warn("cron: load failed, starting empty", "err", err)
	}

	s.funcs[name] = fn
	s.scheds[name] = sched
	next := sched.Next(s.now()).UnixMilli()

	for i := range s.store.Jobs {
		if s.store.Jobs[i].Name == name {
			s.store.Jobs[i].Schedule = schedule
			s.store.Jobs[i].State.NextRunAtMs = &next
			return nil
		}
	}
	s.store.Jobs = append(s.store.Jobs, Job{
		Name:     name,
		Schedule: schedule,
		State:    JobState{NextRunAtMs: &next},
	})
	slog.Info("cron: added job", "name", name, "schedule", schedule)
	return nil
}

// Start arms every registered job and blocks until ctx is cancelled.
// Persisted state for jobs that are no longer registered is dropped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		slog.Warn("cron: load failed, starting empty", "err", err)
	}
	kept := s.store.Jobs[:0]
	for _, j := range s.store.Jobs {
		if _, ok := s.funcs[j.Name]; ok {
			kept = append(kept, j)
		}
	}
	s.store.Jobs = kept
	s.saveLocked()

	for name, sched := range s.scheds {
		s.robfig.Schedule(sched, robfigcron.FuncJob(func() {
			_ = s.execute(ctx, name)
		}))
	}
	s.started = true
	count := len(s.funcs)
	s.mu.Unlock()

	s.robfig.Start()
	slog.Info("cron: started", "jobs", count)

	<-ctx.Done()

	<-s.robfig.Stop().Done()
	slog.Info("cron: stopped")
	return ctx.Err()
}

// RunJob executes the named job immediately and returns its error.
func (s *Service) RunJob(ctx context.Context, name string) error {
	s.mu.Lock()
	_, ok := s.funcs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.execute(ctx, name)
}

// ListJobs returns all registered jobs sorted by name.
func (s *Service) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.store.Jobs))
	for _, j := range s.store.Jobs {
		if _, ok := s.funcs[j.Name]; ok {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) execute(ctx context.Context, name string) error {
	s.mu.Lock()
	fn := s.funcs[name]
	sched := s.scheds[name]
	s.mu.Unlock()

	startMs := s.now().UnixMilli()
	slog.Info("cron: executing job", "name", name)

	status := "ok"
	var lastErr *string
	err := fn(ctx)
	if err != nil {
		status = "error"
		e := err.Error()
		lastErr = &e
		slog.Error("cron: job failed", "name", name, "err", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].Name != name {
			continue
		}
		next := sched.Next(s.now()).UnixMilli()
		s.store.Jobs[i].State = JobState{
			NextRunAtMs: &next,
			LastRunAtMs: &startMs,
			LastStatus:  &status,
			LastError:   lastErr,
		}
		break
	}
	s.saveLocked()
	return err
}

func (s *Service) loadLocked() error {
	if s.loaded {
		return nil
	}
	s.loaded = true
	s.store = jobStore{Version: 1}

	data, err := os.ReadFile(s.storePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var st jobStore
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	s.store = st
	return nil
}

func (s *Service) saveLocked() {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		slog.Warn("cron: mkdir failed", "err", err)
		return
	}
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		slog.Warn("cron: marshal failed", "err", err)
		return
	}
	if err := os.WriteFile(s.storePath, data, 0o644); err != nil {
		slog.Warn("cron: write failed", "err", err)
	}
}
