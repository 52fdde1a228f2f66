package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/common"
	"github.com/ternarybob/bloom/internal/interfaces"
)

var _ interfaces.SchedulerService = (*Service)(nil)

// settingsKeyPrefix namespaces persisted job settings in the KV store
const settingsKeyPrefix = "scheduler-job-"

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     func() error
	enabled     bool
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
}

// jobSettings is the persisted part of a job, restored on registration
type jobSettings struct {
	Enabled bool       `json:"enabled"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

// Service implements SchedulerService on robfig/cron
type Service struct {
	kvStorage interfaces.KeyValueStorage // optional, persists enabled/last-run
	cron      *cron.Cron
	logger    arbor.ILogger
	jobMu     sync.Mutex // protects jobs and running
	globalMu  sync.Mutex // prevents concurrent job execution
	jobs      map[string]*jobEntry
	running   bool
}

// NewService creates a new scheduler service. kvStorage may be nil.
func NewService(kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		kvStorage: kvStorage,
		cron:      cron.New(),
		logger:    logger,
		jobs:      make(map[string]*jobEntry),
	}
}

// Start begins dispatching registered jobs
func (s *Service) Start() error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish
func (s *Service) Stop() error {
	s.jobMu.Lock()
	if !s.running {
		s.jobMu.Unlock()
		return nil
	}
	s.running = false
	s.jobMu.Unlock()

	<-s.cron.Stop().Done()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if scheduler is active
func (s *Service) IsRunning() bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.running
}

// RegisterJob registers a new job. Persisted enabled/last-run settings are restored.
func (s *Service) RegisterJob(name string, schedule string, description string, handler func() error) error {
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
		enabled:     true,
	}

	if settings, ok := s.loadSettings(name); ok {
		entry.enabled = settings.Enabled
		entry.lastRun = settings.LastRun
	}

	if entry.enabled {
		cronID, err := s.cron.AddFunc(schedule, func() { s.executeJob(name) })
		if err != nil {
			return fmt.Errorf("failed to add job to cron: %w", err)
		}
		entry.cronID = cronID
	}

	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Bool("enabled", entry.enabled).
		Msg("Job registered")

	return nil
}

// EnableJob enables a disabled job
func (s *Service) EnableJob(name string) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	if entry.enabled {
		return nil
	}

	cronID, err := s.cron.AddFunc(entry.schedule, func() { s.executeJob(name) })
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	entry.enabled = true
	s.saveSettings(entry)

	s.logger.Info().Str("job_name", name).Msg("Job enabled")
	return nil
}

// DisableJob disables an enabled job
func (s *Service) DisableJob(name string) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	if !entry.enabled {
		return nil
	}

	s.cron.Remove(entry.cronID)
	entry.enabled = false
	s.saveSettings(entry)

	s.logger.Info().Str("job_name", name).Msg("Job disabled")
	return nil
}

// GetJobStatus returns the status of a specific job
func (s *Service) GetJobStatus(name string) (*interfaces.JobStatus, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}

	var nextRun *time.Time
	if entry.enabled && s.running {
		next := s.cron.Entry(entry.cronID).Next
		if !next.IsZero() {
			nextRun = &next
		}
	}

	return &interfaces.JobStatus{
		Name:        entry.name,
		Enabled:     entry.enabled,
		Schedule:    entry.schedule,
		Description: entry.description,
		LastRun:     entry.lastRun,
		NextRun:     nextRun,
		IsRunning:   entry.isRunning,
		LastError:   entry.lastError,
	}, nil
}

// GetAllJobStatuses returns all job statuses
func (s *Service) GetAllJobStatuses() map[string]*interfaces.JobStatus {
	s.jobMu.Lock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.jobMu.Unlock()

	statuses := make(map[string]*interfaces.JobStatus, len(names))
	for _, name := range names {
		if status, err := s.GetJobStatus(name); err == nil {
			statuses[name] = status
		}
	}
	return statuses
}

// TriggerJob manually triggers a specific job to run immediately
func (s *Service) TriggerJob(name string) error {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}
	if entry.isRunning {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	s.jobMu.Unlock()

	s.logger.Info().Str("job_name", name).Msg("Manually triggering job execution")

	common.SafeGo(s.logger, "scheduler-trigger-"+name, func() { s.executeJob(name) })
	return nil
}

// executeJob wraps job execution with mutex, panic recovery, and status tracking
func (s *Service) executeJob(name string) {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job not found")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.jobMu.Unlock()

	started := time.Now()
	s.logger.Info().Str("job_name", name).Msg("Job execution started")

	err := runHandler(handler)

	finished := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &finished
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.saveSettings(entry)
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().Str("job_name", name).Err(err).Dur("duration", finished.Sub(started)).Msg("Job execution failed")
		return
	}
	s.logger.Info().Str("job_name", name).Dur("duration", finished.Sub(started)).Msg("Job execution completed")
}

func runHandler(handler func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler()
}

// saveSettings persists enabled/last-run. Caller holds jobMu.
func (s *Service) saveSettings(entry *jobEntry) {
	if s.kvStorage == nil {
		return
	}

	data, err := json.Marshal(jobSettings{Enabled: entry.enabled, LastRun: entry.lastRun})
	if err != nil {
		s.logger.Warn().Err(err).Str("job_name", entry.name).Msg("Failed to encode job settings")
		return
	}

	if err := s.kvStorage.Set(context.Background(), settingsKeyPrefix+entry.name, string(data), "Scheduler job settings"); err != nil {
		s.logger.Warn().Err(err).Str("job_name", entry.name).Msg("Failed to persist job settings")
	}
}

func (s *Service) loadSettings(name string) (jobSettings, bool) {
	if s.kvStorage == nil {
		return jobSettings{}, false
	}

	value, err := s.kvStorage.Get(context.Background(), settingsKeyPrefix+name)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			s.logger.Warn().Err(err).Str("job_name", name).Msg("Failed to load job settings")
		}
		return jobSettings{}, false
	}

	var settings jobSettings
	if err := json.Unmarshal([]byte(value), &settings); err != nil {
		s.logger.Warn().Err(err).Str("job_name", name).Msg("Ignoring malformed job settings")
		return jobSettings{}, false
	}
	return settings, true
}
