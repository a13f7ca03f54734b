package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"brigadas-analytics/internal/models"
	"brigadas-analytics/internal/services/hierarchy"
)

const defaultJobTimeout = 5 * time.Minute

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// HierarchyService is the part of the hierarchy service the scheduled jobs drive
type HierarchyService interface {
	Refresh(ctx context.Context, filter *hierarchy.Filter) error
	GetHierarchyStats(ctx context.Context, filter *hierarchy.Filter) (*hierarchy.HierarchyStats, error)
}

// SnapshotSaver persists the output of stats_snapshot runs
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, snap *models.StatsSnapshot) error
}

// Service handles scheduled job management and execution
type Service struct {
	db         *gorm.DB
	ctx        context.Context
	cron       *cron.Cron
	jobs       map[string]cron.EntryID // jobID -> cron entry ID
	jobsMu     sync.RWMutex
	hierarchy  HierarchyService
	snapshots  SnapshotSaver
	logger     *zap.Logger
	jobTimeout time.Duration
	now        func() time.Time
}

// NewService creates a new scheduler service
func NewService(ctx context.Context, db *gorm.DB, svc HierarchyService, snapshots SnapshotSaver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		db:         db,
		ctx:        ctx,
		cron:       cron.New(cron.WithSeconds()),
		jobs:       make(map[string]cron.EntryID),
		hierarchy:  svc,
		snapshots:  snapshots,
		logger:     logger.Named("scheduler"),
		jobTimeout: defaultJobTimeout,
		now:        time.Now,
	}
}

// Start loads enabled jobs from the database and starts the cron loop
func (s *Service) Start() error {
	s.cron.Start()

	var jobs []models.ScheduledJob
	if err := s.db.WithContext(s.ctx).Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return fmt.Errorf("failed to load scheduled jobs: %w", err)
	}

	for i := range jobs {
		job := &jobs[i]
		if err := s.scheduleJob(job); err != nil {
			s.logger.Warn("Failed to schedule job", zap.String("job", job.Name), zap.String("id", job.ID), zap.Error(err))
			continue
		}
		s.logger.Info("Scheduled job", zap.String("job", job.Name), zap.String("cron", job.Cron), zap.String("timezone", job.Timezone))
	}

	s.logger.Info("Scheduler started", zap.Int("enabled_jobs", len(jobs)))
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.logger.Info("Scheduler stopped")
	}
}

// ListJobs retrieves all scheduled jobs
func (s *Service) ListJobs() ([]JobListResponse, error) {
	var jobs []models.ScheduledJob
	if err := s.db.WithContext(s.ctx).Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	responses := make([]JobListResponse, len(jobs))
	for i := range jobs {
		responses[i] = toJobListResponse(&jobs[i])
	}
	return responses, nil
}

// UpsertJob creates or updates a scheduled job by name
func (s *Service) UpsertJob(req UpsertJobRequest) (string, error) {
	if req.Name == "" || req.JobType == "" || req.Cron == "" {
		return "", fmt.Errorf("name, job_type, and cron are required")
	}
	if req.JobType != models.JobTypeCacheWarmup && req.JobType != models.JobTypeStatsSnapshot {
		return "", fmt.Errorf("unsupported job type: %s", req.JobType)
	}

	normalizedCron, err := normalizeCron(req.Cron)
	if err != nil {
		return "", err
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return "", fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	payload, err := encodePayload(req.Payload)
	if err != nil {
		return "", err
	}

	var job models.ScheduledJob
	result := s.db.WithContext(s.ctx).Where("name = ?", req.Name).First(&job)
	isNew := errors.Is(result.Error, gorm.ErrRecordNotFound)
	if result.Error != nil && !isNew {
		return "", fmt.Errorf("failed to query job: %w", result.Error)
	}
	if isNew {
		job = models.ScheduledJob{ID: uuid.New().String(), Name: req.Name}
	}

	job.JobType = req.JobType
	job.Cron = normalizedCron
	job.Timezone = timezone
	job.Enabled = req.Enabled
	job.Payload = payload

	schedule, err := cronParser.Parse(job.Cron)
	if err != nil {
		return "", fmt.Errorf("failed to parse cron for next run: %w", err)
	}
	nextRun := schedule.Next(s.now().In(loc))
	job.NextRunAt = &nextRun

	if isNew {
		if err := s.db.WithContext(s.ctx).Create(&job).Error; err != nil {
			return "", fmt.Errorf("failed to create job: %w", err)
		}
	} else if err := s.db.WithContext(s.ctx).Save(&job).Error; err != nil {
		return "", fmt.Errorf("failed to update job: %w", err)
	}

	if err := s.rescheduleJob(job.ID); err != nil {
		return "", fmt.Errorf("failed to reschedule job: %w", err)
	}
	return job.ID, nil
}

// DeleteJob removes a scheduled job
func (s *Service) DeleteJob(jobID string) error {
	s.unschedule(jobID)

	if err := s.db.WithContext(s.ctx).Delete(&models.ScheduledJob{}, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// RunJob executes a job immediately, outside its schedule
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	var job models.ScheduledJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	return s.runJob(ctx, &job)
}

// scheduleJob adds a job to the cron scheduler
func (s *Service) scheduleJob(job *models.ScheduledJob) error {
	if !job.Enabled {
		s.unschedule(job.ID)
		return nil
	}

	spec := job.Cron
	if job.Timezone != "" && job.Timezone != "UTC" {
		spec = "CRON_TZ=" + job.Timezone + " " + spec
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if entryID, exists := s.jobs[job.ID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, job.ID)
	}

	jobID := job.ID
	entryID, err := s.cron.AddFunc(spec, func() {
		s.executeJob(jobID)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.jobs[job.ID] = entryID
	return nil
}

func (s *Service) unschedule(jobID string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if entryID, exists := s.jobs[jobID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, jobID)
	}
}

// rescheduleJob reloads a job from database and reschedules it
func (s *Service) rescheduleJob(jobID string) error {
	var job models.ScheduledJob
	if err := s.db.WithContext(s.ctx).First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.unschedule(jobID)
			return nil
		}
		return fmt.Errorf("failed to load job: %w", err)
	}
	return s.scheduleJob(&job)
}

// executeJob is the cron callback
func (s *Service) executeJob(jobID string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()

	if err := s.RunJob(ctx, jobID); err != nil {
		s.logger.Error("Scheduled job failed", zap.String("id", jobID), zap.Error(err))
	}
}

func (s *Service) runJob(ctx context.Context, job *models.ScheduledJob) error {
	log := s.logger.With(zap.String("job", job.Name), zap.String("type", job.JobType))
	started := s.now()
	log.Info("Executing scheduled job")

	s.recordRun(job, started)

	filter, err := decodeFilter(job.Payload)
	if err != nil {
		return err
	}

	switch job.JobType {
	case models.JobTypeCacheWarmup:
		err = s.hierarchy.Refresh(ctx, filter)
	case models.JobTypeStatsSnapshot:
		err = s.snapshotStats(ctx, job, filter)
	default:
		return fmt.Errorf("unknown job type: %s", job.JobType)
	}
	if err != nil {
		return err
	}

	log.Info("Completed scheduled job", zap.Duration("elapsed", s.now().Sub(started)))
	return nil
}

// snapshotStats refreshes the hierarchy and stores its statistics. A failed
// computation is still recorded, as an unavailable snapshot carrying the error.
func (s *Service) snapshotStats(ctx context.Context, job *models.ScheduledJob, filter *hierarchy.Filter) error {
	snap := &models.StatsSnapshot{
		JobID:     job.ID,
		FilterKey: hierarchy.FilterKey(filter),
		CreatedAt: s.now(),
	}

	stats, err := s.freshStats(ctx, filter)
	if err != nil {
		s.logger.Warn("Stats unavailable for snapshot", zap.String("job", job.Name), zap.Error(err))
		snap.Error = err.Error()
	} else {
		data, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("failed to marshal stats: %w", err)
		}
		snap.Stats = string(data)
		snap.Available = true
	}

	return s.snapshots.SaveSnapshot(ctx, snap)
}

func (s *Service) freshStats(ctx context.Context, filter *hierarchy.Filter) (*hierarchy.HierarchyStats, error) {
	if err := s.hierarchy.Refresh(ctx, filter); err != nil {
		return nil, err
	}
	return s.hierarchy.GetHierarchyStats(ctx, filter)
}

// recordRun updates the last and next run times
func (s *Service) recordRun(job *models.ScheduledJob, at time.Time) {
	job.LastRunAt = &at

	loc, err := time.LoadLocation(job.Timezone)
	if err != nil {
		loc = time.UTC
	}
	if schedule, err := cronParser.Parse(job.Cron); err != nil {
		s.logger.Warn("Failed to parse cron for next run", zap.String("job", job.Name), zap.Error(err))
	} else {
		nextRun := schedule.Next(at.In(loc))
		job.NextRunAt = &nextRun
	}

	err = s.db.Model(&models.ScheduledJob{}).Where("id = ?", job.ID).
		Updates(map[string]interface{}{"last_run_at": job.LastRunAt, "next_run_at": job.NextRunAt}).Error
	if err != nil {
		s.logger.Warn("Failed to update job run times", zap.String("job", job.Name), zap.Error(err))
	}
}

// encodePayload stores the filter payload as JSON, rejecting anything that is not a valid filter
func encodePayload(payload interface{}) (string, error) {
	var raw string
	switch p := payload.(type) {
	case nil:
		return "", nil
	case string:
		raw = p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("failed to marshal payload: %w", err)
		}
		raw = string(data)
	}

	if _, err := decodeFilter(raw); err != nil {
		return "", err
	}
	return raw, nil
}

func decodeFilter(payload string) (*hierarchy.Filter, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, nil
	}

	var filter hierarchy.Filter
	if err := json.Unmarshal([]byte(payload), &filter); err != nil {
		return nil, fmt.Errorf("failed to parse job payload: %w", err)
	}
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job payload: %w", err)
	}
	return &filter, nil
}

// normalizeCron converts 5-field cron to 6-field format by prepending seconds
// 5-field: "minute hour day month dow" (standard cron)
// 6-field: "second minute hour day month dow" (robfig/cron with WithSeconds)
func normalizeCron(cronExpr string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)

	fields := strings.Fields(cronExpr)
	if len(fields) == 6 {
		if _, err := cronParser.Parse(cronExpr); err == nil {
			return cronExpr, nil
		}
	}

	if len(fields) == 5 {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 5-field cron expression: %w", err)
		}
		return "0 " + cronExpr, nil
	}

	return "", fmt.Errorf("invalid cron expression: expected 5 or 6 fields, got %d", len(fields))
}

func toJobListResponse(job *models.ScheduledJob) JobListResponse {
	resp := JobListResponse{
		ID:        job.ID,
		Name:      job.Name,
		JobType:   job.JobType,
		Cron:      job.Cron,
		Timezone:  job.Timezone,
		Enabled:   job.Enabled,
		Payload:   job.Payload,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}

	if job.LastRunAt != nil {
		lastRun := job.LastRunAt.Format(time.RFC3339)
		resp.LastRunAt = &lastRun
	}
	if job.NextRunAt != nil {
		nextRun := job.NextRunAt.Format(time.RFC3339)
		resp.NextRun = &nextRun
	}
	return resp
}
