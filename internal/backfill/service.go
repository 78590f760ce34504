// Package backfill loads historical games into the pitch event store, either
// directly from the command line or through a queue of jobs submitted over
// the REST API.
package backfill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid backfill request")

// Request represents a backfill invocation request.
type Request struct {
	Season    int
	StartDate *time.Time
	EndDate   *time.Time
	GamePks   []int64
	DryRun    bool
}

// DeriveType infers the job type based on populated fields. Explicit games
// win over a date range, which wins over a season.
func (r Request) DeriveType() (JobType, error) {
	if len(r.GamePks) > 0 {
		return JobTypeGame, nil
	}
	if r.StartDate != nil {
		return JobTypeDateRange, nil
	}
	if r.Season > 0 {
		return JobTypeSeason, nil
	}
	return "", fmt.Errorf("%w: one of game pks, start date or season is required", ErrInvalidRequest)
}

// Spec validates the request and converts it to a runner spec. A missing end
// date means a single day.
func (r Request) Spec() (JobSpec, error) {
	jobType, err := r.DeriveType()
	if err != nil {
		return JobSpec{}, err
	}

	spec := JobSpec{Type: jobType, Season: r.Season, DryRun: r.DryRun}
	switch jobType {
	case JobTypeGame:
		for _, pk := range r.GamePks {
			if pk <= 0 {
				return JobSpec{}, fmt.Errorf("%w: game pk %d", ErrInvalidRequest, pk)
			}
		}
		spec.GamePks = r.GamePks
	case JobTypeDateRange:
		spec.Start = truncateDate(*r.StartDate)
		spec.End = spec.Start
		if r.EndDate != nil {
			spec.End = truncateDate(*r.EndDate)
		}
		if spec.End.Before(spec.Start) {
			return JobSpec{}, fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidRequest,
				spec.End.Format(time.DateOnly), spec.Start.Format(time.DateOnly))
		}
	}
	return spec, nil
}

// JobRunner executes one spec.
type JobRunner interface {
	Run(ctx context.Context, spec JobSpec, reporter Reporter) (*Result, error)
}

// Service coordinates job persistence, execution, and status reporting.
// Jobs run one at a time in submission order.
type Service struct {
	store  JobStore
	runner JobRunner

	historyLimit int
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logrus.Logger
}

// NewService constructs a Service. Call Start to launch the worker.
func NewService(store JobStore, runner JobRunner, logger *logrus.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Service{
		store:        store,
		runner:       runner,
		historyLimit: 10,
		pollInterval: 3 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
	}
}

// WithPollInterval sets how often the worker checks an empty queue.
func (s *Service) WithPollInterval(d time.Duration) *Service {
	if d > 0 {
		s.pollInterval = d
	}
	return s
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if err := s.store.ResetStuckJobs(s.ctx); err != nil {
		s.logger.WithError(err).Warn("[backfill] ⚠️ failed to reset stuck jobs")
	}

	s.wg.Add(1)
	go s.worker()
	s.logger.Info("[backfill] ✓ job worker started")
}

// Shutdown stops the worker and waits for the running job to wind down.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue validates req and stores it as a queued job.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Job, error) {
	spec, err := req.Spec()
	if err != nil {
		return nil, err
	}

	job := &Job{
		JobID:         uuid.NewString(),
		JobType:       spec.Type,
		DryRun:        spec.DryRun,
		Status:        JobStatusQueued,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
	}

	switch spec.Type {
	case JobTypeGame:
		job.GamePks = spec.GamePks
		job.ProgressTotal = len(spec.GamePks)
	case JobTypeSeason:
		job.Season = sql.NullInt64{Int64: int64(spec.Season), Valid: true}
	case JobTypeDateRange:
		job.StartDate = sql.NullTime{Time: spec.Start, Valid: true}
		job.EndDate = sql.NullTime{Time: spec.End, Valid: true}
		job.ProgressTotal = len(enumerateDates(spec.Start, spec.End))
	}

	stored, err := s.store.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}

	_ = s.store.AppendEvent(ctx, stored.JobID, "queued", "Job queued")
	s.logger.WithFields(logrus.Fields{"job_id": stored.JobID, "type": stored.JobType}).Info("[backfill] job queued")

	return stored, nil
}

// GetStatus returns the currently running job plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.store.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListRecentJobs(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveJob: active,
		History:   history,
	}, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if s.ctx.Err() != nil {
			return
		}

		job, err := s.store.MarkNextJobRunning(s.ctx)
		if err != nil {
			s.logger.WithError(err).Warn("[backfill] ⚠️ claim job error")
		}
		if err != nil || job == nil {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				continue
			}
		}

		s.executeJob(job)
	}
}

func (s *Service) executeJob(job *Job) {
	log := s.logger.WithFields(logrus.Fields{"job_id": job.JobID, "type": job.JobType})

	spec, err := buildSpec(job)
	if err != nil {
		log.WithError(err).Error("[backfill] invalid job spec")
		_ = s.store.UpdateStatus(s.ctx, job.JobID, JobStatusFailed, "Invalid job specification", err)
		return
	}

	reporter := &jobReporter{ctx: s.ctx, store: s.store, jobID: job.JobID, total: job.ProgressTotal}

	log.Info("[backfill] running job")
	result, err := s.runner.Run(s.ctx, spec, reporter)

	// The service context may already be cancelled; final bookkeeping still
	// needs to reach the store.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 10*time.Second)
	defer cancel()

	if result != nil {
		_ = s.store.UpdateCounts(ctx, job.JobID, result.GamesWritten, result.GamesFailed)
	}

	switch {
	case err != nil && errors.Is(err, context.Canceled):
		log.Warn("[backfill] ⚠️ job cancelled")
		_ = s.store.UpdateStatus(ctx, job.JobID, JobStatusCancelled, "Job cancelled", err)
	case err != nil:
		log.WithError(err).Error("[backfill] job failed")
		_ = s.store.UpdateStatus(ctx, job.JobID, JobStatusFailed, "Job failed", err)
	default:
		msg := fmt.Sprintf("Job completed: %d games written, %d failed", result.GamesWritten, result.GamesFailed)
		log.Info("[backfill] ✓ " + msg)
		_ = s.store.UpdateStatus(ctx, job.JobID, JobStatusCompleted, msg, nil)
	}
}

func buildSpec(job *Job) (JobSpec, error) {
	spec := JobSpec{Type: job.JobType, DryRun: job.DryRun}

	switch job.JobType {
	case JobTypeGame:
		if len(job.GamePks) == 0 {
			return spec, errors.New("game job missing game pks")
		}
		spec.GamePks = job.GamePks
	case JobTypeSeason:
		if !job.Season.Valid {
			return spec, errors.New("season job missing season")
		}
		spec.Season = int(job.Season.Int64)
	case JobTypeDateRange:
		if !job.StartDate.Valid || !job.EndDate.Valid {
			return spec, errors.New("job missing start/end dates")
		}
		spec.Start = job.StartDate.Time
		spec.End = job.EndDate.Time
	default:
		return spec, fmt.Errorf("unknown job type %s", job.JobType)
	}

	return spec, nil
}

// jobReporter writes runner progress to the job store.
type jobReporter struct {
	ctx   context.Context
	store JobStore
	jobID string
	total int

	written int
	failed  int
}

func (r *jobReporter) OnJobStart(spec JobSpec, total int) {
	r.total = total
	_ = r.store.UpdateProgress(r.ctx, r.jobID, 0, r.total, "Job starting")
}

func (r *jobReporter) OnDateStart(date time.Time, index int, total int) {
	msg := fmt.Sprintf("Processing %s (%d/%d)", date.Format("Jan 2, 2006"), index+1, total)
	_ = r.store.UpdateProgress(r.ctx, r.jobID, index, total, msg)
}

func (r *jobReporter) OnGameWritten(gamePk int64, rows int) {
	r.written++
	_ = r.store.AppendEvent(r.ctx, r.jobID, "game", fmt.Sprintf("Game %d stored (%d rows)", gamePk, rows))
}

func (r *jobReporter) OnGameFailed(gamePk int64, err error) {
	r.failed++
	_ = r.store.AppendEvent(r.ctx, r.jobID, "game_error", fmt.Sprintf("Game %d failed: %v", gamePk, err))
}

func (r *jobReporter) OnProgress(message string, current int, total int) {
	if total <= 0 {
		total = r.total
	}
	_ = r.store.UpdateProgress(r.ctx, r.jobID, current, total, message)
	_ = r.store.UpdateCounts(r.ctx, r.jobID, r.written, r.failed)
}

func (r *jobReporter) OnJobComplete(result *Result) {
	_ = r.store.UpdateProgress(r.ctx, r.jobID, r.total, r.total, "Job complete")
}

func (r *jobReporter) OnJobError(err error) {
	_ = r.store.AppendEvent(r.ctx, r.jobID, "error", err.Error())
}
