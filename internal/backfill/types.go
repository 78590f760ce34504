package backfill

import (
	"database/sql"
	"time"

	"github.com/fortuna/diamond/internal/ingest"
	"github.com/lib/pq"
)

// JobType enumerates the supported backfill job variants.
type JobType string

const (
	JobTypeSeason    JobType = "season"
	JobTypeDateRange JobType = "date_range"
	JobTypeGame      JobType = "game"
)

// JobStatus represents the lifecycle state for a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Finished reports whether the status is terminal.
func (s JobStatus) Finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is a stored backfill job.
type Job struct {
	JobID           string
	JobType         JobType
	Season          sql.NullInt64
	StartDate       sql.NullTime
	EndDate         sql.NullTime
	GamePks         pq.Int64Array
	DryRun          bool
	Status          JobStatus
	StatusMessage   sql.NullString
	ProgressCurrent int
	ProgressTotal   int
	GamesWritten    int
	GamesFailed     int
	LastError       sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
}

// Copy returns a copy that shares nothing mutable with j.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	cpy := *j
	cpy.GamePks = append(pq.Int64Array(nil), j.GamePks...)
	return &cpy
}

// JobSpec describes the work to be performed by the runner.
type JobSpec struct {
	Type    JobType
	Season  int
	Start   time.Time
	End     time.Time
	GamePks []int64
	DryRun  bool
}

// Result summarizes a finished run. In a dry run GamesWritten counts games
// that flattened successfully and nothing is stored.
type Result struct {
	GamesWritten int
	GamesFailed  int
	GamesSkipped int
	Rows         int
	Failures     []ingest.Failure
}

// Reporter receives lifecycle callbacks from the runner.
type Reporter interface {
	OnJobStart(spec JobSpec, total int)
	OnDateStart(date time.Time, index int, total int)
	OnGameWritten(gamePk int64, rows int)
	OnGameFailed(gamePk int64, err error)
	OnProgress(message string, current int, total int)
	OnJobComplete(result *Result)
	OnJobError(err error)
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveJob *Job
	History   []*Job
}
