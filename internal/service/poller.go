package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/juju/retry"

	"isites_migrator/internal/domain"
)

const backoffFactor = 1.5

var errRoundPending = errors.New("round left jobs pending")

// Await polls the progress of every job until all are terminal, the poll
// window closes or ctx is cancelled. Completed jobs get their folder locked
// exactly once. Jobs still pending when the window closes become timed out
// and Await returns ErrJobsPending.
func (s *ImportService) Await(ctx context.Context, jobs []*domain.MigrationJob) (*domain.ImportStats, error) {
	startTime := s.clock.Now()
	stats := &domain.ImportStats{Submitted: len(jobs)}
	poll := s.config.Poll

	s.logger.Info("waiting for imports",
		"jobs", len(jobs),
		"interval", poll.Interval,
		"max_interval", poll.MaxInterval,
		"max_wait", poll.MaxWait,
	)

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if s.pollRound(ctx, jobs, stats) > 0 {
				return errRoundPending
			}
			return nil
		},
		NotifyFunc: func(_ error, attempt int) {
			s.logger.Debug("imports still processing", "round", attempt)
		},
		Attempts:    -1,
		Delay:       poll.Interval,
		MaxDelay:    poll.MaxInterval,
		MaxDuration: poll.MaxWait,
		BackoffFunc: retry.ExpBackoff(poll.Interval, poll.MaxInterval, backoffFactor, false),
		Clock:       s.clock,
		Stop:        ctx.Done(),
	})

	var result error
	switch {
	case err == nil:
	case retry.IsDurationExceeded(err):
		// One last round before pending jobs time out.
		if s.pollRound(ctx, jobs, stats) > 0 {
			s.timeOut(ctx, jobs, stats)
			result = fmt.Errorf("%w: %d after %s", ErrJobsPending, stats.TimedOut, poll.MaxWait)
		}
	case retry.IsRetryStopped(err):
		result = fmt.Errorf("wait for imports: %w", ctx.Err())
	default:
		result = fmt.Errorf("wait for imports: %w", err)
	}

	stats.Duration = s.clock.Now().Sub(startTime)

	s.logger.Info("imports finished",
		"submitted", stats.Submitted,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"timed_out", stats.TimedOut,
		"lock_errors", stats.LockErrors,
		"duration", stats.Duration,
	)

	return stats, result
}

// pollRound queries every pending job once and returns how many remain pending.
func (s *ImportService) pollRound(ctx context.Context, jobs []*domain.MigrationJob, stats *domain.ImportStats) int {
	pending := 0
	for _, job := range jobs {
		if job.Terminal() {
			continue
		}
		if ctx.Err() != nil {
			pending++
			continue
		}

		progress, err := s.lms.Progress(ctx, job.ProgressURL)
		if err != nil {
			s.logger.Warn("failed to query import progress",
				"keyword", job.Keyword,
				"course_id", job.CourseID,
				"error", err,
			)
			pending++
			continue
		}

		switch domain.StateFromWorkflow(progress.WorkflowState) {
		case domain.JobCompleted:
			s.finish(ctx, job, domain.JobCompleted)
			stats.Completed++
			if err := s.lockFolder(ctx, job); err != nil {
				stats.LockErrors++
				s.logger.Error("failed to lock folder",
					"keyword", job.Keyword,
					"course_id", job.CourseID,
					"error", err,
				)
			}
		case domain.JobFailed:
			s.finish(ctx, job, domain.JobFailed)
			stats.Failed++
			msg := ""
			if progress.Message != nil {
				msg = *progress.Message
			}
			s.logger.Error("import failed", "keyword", job.Keyword, "course_id", job.CourseID, "message", msg)
		default:
			pending++
		}
	}

	s.logger.Info(fmt.Sprintf("%d imports complete, %d failed, %d processing",
		stats.Completed, stats.Failed, pending))
	return pending
}

// lockFolder resolves the job's destination folder again and locks it.
func (s *ImportService) lockFolder(ctx context.Context, job *domain.MigrationJob) error {
	logger := s.logger.With("keyword", job.Keyword, "course_id", job.CourseID)
	folder, err := s.getOrCreateFolder(ctx, logger, job.CourseID)
	if err != nil {
		return err
	}
	if _, err := s.lms.LockFolder(ctx, folder.ID); err != nil {
		return fmt.Errorf("lock folder %d: %w", folder.ID, err)
	}
	logger.Info("locked folder", "folder_id", folder.ID)
	return nil
}

func (s *ImportService) timeOut(ctx context.Context, jobs []*domain.MigrationJob, stats *domain.ImportStats) {
	for _, job := range jobs {
		if job.Terminal() {
			continue
		}
		s.finish(ctx, job, domain.JobTimedOut)
		stats.TimedOut++
		s.logger.Error("import timed out",
			"keyword", job.Keyword,
			"course_id", job.CourseID,
			"progress_url", job.ProgressURL,
		)
	}
}

func (s *ImportService) finish(ctx context.Context, job *domain.MigrationJob, state domain.JobState) {
	job.State = state
	job.FinishedAt = s.clock.Now()

	var eventType domain.EventType
	switch state {
	case domain.JobCompleted:
		eventType = domain.EventImportCompleted
	case domain.JobFailed:
		eventType = domain.EventImportFailed
	default:
		eventType = domain.EventImportTimedOut
	}
	s.emit(ctx, job, eventType)
}
