package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/mock/gomock"

	"isites_migrator/internal/config"
	"isites_migrator/internal/domain"
)

func pendingJob(keyword, courseID string) *domain.MigrationJob {
	return &domain.MigrationJob{
		Keyword:     keyword,
		CourseID:    courseID,
		ObjectKey:   keyword + ".zip",
		ProgressURL: "https://canvas.example/api/v1/progress/" + courseID,
		State:       domain.JobPending,
	}
}

func progress(state string) *domain.Progress {
	return &domain.Progress{WorkflowState: state}
}

func (s *ImportServiceTestSuite) TestAwait_LocksCompletedFolderOnce() {
	ctx := context.Background()
	done := pendingJob("ABC123", "1001")
	slow := pendingJob("DEF456", "1002")

	gomock.InOrder(
		s.lms.EXPECT().Progress(ctx, done.ProgressURL).Return(progress("running"), nil),
		s.lms.EXPECT().Progress(ctx, done.ProgressURL).Return(progress("completed"), nil),
	)
	gomock.InOrder(
		s.lms.EXPECT().Progress(ctx, slow.ProgressURL).Return(progress("queued"), nil).Times(3),
		s.lms.EXPECT().Progress(ctx, slow.ProgressURL).Return(progress("completed"), nil),
	)

	s.expectFolders("1001", 1, domain.Folder{ID: 11, Name: "iSites Files"})
	s.lms.EXPECT().LockFolder(ctx, int64(11)).Return(&domain.Folder{ID: 11, Locked: true}, nil).Times(1)
	s.expectFolders("1002", 2, domain.Folder{ID: 22, Name: "iSites Files"})
	s.lms.EXPECT().LockFolder(ctx, int64(22)).Return(&domain.Folder{ID: 22, Locked: true}, nil).Times(1)

	stats, err := s.service.Await(ctx, []*domain.MigrationJob{done, slow})

	s.Require().NoError(err)
	s.Equal(2, stats.Submitted)
	s.Equal(2, stats.Completed)
	s.Equal(0, stats.LockErrors)
	s.Equal(domain.JobCompleted, done.State)
	s.Equal(domain.JobCompleted, slow.State)
	s.False(done.FinishedAt.IsZero())
}

func (s *ImportServiceTestSuite) TestAwait_FailedJobIsNotLocked() {
	ctx := context.Background()
	job := pendingJob("ABC123", "1001")
	msg := "zip could not be extracted"

	s.lms.EXPECT().Progress(ctx, job.ProgressURL).Return(&domain.Progress{WorkflowState: "failed", Message: &msg}, nil)
	s.lms.EXPECT().LockFolder(gomock.Any(), gomock.Any()).Times(0)

	stats, err := s.service.Await(ctx, []*domain.MigrationJob{job})

	s.Require().NoError(err)
	s.Equal(1, stats.Failed)
	s.Equal(0, stats.Completed)
	s.Equal(domain.JobFailed, job.State)

	s.Require().Len(s.events, 1)
	s.Equal(domain.EventImportFailed, s.events[0].Type)
}

func (s *ImportServiceTestSuite) TestAwait_QueryErrorKeepsJobPending() {
	ctx := context.Background()
	job := pendingJob("ABC123", "1001")

	gomock.InOrder(
		s.lms.EXPECT().Progress(ctx, job.ProgressURL).Return(nil, errors.New("502 bad gateway")),
		s.lms.EXPECT().Progress(ctx, job.ProgressURL).Return(progress("completed"), nil),
	)
	s.expectFolders("1001", 1, domain.Folder{ID: 11, Name: "iSites Files"})
	s.lms.EXPECT().LockFolder(ctx, int64(11)).Return(&domain.Folder{ID: 11, Locked: true}, nil)

	stats, err := s.service.Await(ctx, []*domain.MigrationJob{job})

	s.Require().NoError(err)
	s.Equal(1, stats.Completed)
}

func (s *ImportServiceTestSuite) TestAwait_LockFailureIsCounted() {
	ctx := context.Background()
	job := pendingJob("ABC123", "1001")

	s.lms.EXPECT().Progress(ctx, job.ProgressURL).Return(progress("completed"), nil)
	s.expectFolders("1001", 1, domain.Folder{ID: 11, Name: "iSites Files"})
	s.lms.EXPECT().LockFolder(ctx, int64(11)).Return(nil, errors.New("401 unauthorized"))

	stats, err := s.service.Await(ctx, []*domain.MigrationJob{job})

	s.Require().NoError(err)
	s.Equal(1, stats.Completed)
	s.Equal(1, stats.LockErrors)
	s.Equal(domain.JobCompleted, job.State)
}

func (s *ImportServiceTestSuite) TestAwait_TimesOut() {
	ctx := context.Background()
	cfg := s.cfg
	cfg.Poll.MaxWait = 20 * time.Millisecond
	svc := s.newService(cfg)
	job := pendingJob("ABC123", "1001")

	s.lms.EXPECT().Progress(ctx, job.ProgressURL).Return(progress("running"), nil).MinTimes(1)

	stats, err := svc.Await(ctx, []*domain.MigrationJob{job})

	s.True(errors.Is(err, ErrJobsPending))
	s.Equal(1, stats.TimedOut)
	s.Equal(domain.JobTimedOut, job.State)

	s.Require().NotEmpty(s.events)
	s.Equal(domain.EventImportTimedOut, s.events[len(s.events)-1].Type)
}

func (s *ImportServiceTestSuite) TestAwait_FinalRoundBeforeTimeout() {
	ctx := context.Background()
	cfg := s.cfg
	cfg.Poll = config.PollConfig{
		Interval:    10 * time.Millisecond,
		MaxInterval: 10 * time.Millisecond,
		MaxWait:     5 * time.Millisecond,
	}
	svc := s.newService(cfg)
	job := pendingJob("ABC123", "1001")

	gomock.InOrder(
		s.lms.EXPECT().Progress(ctx, job.ProgressURL).Return(progress("running"), nil),
		s.lms.EXPECT().Progress(ctx, job.ProgressURL).Return(progress("completed"), nil),
	)
	s.expectFolders("1001", 1, domain.Folder{ID: 11, Name: "iSites Files"})
	s.lms.EXPECT().LockFolder(ctx, int64(11)).Return(&domain.Folder{ID: 11, Locked: true}, nil).Times(1)

	stats, err := svc.Await(ctx, []*domain.MigrationJob{job})

	s.Require().NoError(err)
	s.Equal(1, stats.Completed)
	s.Equal(0, stats.TimedOut)
	s.Equal(domain.JobCompleted, job.State)
	for _, event := range s.events {
		s.NotEqual(domain.EventImportTimedOut, event.Type)
	}
}

func (s *ImportServiceTestSuite) TestAwait_Cancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	job := pendingJob("ABC123", "1001")

	s.lms.EXPECT().Progress(gomock.Any(), job.ProgressURL).DoAndReturn(
		func(context.Context, string) (*domain.Progress, error) {
			cancel()
			return progress("running"), nil
		},
	)

	stats, err := s.service.Await(ctx, []*domain.MigrationJob{job})

	s.True(errors.Is(err, context.Canceled))
	s.Equal(0, stats.TimedOut)
	s.Equal(domain.JobPending, job.State)
}

func (s *ImportServiceTestSuite) TestAwait_NoJobs() {
	stats, err := s.service.Await(context.Background(), nil)

	s.Require().NoError(err)
	s.Equal(0, stats.Submitted)
}
