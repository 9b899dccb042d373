package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"isites_migrator/internal/config"
	"isites_migrator/internal/domain"
	"isites_migrator/internal/selector"
	"isites_migrator/internal/service/mocks"
)

type ImportServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	lms       *mocks.MockLMS
	blobs     *mocks.MockBlobStore
	publisher *mocks.MockPublisher

	service *ImportService
	cfg     config.ImportConfig
	events  []domain.MigrationEvent
}

func (s *ImportServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.lms = mocks.NewMockLMS(s.ctrl)
	s.blobs = mocks.NewMockBlobStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.events = nil

	s.cfg = config.ImportConfig{
		FolderName:     "iSites Files",
		DownloadURLTTL: time.Hour,
		Poll: config.PollConfig{
			Interval:    time.Millisecond,
			MaxInterval: 4 * time.Millisecond,
			MaxWait:     time.Second,
		},
	}

	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event *domain.MigrationEvent) error {
			s.events = append(s.events, *event)
			return nil
		},
	).AnyTimes()

	s.service = s.newService(s.cfg)
}

func (s *ImportServiceTestSuite) newService(cfg config.ImportConfig) *ImportService {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewImportService(s.lms, s.blobs, s.publisher, logger, cfg, clock.WallClock)
}

func (s *ImportServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestImportServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ImportServiceTestSuite))
}

func (s *ImportServiceTestSuite) expectFolders(courseID string, rootID int64, children ...domain.Folder) {
	s.lms.EXPECT().RootFolder(gomock.Any(), courseID).Return(&domain.Folder{ID: rootID, Name: "course files"}, nil)
	s.lms.EXPECT().ListFolders(gomock.Any(), rootID).Return(children, nil)
}

func (s *ImportServiceTestSuite) TestSubmit_ReusesExistingFolder() {
	ctx := context.Background()
	sel := domain.CourseSelector{Keyword: "ABC123", CanvasCourseID: "1001"}

	s.blobs.EXPECT().PresignGet(ctx, "ABC123.zip", time.Hour).Return("https://s3.example/ABC123.zip?sig", nil)
	s.expectFolders("1001", 1,
		domain.Folder{ID: 2, Name: "Other"},
		domain.Folder{ID: 3, Name: "iSites Files"},
	)
	s.lms.EXPECT().CreateZipImport(ctx, "1001", "https://s3.example/ABC123.zip?sig", int64(3)).
		Return("https://canvas.example/api/v1/progress/9", nil)

	job, err := s.service.Submit(ctx, sel)

	s.Require().NoError(err)
	s.Equal("ABC123", job.Keyword)
	s.Equal("1001", job.CourseID)
	s.Equal(int64(3), job.FolderID)
	s.Equal("https://canvas.example/api/v1/progress/9", job.ProgressURL)
	s.Equal(domain.JobPending, job.State)
	s.False(job.SubmittedAt.IsZero())

	s.Require().Len(s.events, 1)
	s.Equal(domain.EventImportSubmitted, s.events[0].Type)
	s.Equal("1001", s.events[0].CourseID)
}

func (s *ImportServiceTestSuite) TestSubmit_CreatesFolder() {
	ctx := context.Background()
	sel := domain.CourseSelector{Keyword: "ABC123", CanvasCourseID: "1001"}

	s.blobs.EXPECT().PresignGet(ctx, "ABC123.zip", time.Hour).Return("https://signed", nil)
	s.expectFolders("1001", 1, domain.Folder{ID: 2, Name: "isites files"})
	s.lms.EXPECT().CreateFolder(ctx, "1001", "iSites Files", int64(1)).Return(&domain.Folder{ID: 7, Name: "iSites Files"}, nil)
	s.lms.EXPECT().CreateZipImport(ctx, "1001", "https://signed", int64(7)).Return("https://progress/1", nil)

	job, err := s.service.Submit(ctx, sel)

	s.Require().NoError(err)
	s.Equal(int64(7), job.FolderID)
}

func (s *ImportServiceTestSuite) TestSubmit_ArchiveMissing() {
	ctx := context.Background()
	sel := domain.CourseSelector{Keyword: "ABC123", CanvasCourseID: "1001"}

	s.blobs.EXPECT().PresignGet(ctx, "ABC123.zip", time.Hour).
		Return("", fmt.Errorf("head object: %w", domain.ErrNotFound))

	job, err := s.service.Submit(ctx, sel)

	s.Nil(job)
	s.True(errors.Is(err, ErrArchiveNotFound))
	s.Empty(s.events)
}

func (s *ImportServiceTestSuite) TestSubmit_FolderCreationFails() {
	ctx := context.Background()
	sel := domain.CourseSelector{Keyword: "ABC123", CanvasCourseID: "1001"}
	apiErr := errors.New("403 forbidden")

	s.blobs.EXPECT().PresignGet(ctx, "ABC123.zip", time.Hour).Return("https://signed", nil)
	s.expectFolders("1001", 1)
	s.lms.EXPECT().CreateFolder(ctx, "1001", "iSites Files", int64(1)).Return(nil, apiErr)

	job, err := s.service.Submit(ctx, sel)

	s.Nil(job)
	s.True(errors.Is(err, apiErr))
}

func (s *ImportServiceTestSuite) TestSubmitBatch_SkipsMalformedRow() {
	ctx := context.Background()
	input := strings.Join([]string{
		"ABC123,1001",
		"DEF456",
		"GHI789,1003",
	}, "\n")

	batch, err := selector.Parse(strings.NewReader(input), 2)
	s.Require().NoError(err)
	s.Require().Len(batch.Skipped, 1)
	s.Equal(2, batch.Skipped[0].Line)

	for i, sel := range batch.Selectors {
		rootID := int64(100 + i)
		s.blobs.EXPECT().PresignGet(ctx, sel.Keyword+".zip", time.Hour).Return("https://signed/"+sel.Keyword, nil)
		s.expectFolders(sel.CanvasCourseID, rootID, domain.Folder{ID: rootID + 1, Name: "iSites Files"})
		s.lms.EXPECT().CreateZipImport(ctx, sel.CanvasCourseID, "https://signed/"+sel.Keyword, rootID+1).
			Return("https://progress/"+sel.Keyword, nil)
	}

	jobs, stats := s.service.SubmitBatch(ctx, batch.Selectors)

	s.Len(jobs, 2)
	s.Equal(2, stats.Total)
	s.Equal(2, stats.Succeeded)
	s.Equal("1001", jobs[0].CourseID)
	s.Equal("1003", jobs[1].CourseID)
}

func (s *ImportServiceTestSuite) TestSubmitBatch_ContinuesAfterFailure() {
	ctx := context.Background()
	selectors := []domain.CourseSelector{
		{Keyword: "GONE", CanvasCourseID: "1"},
		{Keyword: "ABC123", CanvasCourseID: "2"},
	}

	s.blobs.EXPECT().PresignGet(ctx, "GONE.zip", time.Hour).Return("", domain.ErrNotFound)
	s.blobs.EXPECT().PresignGet(ctx, "ABC123.zip", time.Hour).Return("https://signed", nil)
	s.expectFolders("2", 20, domain.Folder{ID: 21, Name: "iSites Files"})
	s.lms.EXPECT().CreateZipImport(ctx, "2", "https://signed", int64(21)).Return("https://progress/2", nil)

	jobs, stats := s.service.SubmitBatch(ctx, selectors)

	s.Require().Len(jobs, 1)
	s.Equal("ABC123", jobs[0].Keyword)
	s.Equal(2, stats.Total)
	s.Equal(1, stats.Succeeded)
	s.Equal(1, stats.Failed)
}
