package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/juju/clock"

	"isites_migrator/internal/config"
	"isites_migrator/internal/domain"
)

type ImportService struct {
	lms       LMS
	blobs     BlobStore
	publisher Publisher
	logger    *slog.Logger
	config    config.ImportConfig
	clock     clock.Clock
}

// NewImportService wires the import pipeline. publisher may be nil; a nil
// clock means the wall clock.
func NewImportService(
	lms LMS,
	blobs BlobStore,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.ImportConfig,
	clk clock.Clock,
) *ImportService {
	if clk == nil {
		clk = clock.WallClock
	}
	return &ImportService{
		lms:       lms,
		blobs:     blobs,
		publisher: publisher,
		logger:    logger.With("component", "import"),
		config:    cfg,
		clock:     clk,
	}
}

// Submit starts a zip import of a published course archive into the
// destination folder of a Canvas course.
func (s *ImportService) Submit(ctx context.Context, sel domain.CourseSelector) (*domain.MigrationJob, error) {
	logger := s.logger.With("keyword", sel.Keyword, "course_id", sel.CanvasCourseID)

	key := domain.ArchiveName(sel.Keyword)
	fileURL, err := s.blobs.PresignGet(ctx, key, s.config.DownloadURLTTL)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("presign archive: %w", err)
	}

	folder, err := s.getOrCreateFolder(ctx, logger, sel.CanvasCourseID)
	if err != nil {
		return nil, err
	}

	progressURL, err := s.lms.CreateZipImport(ctx, sel.CanvasCourseID, fileURL, folder.ID)
	if err != nil {
		return nil, fmt.Errorf("create content migration: %w", err)
	}

	job := &domain.MigrationJob{
		Keyword:     sel.Keyword,
		CourseID:    sel.CanvasCourseID,
		FolderID:    folder.ID,
		ObjectKey:   key,
		ProgressURL: progressURL,
		State:       domain.JobPending,
		SubmittedAt: s.clock.Now(),
	}

	logger.Info("import submitted", "folder_id", folder.ID, "progress_url", progressURL)
	s.emit(ctx, job, domain.EventImportSubmitted)

	return job, nil
}

// SubmitBatch submits every selector. Failed submissions are logged, counted
// and left out of the returned jobs.
func (s *ImportService) SubmitBatch(ctx context.Context, selectors []domain.CourseSelector) ([]*domain.MigrationJob, *domain.BatchStats) {
	stats := &domain.BatchStats{}
	var jobs []*domain.MigrationJob

	for _, sel := range selectors {
		if ctx.Err() != nil {
			s.logger.Warn("import batch interrupted", "remaining", len(selectors)-stats.Total)
			break
		}
		stats.Total++
		job, err := s.Submit(ctx, sel)
		if err != nil {
			stats.Failed++
			s.logger.Error("import submission failed",
				"keyword", sel.Keyword,
				"course_id", sel.CanvasCourseID,
				"error", err,
			)
			continue
		}
		stats.Succeeded++
		jobs = append(jobs, job)
	}

	s.logger.Info("import batch submitted",
		"total", stats.Total,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
	return jobs, stats
}

// getOrCreateFolder finds the configured folder directly below the course's
// root folder, creating it when absent.
func (s *ImportService) getOrCreateFolder(ctx context.Context, logger *slog.Logger, courseID string) (*domain.Folder, error) {
	root, err := s.lms.RootFolder(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get root folder: %w", err)
	}

	children, err := s.lms.ListFolders(ctx, root.ID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	for i := range children {
		if children[i].Name == s.config.FolderName {
			return &children[i], nil
		}
	}

	folder, err := s.lms.CreateFolder(ctx, courseID, s.config.FolderName, root.ID)
	if err != nil {
		logger.Error("failed to create folder", "folder_name", s.config.FolderName, "error", err)
		return nil, fmt.Errorf("create folder %q: %w", s.config.FolderName, err)
	}
	logger.Info("created folder", "folder_name", folder.Name, "folder_id", folder.ID)
	return folder, nil
}

func (s *ImportService) emit(ctx context.Context, job *domain.MigrationJob, eventType domain.EventType) {
	if s.publisher == nil {
		return
	}
	event := &domain.MigrationEvent{
		Type:        eventType,
		Keyword:     job.Keyword,
		CourseID:    job.CourseID,
		ObjectKey:   job.ObjectKey,
		ProgressURL: job.ProgressURL,
		State:       job.State,
		Timestamp:   s.clock.Now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "type", eventType, "keyword", job.Keyword, "error", err)
	}
}
