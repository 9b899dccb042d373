package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"isites_migrator/internal/archive"
	"isites_migrator/internal/config"
	"isites_migrator/internal/domain"
)

const archiveContentType = "application/zip"

var (
	ErrCourseNotFound       = errors.New("course not found")
	ErrArchiveNotFound      = errors.New("archive not found")
	ErrJobsPending          = errors.New("migrations still pending")
	ErrNoSelection          = errors.New("no course selection given")
	ErrConflictingSelection = errors.New("more than one course selection given")
	ErrInvalidKeyword       = errors.New("keyword does not name a staging directory")
)

type ExportService struct {
	sites     SiteStore
	topics    TopicStore
	files     FileStore
	texts     TopicTextStore
	txManager TransactionManager
	blobs     BlobStore
	publisher Publisher
	logger    *slog.Logger
	config    config.ExportConfig
}

// NewExportService wires the export pipeline. publisher may be nil.
func NewExportService(
	sites SiteStore,
	topics TopicStore,
	files FileStore,
	texts TopicTextStore,
	txManager TransactionManager,
	blobs BlobStore,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.ExportConfig,
) *ExportService {
	return &ExportService{
		sites:     sites,
		topics:    topics,
		files:     files,
		texts:     texts,
		txManager: txManager,
		blobs:     blobs,
		publisher: publisher,
		logger:    logger.With("component", "export"),
		config:    cfg,
	}
}

// ExportCourse walks, stages, archives and uploads one course.
func (s *ExportService) ExportCourse(ctx context.Context, keyword string) (*domain.ExportStats, error) {
	startTime := time.Now()
	logger := s.logger.With("keyword", keyword)
	logger.Info("starting export", "dir", s.config.Dir)

	root, err := stagingRoot(s.config.Dir, keyword)
	if err != nil {
		return nil, err
	}

	stats := &domain.ExportStats{Keyword: keyword}

	plan, err := s.plan(ctx, keyword, stats)
	if err != nil {
		return nil, err
	}

	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("remove stale staging tree: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging tree: %w", err)
	}

	if err := s.materialize(ctx, logger, root, plan, stats); err != nil {
		return nil, fmt.Errorf("materialize course: %w", err)
	}

	archivePath := filepath.Join(s.config.Dir, domain.ArchiveName(keyword))
	result, err := archive.ZipDir(s.config.Dir, keyword, archivePath)
	if err != nil {
		return nil, fmt.Errorf("archive course: %w", err)
	}
	stats.ArchiveSize = result.Size

	if err := os.RemoveAll(root); err != nil {
		logger.Warn("failed to remove staging tree", "path", root, "error", err)
	}

	if err := s.publish(ctx, logger, keyword, archivePath, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)

	logger.Info("export completed",
		"topics", stats.Topics,
		"excluded_topics", stats.ExcludedTopics,
		"missing_repositories", stats.MissingRepositories,
		"files", stats.Files,
		"texts", stats.Texts,
		"skipped_files", stats.SkippedFiles,
		"archive_entries", result.Entries,
		"archive_size", humanize.Bytes(uint64(stats.ArchiveSize)),
		"object_key", stats.ObjectKey,
		"duration", stats.Duration,
	)

	return stats, nil
}

// ExportTerm exports every official iSites course of a term. Failures of
// single courses are logged and counted.
func (s *ExportService) ExportTerm(ctx context.Context, termID int64) (*domain.BatchStats, error) {
	keywords, err := s.sites.ListKeywordsByTerm(ctx, termID)
	if err != nil {
		return nil, fmt.Errorf("list courses of term %d: %w", termID, err)
	}

	s.logger.Info("resolved term", "term_id", termID, "courses", len(keywords))

	selectors := make([]domain.CourseSelector, len(keywords))
	for i, k := range keywords {
		selectors[i] = domain.CourseSelector{Keyword: k}
	}
	return s.ExportBatch(ctx, selectors), nil
}

func (s *ExportService) ExportBatch(ctx context.Context, selectors []domain.CourseSelector) *domain.BatchStats {
	stats := &domain.BatchStats{}
	for _, sel := range selectors {
		if ctx.Err() != nil {
			s.logger.Warn("export batch interrupted", "remaining", len(selectors)-stats.Total)
			break
		}
		stats.Total++
		if _, err := s.ExportCourse(ctx, sel.Keyword); err != nil {
			stats.Failed++
			s.logger.Error("export failed", "keyword", sel.Keyword, "error", err)
			continue
		}
		stats.Succeeded++
	}

	s.logger.Info("export batch completed",
		"total", stats.Total,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
	return stats
}

// plan reads everything needed for one course inside a single read-only
// transaction.
func (s *ExportService) plan(ctx context.Context, keyword string, stats *domain.ExportStats) (*domain.CoursePlan, error) {
	plan := &domain.CoursePlan{Keyword: keyword}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		site, err := s.sites.GetByKeyword(txCtx, keyword)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrCourseNotFound, keyword)
		}
		if err != nil {
			return fmt.Errorf("get site: %w", err)
		}

		topics, err := s.topics.ListBySite(txCtx, site.ID)
		if err != nil {
			return fmt.Errorf("list topics: %w", err)
		}

		for _, topic := range topics {
			if s.excluded(topic) {
				stats.ExcludedTopics++
				continue
			}
			stats.Topics++

			unit, err := s.planUnit(txCtx, topic)
			if errors.Is(err, domain.ErrNotFound) {
				stats.MissingRepositories++
				s.logger.Info("no file repository for topic",
					"keyword", keyword,
					"topic_id", topic.ID,
					"repository_id", domain.RepositoryID(topic.ID),
				)
				continue
			}
			if err != nil {
				return err
			}
			plan.Units = append(plan.Units, *unit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *ExportService) planUnit(ctx context.Context, topic domain.Topic) (*domain.UnitPlan, error) {
	repoID := domain.RepositoryID(topic.ID)
	repo, err := s.files.GetRepository(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", repoID, err)
	}

	files, err := s.files.ListFiles(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list files of %s: %w", repoID, err)
	}

	texts, err := s.texts.ListByTopic(ctx, topic.ID)
	if err != nil {
		return nil, fmt.Errorf("list texts of topic %d: %w", topic.ID, err)
	}

	return &domain.UnitPlan{
		Topic:      topic,
		Dir:        unitDir(topic),
		Repository: *repo,
		Files:      files,
		Texts:      texts,
	}, nil
}

func (s *ExportService) excluded(topic domain.Topic) bool {
	return slices.Contains(s.config.ExcludedToolIDs, topic.ToolID) ||
		slices.Contains(s.config.ExcludedTopicTitles, topic.Title)
}

var dirReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_")

// unitDir names the staging directory of a topic.
func unitDir(topic domain.Topic) string {
	name := dirReplacer.Replace(strings.TrimSpace(topic.Title))
	if name == "" || name == "." || name == ".." {
		return "no_title_" + strconv.FormatInt(topic.ID, 10)
	}
	return name
}

func (s *ExportService) publish(ctx context.Context, logger *slog.Logger, keyword, archivePath string, stats *domain.ExportStats) error {
	key := domain.ArchiveName(keyword)
	if err := s.blobs.Upload(ctx, key, archivePath, archiveContentType); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	stats.ObjectKey = key

	if err := os.Remove(archivePath); err != nil {
		logger.Warn("failed to remove local archive", "path", archivePath, "error", err)
	}

	if s.publisher != nil {
		event := &domain.MigrationEvent{
			Type:      domain.EventArchivePublished,
			Keyword:   keyword,
			ObjectKey: key,
			Timestamp: time.Now().UTC(),
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			logger.Error("failed to publish event", "type", event.Type, "error", err)
		}
	}
	return nil
}

// stagingRoot returns dir/keyword, which must be a direct child of dir.
func stagingRoot(dir, keyword string) (string, error) {
	if keyword == "" || keyword == "." || keyword == ".." || strings.ContainsAny(keyword, `/\`) {
		return "", fmt.Errorf("%q: %w", keyword, ErrInvalidKeyword)
	}
	root := filepath.Join(dir, keyword)
	if filepath.Dir(root) != filepath.Clean(dir) {
		return "", fmt.Errorf("%q: %w", keyword, ErrInvalidKeyword)
	}
	return root, nil
}
