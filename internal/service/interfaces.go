package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"isites_migrator/internal/domain"
)

type SiteStore interface {
	GetByKeyword(ctx context.Context, keyword string) (*domain.Site, error)
	ListKeywordsByTerm(ctx context.Context, termID int64) ([]string, error)
}

type TopicStore interface {
	ListBySite(ctx context.Context, siteID int64) ([]domain.Topic, error)
}

type FileStore interface {
	GetRepository(ctx context.Context, id string) (*domain.FileRepository, error)
	ListFiles(ctx context.Context, repositoryID string) ([]domain.FileNode, error)
}

type TopicTextStore interface {
	ListByTopic(ctx context.Context, topicID int64) ([]domain.TopicText, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type BlobStore interface {
	Upload(ctx context.Context, key, localPath, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type LMS interface {
	RootFolder(ctx context.Context, courseID string) (*domain.Folder, error)
	ListFolders(ctx context.Context, folderID int64) ([]domain.Folder, error)
	CreateFolder(ctx context.Context, courseID, name string, parentID int64) (*domain.Folder, error)
	LockFolder(ctx context.Context, folderID int64) (*domain.Folder, error)
	CreateZipImport(ctx context.Context, courseID, fileURL string, folderID int64) (string, error)
	Progress(ctx context.Context, progressURL string) (*domain.Progress, error)
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.MigrationEvent) error
	Close() error
}
