package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CourseSelector identifies one course to migrate. CanvasCourseID is empty for exports.
type CourseSelector struct {
	Keyword        string
	CanvasCourseID string
}

type Site struct {
	ID      int64  `db:"site_id"`
	Keyword string `db:"keyword"`
}

type Topic struct {
	ID     int64
	SiteID int64
	Title  string
	ToolID string
}

type StorageNode struct {
	ID               int64
	PhysicalLocation string
}

type FileRepository struct {
	ID          string
	StorageNode *StorageNode
}

type FileNode struct {
	ID               int64
	RepositoryID     string
	StorageNode      *StorageNode
	PhysicalLocation string
	FilePath         string
	FileName         string
	Encoding         string // "gzip" when stored compressed
}

type TopicText struct {
	ID         int64
	TopicID    int64
	Name       string
	SourceText string
}

// CoursePlan is everything the walker found for one course.
type CoursePlan struct {
	Keyword string
	Units   []UnitPlan
}

type UnitPlan struct {
	Topic      Topic
	Dir        string
	Repository FileRepository
	Files      []FileNode
	Texts      []TopicText
}

// RepositoryID returns the file repository id of a topic.
func RepositoryID(topicID int64) string {
	return fmt.Sprintf("icb.topic%d.files", topicID)
}

// ArchiveName returns the archive file name and object key of a course.
func ArchiveName(keyword string) string {
	return keyword + ".zip"
}

// SourcePath resolves where the bytes of a file node live. The node's own
// storage node wins over the repository's.
func (f FileNode) SourcePath(repo FileRepository) (string, error) {
	node := f.StorageNode
	if node == nil {
		node = repo.StorageNode
	}
	if node == nil || node.PhysicalLocation == "" {
		return "", fmt.Errorf("file node %d: %w", f.ID, ErrNoStorageNode)
	}
	return filepath.Join(node.PhysicalLocation, strings.TrimLeft(f.PhysicalLocation, "/")), nil
}

func (f FileNode) Gzipped() bool {
	return strings.EqualFold(f.Encoding, "gzip")
}
