package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"isites_migrator/internal/domain"
)

type repositoryRow struct {
	ID              string         `db:"file_repository_id"`
	StorageNodeID   sql.NullInt64  `db:"storage_node_id"`
	StorageLocation sql.NullString `db:"storage_location"`
}

type fileNodeRow struct {
	ID               int64          `db:"file_node_id"`
	RepositoryID     string         `db:"file_repository_id"`
	StorageNodeID    sql.NullInt64  `db:"storage_node_id"`
	StorageLocation  sql.NullString `db:"storage_location"`
	PhysicalLocation sql.NullString `db:"physical_location"`
	FilePath         string         `db:"file_path"`
	FileName         string         `db:"file_name"`
	Encoding         sql.NullString `db:"encoding"`
}

type FileStore struct {
	db *sqlx.DB
}

func NewFileStore(db *sqlx.DB) *FileStore {
	return &FileStore{db: db}
}

func (s *FileStore) GetRepository(ctx context.Context, id string) (*domain.FileRepository, error) {
	query := `
		SELECT fr.file_repository_id, fr.storage_node_id, sn.physical_location AS storage_location
		FROM file_repository fr
		LEFT JOIN storage_node sn ON sn.storage_node_id = fr.storage_node_id
		WHERE fr.file_repository_id = $1`

	var row repositoryRow
	err := sqlx.GetContext(ctx, Executor(ctx, s.db), &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &domain.FileRepository{
		ID:          row.ID,
		StorageNode: storageNode(row.StorageNodeID, row.StorageLocation),
	}, nil
}

// ListFiles returns the plain files (not folders) of a repository.
func (s *FileStore) ListFiles(ctx context.Context, repositoryID string) ([]domain.FileNode, error) {
	query := `
		SELECT fn.file_node_id, fn.file_repository_id, fn.storage_node_id,
			sn.physical_location AS storage_location,
			fn.physical_location, fn.file_path, fn.file_name, fn.encoding
		FROM file_node fn
		LEFT JOIN storage_node sn ON sn.storage_node_id = fn.storage_node_id
		WHERE fn.file_repository_id = $1 AND fn.file_type = 'file'
		ORDER BY fn.file_node_id`

	var rows []fileNodeRow
	if err := sqlx.SelectContext(ctx, Executor(ctx, s.db), &rows, query, repositoryID); err != nil {
		return nil, err
	}

	nodes := make([]domain.FileNode, 0, len(rows))
	for _, r := range rows {
		nodes = append(nodes, domain.FileNode{
			ID:               r.ID,
			RepositoryID:     r.RepositoryID,
			StorageNode:      storageNode(r.StorageNodeID, r.StorageLocation),
			PhysicalLocation: r.PhysicalLocation.String,
			FilePath:         r.FilePath,
			FileName:         r.FileName,
			Encoding:         r.Encoding.String,
		})
	}
	return nodes, nil
}

func storageNode(id sql.NullInt64, location sql.NullString) *domain.StorageNode {
	if !id.Valid || !location.Valid {
		return nil
	}
	return &domain.StorageNode{ID: id.Int64, PhysicalLocation: location.String}
}
