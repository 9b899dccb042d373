package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"isites_migrator/internal/domain"
)

type topicRow struct {
	ID     int64          `db:"topic_id"`
	SiteID int64          `db:"site_id"`
	Title  sql.NullString `db:"title"`
	ToolID sql.NullString `db:"tool_id"`
}

type TopicStore struct {
	db *sqlx.DB
}

func NewTopicStore(db *sqlx.DB) *TopicStore {
	return &TopicStore{db: db}
}

func (s *TopicStore) ListBySite(ctx context.Context, siteID int64) ([]domain.Topic, error) {
	query := `
		SELECT topic_id, site_id, title, tool_id
		FROM topic
		WHERE site_id = $1
		ORDER BY topic_id`

	var rows []topicRow
	if err := sqlx.SelectContext(ctx, Executor(ctx, s.db), &rows, query, siteID); err != nil {
		return nil, err
	}

	topics := make([]domain.Topic, 0, len(rows))
	for _, r := range rows {
		topics = append(topics, domain.Topic{
			ID:     r.ID,
			SiteID: r.SiteID,
			Title:  r.Title.String,
			ToolID: r.ToolID.String,
		})
	}
	return topics, nil
}
