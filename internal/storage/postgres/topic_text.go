package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"isites_migrator/internal/domain"
)

type TopicTextStore struct {
	db *sqlx.DB
}

func NewTopicTextStore(db *sqlx.DB) *TopicTextStore {
	return &TopicTextStore{db: db}
}

func (s *TopicTextStore) ListByTopic(ctx context.Context, topicID int64) ([]domain.TopicText, error) {
	query := `
		SELECT text_id, topic_id, name, COALESCE(source_text, '') AS source_text
		FROM topic_text
		WHERE topic_id = $1
		ORDER BY text_id`

	var rows []struct {
		ID         int64  `db:"text_id"`
		TopicID    int64  `db:"topic_id"`
		Name       string `db:"name"`
		SourceText string `db:"source_text"`
	}
	if err := sqlx.SelectContext(ctx, Executor(ctx, s.db), &rows, query, topicID); err != nil {
		return nil, err
	}

	texts := make([]domain.TopicText, 0, len(rows))
	for _, r := range rows {
		texts = append(texts, domain.TopicText{
			ID:         r.ID,
			TopicID:    r.TopicID,
			Name:       r.Name,
			SourceText: r.SourceText,
		})
	}
	return texts, nil
}
