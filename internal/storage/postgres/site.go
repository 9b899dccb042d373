package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"isites_migrator/internal/domain"
)

const (
	officialMapType = "official"
	isiteSiteType   = "isite"
)

type SiteStore struct {
	db *sqlx.DB
}

func NewSiteStore(db *sqlx.DB) *SiteStore {
	return &SiteStore{db: db}
}

func (s *SiteStore) GetByKeyword(ctx context.Context, keyword string) (*domain.Site, error) {
	var site domain.Site
	query := `SELECT site_id, keyword FROM site WHERE keyword = $1`

	err := sqlx.GetContext(ctx, Executor(ctx, s.db), &site, query, keyword)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// ListKeywordsByTerm returns the keywords of the iSites officially mapped to
// course instances of a term.
func (s *SiteStore) ListKeywordsByTerm(ctx context.Context, termID int64) ([]string, error) {
	query := `
		SELECT cs.external_id
		FROM course_instance ci
		INNER JOIN site_map sm ON sm.course_instance_id = ci.course_instance_id
		INNER JOIN course_site cs ON cs.course_site_id = sm.course_site_id
		WHERE ci.term_id = $1
			AND sm.map_type_id = $2
			AND cs.site_type_id = $3
		ORDER BY cs.external_id`

	var keywords []string
	err := sqlx.SelectContext(ctx, Executor(ctx, s.db), &keywords, query, termID, officialMapType, isiteSiteType)
	return keywords, err
}
