package repo

import (
	"context"
	"database/sql"
	"time"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

// ListActiveSources возвращает активные источники персоны.
func (p *Postgres) ListActiveSources(ctx context.Context, personaID int64) ([]domain.Source, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, persona_id, kind, url, name, is_active, last_fetched_at, fetch_count, error_count, last_error, created_at
FROM sources
WHERE persona_id=$1 AND is_active
ORDER BY id
`, personaID)
	metrics.ObserveNetworkRequest("postgres", "sources_list_active", "sources", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var (
			s           domain.Source
			kind        string
			lastFetched sql.NullTime
			lastError   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.PersonaID, &kind, &s.URL, &s.Name, &s.IsActive, &lastFetched, &s.FetchCount, &s.ErrorCount, &lastError, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Kind = domain.SourceKind(kind)
		s.LastFetchedAt = timePtr(lastFetched)
		if lastError.Valid {
			s.LastError = lastError.String
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// MarkSourceFetched фиксирует успешный опрос источника.
func (p *Postgres) MarkSourceFetched(ctx context.Context, sourceID int64, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE sources SET last_fetched_at=$2, fetch_count=fetch_count+1, last_error=NULL WHERE id=$1
`, sourceID, at)
	metrics.ObserveNetworkRequest("postgres", "sources_mark_fetched", "sources", start, err)
	return err
}

// MarkSourceFailed фиксирует ошибку опроса источника.
func (p *Postgres) MarkSourceFailed(ctx context.Context, sourceID int64, at time.Time, reason string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE sources SET last_fetched_at=$2, error_count=error_count+1, last_error=$3 WHERE id=$1
`, sourceID, at, reason)
	metrics.ObserveNetworkRequest("postgres", "sources_mark_failed", "sources", start, err)
	return err
}
