package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

var contentColumns = []string{
	"id", "persona_id", "source_id", "title", "body", "url", "author",
	"published_at", "fetched_at", "origin", "keywords", "summary",
}

// ContentExists проверяет, сохранён ли уже материал с таким URL.
func (p *Postgres) ContentExists(ctx context.Context, personaID int64, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM content_items WHERE persona_id=$1 AND url=$2)`, personaID, url).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "content_items_exists", "content_items", start, err)
	return exists, err
}

// InsertContent сохраняет материал. Конфликт по (persona_id, url) даёт domain.ErrDuplicate.
func (p *Postgres) InsertContent(ctx context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if item.FetchedAt.IsZero() {
		item.FetchedAt = time.Now().UTC()
	}
	var sourceID sql.NullInt64
	if item.SourceID != nil {
		sourceID = sql.NullInt64{Int64: *item.SourceID, Valid: true}
	}
	var published sql.NullTime
	if item.PublishedAt != nil {
		published = sql.NullTime{Time: *item.PublishedAt, Valid: true}
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
INSERT INTO content_items (persona_id, source_id, title, body, url, author, published_at, fetched_at, origin, keywords, summary)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (persona_id, url) WHERE url <> '' DO NOTHING
RETURNING id
`, item.PersonaID, sourceID, item.Title, item.Body, item.URL, item.Author, published, item.FetchedAt, item.Origin,
		strings.Join(item.Keywords, ","), nullString(item.Summary))
	metrics.ObserveNetworkRequest("postgres", "content_items_insert", "content_items", start, err)
	if err != nil {
		return domain.ContentItem{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.ContentItem{}, err
		}
		return domain.ContentItem{}, domain.ErrDuplicate
	}
	if err := rows.Scan(&item.ID); err != nil {
		return domain.ContentItem{}, err
	}
	return item, rows.Err()
}

// ListContentSince возвращает материалы, полученные не раньше since.
func (p *Postgres) ListContentSince(ctx context.Context, personaID int64, since time.Time) ([]domain.ContentItem, error) {
	query := p.sb.Select(contentColumns...).From("content_items").
		Where(sq.Eq{"persona_id": personaID}).
		Where(sq.GtOrEq{"fetched_at": since}).
		OrderBy("fetched_at DESC", "id DESC")
	return p.queryContent(ctx, "content_items_since", query)
}

// ListRecentContent возвращает последние limit материалов.
func (p *Postgres) ListRecentContent(ctx context.Context, personaID int64, limit int) ([]domain.ContentItem, error) {
	query := p.sb.Select(contentColumns...).From("content_items").
		Where(sq.Eq{"persona_id": personaID}).
		OrderBy("fetched_at DESC", "id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	return p.queryContent(ctx, "content_items_recent", query)
}

// ListContentBetween возвращает материалы, полученные в [from, to).
func (p *Postgres) ListContentBetween(ctx context.Context, personaID int64, from, to time.Time, limit int) ([]domain.ContentItem, error) {
	query := p.sb.Select(contentColumns...).From("content_items").
		Where(sq.Eq{"persona_id": personaID}).
		Where(sq.GtOrEq{"fetched_at": from}).
		Where(sq.Lt{"fetched_at": to}).
		OrderBy("fetched_at DESC", "id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	return p.queryContent(ctx, "content_items_between", query)
}

func (p *Postgres) queryContent(ctx context.Context, op string, query sq.SelectBuilder) ([]domain.ContentItem, error) {
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, sqlText, args...)
	metrics.ObserveNetworkRequest("postgres", op, "content_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.ContentItem
	for rows.Next() {
		var (
			item      domain.ContentItem
			sourceID  sql.NullInt64
			published sql.NullTime
			keywords  string
			summary   sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.PersonaID, &sourceID, &item.Title, &item.Body, &item.URL, &item.Author,
			&published, &item.FetchedAt, &item.Origin, &keywords, &summary); err != nil {
			return nil, err
		}
		if sourceID.Valid {
			id := sourceID.Int64
			item.SourceID = &id
		}
		item.PublishedAt = timePtr(published)
		item.Keywords = splitKeywords(keywords)
		if summary.Valid {
			item.Summary = summary.String
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func splitKeywords(raw string) []string {
	var out []string
	for _, kw := range strings.Split(raw, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
