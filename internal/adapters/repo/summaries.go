package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

const summaryColumns = `id, persona_id, text, audio_path, items_count, sent_count, created_at, sent_at`

func scanSummary(row pgx.Row) (domain.DeliverySummary, error) {
	var (
		s      domain.DeliverySummary
		audio  sql.NullString
		sentAt sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.PersonaID, &s.Text, &audio, &s.ItemsCount, &s.SentCount, &s.CreatedAt, &sentAt); err != nil {
		return domain.DeliverySummary{}, err
	}
	if audio.Valid {
		s.AudioPath = audio.String
	}
	s.SentAt = timePtr(sentAt)
	return s, nil
}

// CreateSummary сохраняет новую сводку.
func (p *Postgres) CreateSummary(ctx context.Context, summary domain.DeliverySummary) (domain.DeliverySummary, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO delivery_summaries (persona_id, text, audio_path, items_count, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`, summary.PersonaID, summary.Text, nullString(summary.AudioPath), summary.ItemsCount, summary.CreatedAt).Scan(&summary.ID)
	metrics.ObserveNetworkRequest("postgres", "delivery_summaries_insert", "delivery_summaries", start, err)
	if err != nil {
		return domain.DeliverySummary{}, err
	}
	return summary, nil
}

// FindUnsentSummary ищет последнюю неотправленную сводку, созданную в [from, to).
func (p *Postgres) FindUnsentSummary(ctx context.Context, personaID int64, from, to time.Time) (domain.DeliverySummary, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	s, err := scanSummary(p.pool.QueryRow(ctx, `
SELECT `+summaryColumns+`
FROM delivery_summaries
WHERE persona_id=$1 AND sent_at IS NULL AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC
LIMIT 1
`, personaID, from, to))
	metrics.ObserveNetworkRequest("postgres", "delivery_summaries_find_unsent", "delivery_summaries", start, err)
	if err != nil {
		return domain.DeliverySummary{}, notFound(err)
	}
	return s, nil
}

// MarkSummarySent фиксирует отправку сводки.
func (p *Postgres) MarkSummarySent(ctx context.Context, id int64, sentCount int, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE delivery_summaries SET sent_at=$2, sent_count=$3 WHERE id=$1`, id, at, sentCount)
	metrics.ObserveNetworkRequest("postgres", "delivery_summaries_mark_sent", "delivery_summaries", start, err)
	return err
}

// LatestSummary возвращает последнюю сводку персоны.
func (p *Postgres) LatestSummary(ctx context.Context, personaID int64) (domain.DeliverySummary, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	s, err := scanSummary(p.pool.QueryRow(ctx, `
SELECT `+summaryColumns+` FROM delivery_summaries WHERE persona_id=$1 ORDER BY created_at DESC LIMIT 1
`, personaID))
	metrics.ObserveNetworkRequest("postgres", "delivery_summaries_latest", "delivery_summaries", start, err)
	if err != nil {
		return domain.DeliverySummary{}, notFound(err)
	}
	return s, nil
}

// AttachSummaryAudio сохраняет путь к аудио сводки.
func (p *Postgres) AttachSummaryAudio(ctx context.Context, id int64, path string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE delivery_summaries SET audio_path=$2 WHERE id=$1`, id, path)
	metrics.ObserveNetworkRequest("postgres", "delivery_summaries_attach_audio", "delivery_summaries", start, err)
	return err
}
