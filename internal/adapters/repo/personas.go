package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

const personaColumns = `id, name, personality, writing_style, tone, language, spelling,
fetch_time, summary_time, send_time, timezone, provider, model,
audio_enabled, audio_voice_id, is_active, created_at, last_summary_at`

func scanPersona(row pgx.Row) (domain.Persona, error) {
	var (
		p           domain.Persona
		lastSummary sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &p.Voice.Personality, &p.Voice.WritingStyle, &p.Voice.Tone, &p.Voice.Language, &p.Voice.Spelling,
		&p.FetchTime, &p.SummaryTime, &p.SendTime, &p.Timezone, &p.Provider, &p.Model,
		&p.Audio.Enabled, &p.Audio.VoiceID, &p.IsActive, &p.CreatedAt, &lastSummary)
	if err != nil {
		return domain.Persona{}, err
	}
	p.LastSummaryAt = timePtr(lastSummary)
	return p, nil
}

// ListActivePersonas возвращает активных персон.
func (p *Postgres) ListActivePersonas(ctx context.Context) ([]domain.Persona, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+personaColumns+` FROM personas WHERE is_active ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "personas_list_active", "personas", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var personas []domain.Persona
	for rows.Next() {
		persona, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		personas = append(personas, persona)
	}
	return personas, rows.Err()
}

// GetPersona возвращает персону по id.
func (p *Postgres) GetPersona(ctx context.Context, id int64) (domain.Persona, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	persona, err := scanPersona(p.pool.QueryRow(ctx, `SELECT `+personaColumns+` FROM personas WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "personas_get", "personas", start, err)
	if err != nil {
		return domain.Persona{}, notFound(err)
	}
	return persona, nil
}

// TouchLastSummary обновляет время последней сводки.
func (p *Postgres) TouchLastSummary(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE personas SET last_summary_at=$2 WHERE id=$1`, id, at)
	metrics.ObserveNetworkRequest("postgres", "personas_touch_summary", "personas", start, err)
	return err
}

// DeletePersona удаляет персону и принадлежащие ей записи в одной транзакции.
func (p *Postgres) DeletePersona(ctx context.Context, id int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "personas", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	steps := []struct {
		table string
		query string
	}{
		{"content_items", `DELETE FROM content_items WHERE persona_id=$1`},
		{"delivery_summaries", `DELETE FROM delivery_summaries WHERE persona_id=$1`},
		{"subscribers", `DELETE FROM subscribers WHERE persona_id=$1`},
		{"delivery_channels", `DELETE FROM delivery_channels WHERE persona_id=$1`},
		{"sources", `DELETE FROM sources WHERE persona_id=$1`},
		{"schedule_marks", `DELETE FROM schedule_marks WHERE persona_id=$1`},
	}
	for _, step := range steps {
		start = time.Now()
		_, err = tx.Exec(ctx, step.query, id)
		metrics.ObserveNetworkRequest("postgres", step.table+"_delete", step.table, start, err)
		if err != nil {
			return fmt.Errorf("delete %s: %w", step.table, err)
		}
	}

	start = time.Now()
	res, err := tx.Exec(ctx, `DELETE FROM personas WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "personas_delete", "personas", start, err)
	if err != nil {
		return fmt.Errorf("delete persona: %w", err)
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "personas", start, err)
	return err
}
