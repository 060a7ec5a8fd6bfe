package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

const subscriberColumns = `id, persona_id, plan_id, channel, external_id, username, first_name, last_name,
is_approved, is_active, subscription_start, subscription_end, messages_count, messages_today, last_message_at, created_at`

func scanSubscriber(row pgx.Row) (domain.Subscriber, error) {
	var (
		s                         domain.Subscriber
		planID                    sql.NullInt64
		channel                   string
		username, first, last     sql.NullString
		subStart, subEnd, lastMsg sql.NullTime
	)
	err := row.Scan(&s.ID, &s.PersonaID, &planID, &channel, &s.ExternalID, &username, &first, &last,
		&s.IsApproved, &s.IsActive, &subStart, &subEnd, &s.MessagesCount, &s.MessagesToday, &lastMsg, &s.CreatedAt)
	if err != nil {
		return domain.Subscriber{}, err
	}
	if planID.Valid {
		id := planID.Int64
		s.PlanID = &id
	}
	s.Channel = domain.SubscriberChannel(channel)
	s.Username = username.String
	s.FirstName = first.String
	s.LastName = last.String
	s.SubscriptionStart = timePtr(subStart)
	s.SubscriptionEnd = timePtr(subEnd)
	s.LastMessageAt = timePtr(lastMsg)
	return s, nil
}

// ListSubscribers возвращает подписчиков персоны в канале.
func (p *Postgres) ListSubscribers(ctx context.Context, personaID int64, channel domain.SubscriberChannel) ([]domain.Subscriber, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE persona_id=$1 AND channel=$2 ORDER BY id`, personaID, string(channel))
	metrics.ObserveNetworkRequest("postgres", "subscribers_list", "subscribers", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// GetSubscriber возвращает подписчика по идентификатору в канале.
func (p *Postgres) GetSubscriber(ctx context.Context, personaID int64, channel domain.SubscriberChannel, externalID string) (domain.Subscriber, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	s, err := scanSubscriber(p.pool.QueryRow(ctx, `
SELECT `+subscriberColumns+` FROM subscribers WHERE persona_id=$1 AND channel=$2 AND external_id=$3
`, personaID, string(channel), externalID))
	metrics.ObserveNetworkRequest("postgres", "subscribers_get", "subscribers", start, err)
	if err != nil {
		return domain.Subscriber{}, notFound(err)
	}
	return s, nil
}

// CreateSubscriber создаёт подписчика. Если он уже есть, возвращает существующую запись.
func (p *Postgres) CreateSubscriber(ctx context.Context, sub domain.Subscriber) (domain.Subscriber, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var planID sql.NullInt64
	if sub.PlanID != nil {
		planID = sql.NullInt64{Int64: *sub.PlanID, Valid: true}
	}
	var subStart, subEnd sql.NullTime
	if sub.SubscriptionStart != nil {
		subStart = sql.NullTime{Time: *sub.SubscriptionStart, Valid: true}
	}
	if sub.SubscriptionEnd != nil {
		subEnd = sql.NullTime{Time: *sub.SubscriptionEnd, Valid: true}
	}

	start := time.Now()
	created, err := scanSubscriber(p.pool.QueryRow(ctx, `
INSERT INTO subscribers (persona_id, plan_id, channel, external_id, username, first_name, last_name,
                         is_approved, is_active, subscription_start, subscription_end)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (persona_id, channel, external_id) DO NOTHING
RETURNING `+subscriberColumns,
		sub.PersonaID, planID, string(sub.Channel), sub.ExternalID, nullString(sub.Username), nullString(sub.FirstName), nullString(sub.LastName),
		sub.IsApproved, sub.IsActive, subStart, subEnd))
	metrics.ObserveNetworkRequest("postgres", "subscribers_insert", "subscribers", start, err)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscriber{}, false, err
	}
	existing, err := p.GetSubscriber(ctx, sub.PersonaID, sub.Channel, sub.ExternalID)
	return existing, false, err
}

// RecordInboundMessage увеличивает счётчики сообщений. Дневной счётчик сбрасывается,
// если прошлое сообщение пришло раньше dayStart, начала локального дня персоны.
func (p *Postgres) RecordInboundMessage(ctx context.Context, subscriberID int64, at, dayStart time.Time) (domain.Subscriber, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	s, err := scanSubscriber(p.pool.QueryRow(ctx, `
UPDATE subscribers
SET messages_count = messages_count + 1,
    messages_today = CASE
        WHEN last_message_at IS NOT NULL AND last_message_at >= $3 THEN messages_today + 1
        ELSE 1
    END,
    last_message_at = $2
WHERE id = $1
RETURNING `+subscriberColumns, subscriberID, at, dayStart))
	metrics.ObserveNetworkRequest("postgres", "subscribers_record_message", "subscribers", start, err)
	if err != nil {
		return domain.Subscriber{}, notFound(err)
	}
	return s, nil
}

const planColumns = `id, name, duration_days, is_trial, can_receive_summaries, can_ask_questions, can_receive_audio, max_messages_per_day, is_active`

func scanPlan(row pgx.Row) (domain.SubscriptionPlan, error) {
	var plan domain.SubscriptionPlan
	err := row.Scan(&plan.ID, &plan.Name, &plan.DurationDays, &plan.IsTrial, &plan.CanReceiveSummaries,
		&plan.CanAskQuestions, &plan.CanReceiveAudio, &plan.MaxMessagesPerDay, &plan.IsActive)
	return plan, err
}

// GetPlan возвращает тариф по id.
func (p *Postgres) GetPlan(ctx context.Context, id int64) (domain.SubscriptionPlan, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	plan, err := scanPlan(p.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "subscription_plans_get", "subscription_plans", start, err)
	if err != nil {
		return domain.SubscriptionPlan{}, notFound(err)
	}
	return plan, nil
}

// TrialPlan возвращает активный пробный тариф.
func (p *Postgres) TrialPlan(ctx context.Context) (domain.SubscriptionPlan, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	plan, err := scanPlan(p.pool.QueryRow(ctx, `
SELECT `+planColumns+` FROM subscription_plans WHERE is_trial AND is_active ORDER BY id LIMIT 1
`))
	metrics.ObserveNetworkRequest("postgres", "subscription_plans_trial", "subscription_plans", start, err)
	if err != nil {
		return domain.SubscriptionPlan{}, notFound(err)
	}
	return plan, nil
}
