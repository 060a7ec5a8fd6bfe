package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

// ListDeliveryChannels возвращает все каналы доставки персоны.
func (p *Postgres) ListDeliveryChannels(ctx context.Context, personaID int64) ([]domain.DeliveryChannel, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, persona_id, kind, config, is_active FROM delivery_channels WHERE persona_id=$1 ORDER BY id
`, personaID)
	metrics.ObserveNetworkRequest("postgres", "delivery_channels_list", "delivery_channels", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []domain.DeliveryChannel
	for rows.Next() {
		var (
			ch   domain.DeliveryChannel
			kind string
			raw  []byte
		)
		if err := rows.Scan(&ch.ID, &ch.PersonaID, &kind, &raw, &ch.IsActive); err != nil {
			return nil, err
		}
		ch.Kind = domain.ChannelKind(kind)
		if err := decodeChannelConfig(&ch, raw); err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch.ID, err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func decodeChannelConfig(ch *domain.DeliveryChannel, raw []byte) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch ch.Kind {
	case domain.ChannelTelegram:
		ch.Telegram = &domain.TelegramChannelConfig{}
		return json.Unmarshal(raw, ch.Telegram)
	case domain.ChannelEmail:
		ch.Email = &domain.EmailChannelConfig{}
		return json.Unmarshal(raw, ch.Email)
	case domain.ChannelWhatsApp:
		ch.WhatsApp = &domain.WhatsAppChannelConfig{}
		return json.Unmarshal(raw, ch.WhatsApp)
	}
	return fmt.Errorf("unknown channel kind %q", ch.Kind)
}
