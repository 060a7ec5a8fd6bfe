package mtproto

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

const historyLimit = 50

// HistoryAPI часть tg.Client, нужная для чтения публичных каналов.
type HistoryAPI interface {
	ContactsResolveUsername(ctx context.Context, request *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
}

// Runner открывает соединение и выполняет f с готовым API.
type Runner func(ctx context.Context, f func(ctx context.Context, api HistoryAPI) error) error

// ClientRunner возвращает Runner поверх gotd с сессией из storage.
func ClientRunner(apiID int, apiHash string, storage session.Storage) Runner {
	return func(ctx context.Context, f func(ctx context.Context, api HistoryAPI) error) error {
		client := telegram.NewClient(apiID, apiHash, telegram.Options{
			SessionStorage: storage,
			NoUpdates:      true,
		})
		return client.Run(ctx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("auth status: %w", err)
			}
			if !status.Authorized {
				return fmt.Errorf("mtproto session is not authorized: %w", domain.ErrNotConfigured)
			}
			return f(ctx, client.API())
		})
	}
}

// ChannelFetcher читает последние сообщения публичного канала. Обращения сериализуются.
type ChannelFetcher struct {
	mu     sync.Mutex
	run    Runner
	limit  int
	logger zerolog.Logger
}

var _ domain.Fetcher = (*ChannelFetcher)(nil)

// NewChannelFetcher создаёт загрузчик. run == nil означает, что MTProto не настроен.
func NewChannelFetcher(run Runner, limit int, logger zerolog.Logger) *ChannelFetcher {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	return &ChannelFetcher{run: run, limit: limit, logger: logger}
}

// Fetch реализует domain.Fetcher.
func (c *ChannelFetcher) Fetch(ctx context.Context, src domain.Source, _ *time.Time) ([]domain.ContentDraft, error) {
	if c.run == nil {
		return nil, fmt.Errorf("mtproto: %w", domain.ErrNotConfigured)
	}
	alias, err := ChannelAlias(src.URL)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var drafts []domain.ContentDraft
	start := time.Now()
	err = c.run(ctx, func(ctx context.Context, api HistoryAPI) error {
		peer, err := resolveChannel(ctx, api, alias)
		if err != nil {
			return err
		}
		history, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{Peer: peer, Limit: c.limit})
		if err != nil {
			return fmt.Errorf("get history %s: %w", alias, err)
		}
		drafts = messagesToDrafts(history, alias, src.Label())
		return nil
	})
	metrics.ObserveNetworkRequest("mtproto", "get_history", alias, start, err)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("channel", alias).Int("messages", len(drafts)).Msg("mtproto: история канала получена")
	return drafts, nil
}

func resolveChannel(ctx context.Context, api HistoryAPI, alias string) (*tg.InputPeerChannel, error) {
	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: alias})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", alias, err)
	}
	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
		}
	}
	return nil, fmt.Errorf("mtproto: %s is not a channel", alias)
}

func messagesToDrafts(history tg.MessagesMessagesClass, alias, origin string) []domain.ContentDraft {
	var messages []tg.MessageClass
	switch h := history.(type) {
	case *tg.MessagesChannelMessages:
		messages = h.Messages
	case *tg.MessagesMessages:
		messages = h.Messages
	case *tg.MessagesMessagesSlice:
		messages = h.Messages
	}

	drafts := make([]domain.ContentDraft, 0, len(messages))
	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		text := strings.TrimSpace(msg.Message)
		if text == "" {
			continue
		}
		published := time.Unix(int64(msg.Date), 0).UTC()
		drafts = append(drafts, domain.ContentDraft{
			Title:       messageTitle(text),
			Body:        text,
			URL:         fmt.Sprintf("https://t.me/%s/%d", alias, msg.ID),
			Author:      "@" + alias,
			PublishedAt: &published,
			Origin:      origin,
		})
	}
	return drafts
}

func messageTitle(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	runes := []rune(strings.TrimSpace(line))
	if len(runes) > 100 {
		return string(runes[:100]) + "…"
	}
	return string(runes)
}

// ChannelAlias извлекает имя канала из t.me-ссылки или @alias.
func ChannelAlias(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if strings.Contains(candidate, "t.me/") || strings.HasPrefix(candidate, "http") {
		if !strings.Contains(candidate, "://") {
			candidate = "https://" + candidate
		}
		u, err := url.Parse(candidate)
		if err != nil {
			return "", fmt.Errorf("mtproto: bad channel url %q: %w", raw, err)
		}
		candidate = strings.Trim(u.Path, "/")
		candidate = strings.TrimPrefix(candidate, "s/")
		if i := strings.Index(candidate, "/"); i >= 0 {
			candidate = candidate[:i]
		}
	}
	candidate = strings.TrimPrefix(candidate, "@")
	if candidate == "" || strings.ContainsAny(candidate, " +") {
		return "", fmt.Errorf("mtproto: channel alias not found in %q", raw)
	}
	return candidate, nil
}
