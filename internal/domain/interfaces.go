package domain

import (
	"context"
	"time"
)

// Clock источник текущего момента.
type Clock interface {
	Now() time.Time
}

// SystemClock возвращает реальное время в UTC.
type SystemClock struct{}

// Now реализует Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// PersonaRepo управляет персонами.
type PersonaRepo interface {
	ListActivePersonas(ctx context.Context) ([]Persona, error)
	GetPersona(ctx context.Context, id int64) (Persona, error)
	TouchLastSummary(ctx context.Context, id int64, at time.Time) error
	// DeletePersona удаляет персону и всё, чем она владеет, в одной транзакции.
	DeletePersona(ctx context.Context, id int64) error
}

// SourceRepo управляет источниками и их учётом.
type SourceRepo interface {
	ListActiveSources(ctx context.Context, personaID int64) ([]Source, error)
	MarkSourceFetched(ctx context.Context, sourceID int64, at time.Time) error
	MarkSourceFailed(ctx context.Context, sourceID int64, at time.Time, reason string) error
}

// ContentRepo хранит материалы персон.
type ContentRepo interface {
	ContentExists(ctx context.Context, personaID int64, url string) (bool, error)
	// InsertContent возвращает ErrDuplicate, если URL уже занят.
	InsertContent(ctx context.Context, item ContentItem) (ContentItem, error)
	ListContentSince(ctx context.Context, personaID int64, since time.Time) ([]ContentItem, error)
	ListRecentContent(ctx context.Context, personaID int64, limit int) ([]ContentItem, error)
	ListContentBetween(ctx context.Context, personaID int64, from, to time.Time, limit int) ([]ContentItem, error)
}

// SummaryRepo хранит сводки.
type SummaryRepo interface {
	CreateSummary(ctx context.Context, summary DeliverySummary) (DeliverySummary, error)
	// FindUnsentSummary ищет неотправленную сводку, созданную в [from, to). ErrNotFound, если её нет.
	FindUnsentSummary(ctx context.Context, personaID int64, from, to time.Time) (DeliverySummary, error)
	MarkSummarySent(ctx context.Context, id int64, sentCount int, at time.Time) error
	LatestSummary(ctx context.Context, personaID int64) (DeliverySummary, error)
	AttachSummaryAudio(ctx context.Context, id int64, path string) error
}

// SubscriberRepo управляет подписчиками и тарифами.
type SubscriberRepo interface {
	ListSubscribers(ctx context.Context, personaID int64, channel SubscriberChannel) ([]Subscriber, error)
	GetSubscriber(ctx context.Context, personaID int64, channel SubscriberChannel, externalID string) (Subscriber, error)
	// CreateSubscriber возвращает существующую запись и false, если подписчик уже есть.
	CreateSubscriber(ctx context.Context, sub Subscriber) (Subscriber, bool, error)
	// RecordInboundMessage увеличивает счётчики сообщений и возвращает обновлённого подписчика.
	// Дневной счётчик продолжается, только если прошлое сообщение пришло не раньше dayStart.
	RecordInboundMessage(ctx context.Context, subscriberID int64, at, dayStart time.Time) (Subscriber, error)
	GetPlan(ctx context.Context, id int64) (SubscriptionPlan, error)
	TrialPlan(ctx context.Context) (SubscriptionPlan, error)
}

// DeliveryChannelRepo отдаёт каналы доставки персоны.
type DeliveryChannelRepo interface {
	ListDeliveryChannels(ctx context.Context, personaID int64) ([]DeliveryChannel, error)
}

// Fetcher загружает свежие материалы источника. since == nil означает полное окно.
type Fetcher interface {
	Fetch(ctx context.Context, src Source, since *time.Time) ([]ContentDraft, error)
}

// Summarizer общий контракт провайдеров суммаризации. Методы не возвращают ошибок:
// при недоступности провайдера используется запасной ответ.
type Summarizer interface {
	Summarize(ctx context.Context, items []ContentItem, voice Voice) string
	Answer(ctx context.Context, question string, items []ContentItem, voice Voice) string
	ExtractKeywords(ctx context.Context, text string) []string
	Available() bool
}

// SummarizerRegistry выбирает провайдера по идентификатору.
type SummarizerRegistry interface {
	For(provider, model string) Summarizer
}

// Synthesizer озвучивает текст.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// AssetStore сохраняет аудиофайлы и возвращает путь к ним.
type AssetStore interface {
	Persist(ctx context.Context, data []byte, name string) (string, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// SessionStore хранит MTProto-сессии.
type SessionStore interface {
	LoadMTProtoSession(ctx context.Context, name string) ([]byte, error)
	StoreMTProtoSession(ctx context.Context, name string, data []byte) error
}

// DeliveryReport итог рассылки по каналам.
type DeliveryReport struct {
	Channels map[ChannelKind]bool
	// Delivered сумма успешных доставок: по одной на подписчика чата и на каждый успешный канал email/whatsapp.
	Delivered int
}

// Dispatcher рассылает готовую сводку по активным каналам персоны.
type Dispatcher interface {
	Deliver(ctx context.Context, persona Persona, text, audioPath string) DeliveryReport
}
