package domain

import "time"

// Voice описывает манеру письма персоны.
type Voice struct {
	Personality  string
	WritingStyle string
	Tone         string
	Language     string
	Spelling     string
}

// AudioSettings задаёт озвучку сводок.
type AudioSettings struct {
	Enabled bool
	VoiceID string
}

// Persona описывает ИИ-журналиста со своим расписанием, голосом и источниками.
type Persona struct {
	ID            int64
	Name          string
	Voice         Voice
	FetchTime     string
	SummaryTime   string
	SendTime      string
	Timezone      string
	Provider      string
	Model         string
	Audio         AudioSettings
	IsActive      bool
	CreatedAt     time.Time
	LastSummaryAt *time.Time
}

// SourceKind определяет тип источника.
type SourceKind string

const (
	SourceRSS      SourceKind = "rss"
	SourceWebsite  SourceKind = "website"
	SourceYouTube  SourceKind = "youtube"
	SourceTwitter  SourceKind = "twitter"
	SourceTelegram SourceKind = "telegram"
)

// Source описывает источник, который опрашивает персона.
type Source struct {
	ID            int64
	PersonaID     int64
	Kind          SourceKind
	URL           string
	Name          string
	IsActive      bool
	LastFetchedAt *time.Time
	FetchCount    int
	ErrorCount    int
	LastError     string
	CreatedAt     time.Time
}

// Label возвращает подпись источника для цитирования.
func (s Source) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.URL
}

// ContentDraft нормализованный материал, ещё не сохранённый в хранилище.
type ContentDraft struct {
	Title       string
	Body        string
	URL         string
	Author      string
	PublishedAt *time.Time
	Origin      string
}

// ContentItem сохранённый материал персоны.
type ContentItem struct {
	ID          int64
	PersonaID   int64
	SourceID    *int64
	Title       string
	Body        string
	URL         string
	Author      string
	PublishedAt *time.Time
	FetchedAt   time.Time
	Origin      string
	Keywords    []string
	Summary     string
}

// SubscriberChannel канал, через который подписчик общается с персоной.
type SubscriberChannel string

const (
	SubscriberTelegram SubscriberChannel = "telegram"
	SubscriberWhatsApp SubscriberChannel = "whatsapp"
)

// Subscriber подписчик персоны.
type Subscriber struct {
	ID                int64
	PersonaID         int64
	PlanID            *int64
	Channel           SubscriberChannel
	ExternalID        string
	Username          string
	FirstName         string
	LastName          string
	IsApproved        bool
	IsActive          bool
	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
	MessagesCount     int
	MessagesToday     int
	LastMessageAt     *time.Time
	CreatedAt         time.Time
}

// SubscriptionPlan тариф, общий для всех персон.
type SubscriptionPlan struct {
	ID                  int64
	Name                string
	DurationDays        int
	IsTrial             bool
	CanReceiveSummaries bool
	CanAskQuestions     bool
	CanReceiveAudio     bool
	MaxMessagesPerDay   int
	IsActive            bool
}

// DeliverySummary сводка дня персоны вместе со статусом отправки.
type DeliverySummary struct {
	ID         int64
	PersonaID  int64
	Text       string
	AudioPath  string
	ItemsCount int
	SentCount  int
	CreatedAt  time.Time
	SentAt     *time.Time
}

// ChannelKind тип канала доставки.
type ChannelKind string

const (
	ChannelTelegram ChannelKind = "telegram"
	ChannelEmail    ChannelKind = "email"
	ChannelWhatsApp ChannelKind = "whatsapp"
)

// TelegramChannelConfig настройки бота персоны.
type TelegramChannelConfig struct {
	Token string `json:"token"`
}

// EmailChannelConfig настройки SMTP.
type EmailChannelConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	From      string `json:"from"`
	Recipient string `json:"recipient"`
}

// WhatsAppChannelConfig настройки Twilio.
type WhatsAppChannelConfig struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	From       string `json:"from"`
	Recipient  string `json:"recipient"`
}

// DeliveryChannel канал доставки персоны. Заполнено ровно одно поле настроек согласно Kind.
type DeliveryChannel struct {
	ID        int64
	PersonaID int64
	Kind      ChannelKind
	IsActive  bool
	Telegram  *TelegramChannelConfig
	Email     *EmailChannelConfig
	WhatsApp  *WhatsAppChannelConfig
}
