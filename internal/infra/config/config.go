package config

import (
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv    string `envconfig:"APP_ENV" default:"dev"`
	DefaultTZ string `envconfig:"DEFAULT_TZ" default:"Europe/Paris"`
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBIT_URL"`

	Queues struct {
		Actions string `envconfig:"ACTIONS_QUEUE" default:"persona_actions"`
	} `envconfig:""`

	Scheduler struct {
		Tick     time.Duration `envconfig:"SCHEDULER_TICK" default:"1m"`
		Lookback time.Duration `envconfig:"SUMMARY_LOOKBACK" default:"24h"`
		// FetchLimit ограничивает число материалов с одного источника за вызов.
		FetchLimit int `envconfig:"FETCH_LIMIT" default:"20"`
	} `envconfig:""`

	Providers struct {
		File            string        `envconfig:"PROVIDERS_FILE"`
		Default         string        `envconfig:"DEFAULT_PROVIDER" default:"gemini"`
		Timeout         time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"60s"`
		MaxSummaryChars int           `envconfig:"SUMMARY_MAX_CHARS" default:"4500"`
	} `envconfig:""`

	Audio struct {
		APIKey  string        `envconfig:"ELEVEN_LABS_API_KEY"`
		BaseURL string        `envconfig:"ELEVEN_LABS_BASE_URL" default:"https://api.elevenlabs.io/v1"`
		Dir     string        `envconfig:"AUDIO_DIR" default:"static/audio"`
		Timeout time.Duration `envconfig:"AUDIO_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Telegram struct {
		APIID       int    `envconfig:"TG_API_ID"`
		APIHash     string `envconfig:"TG_API_HASH"`
		SessionName string `envconfig:"MTPROTO_SESSION_NAME" default:"default"`
		PollTimeout int    `envconfig:"TG_POLL_TIMEOUT" default:"30"`
	} `envconfig:""`

	Email struct {
		Timeout time.Duration `envconfig:"SMTP_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Admin struct {
		Token string `envconfig:"ADMIN_TOKEN"`
	} `envconfig:""`

	Inbound struct {
		VerifyToken     string `envconfig:"WHATSAPP_VERIFY_TOKEN"`
		ContextItems    int    `envconfig:"INBOUND_CONTEXT_ITEMS" default:"50"`
		FilterThreshold int    `envconfig:"INBOUND_FILTER_THRESHOLD" default:"20"`
	} `envconfig:""`
}

// Load загружает конфиг из .env (если есть) и окружения.
func Load() AppConfig {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: не удалось прочитать .env: %v", err)
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
