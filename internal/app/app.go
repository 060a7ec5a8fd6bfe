// Package app собирает зависимости процесса из конфигурации.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"newsroom/internal/adapters/admin"
	"newsroom/internal/adapters/audio"
	"newsroom/internal/adapters/bot"
	"newsroom/internal/adapters/delivery"
	"newsroom/internal/adapters/fetcher"
	"newsroom/internal/adapters/mtproto"
	"newsroom/internal/adapters/ranker"
	"newsroom/internal/adapters/repo"
	"newsroom/internal/adapters/summarizer"
	"newsroom/internal/adapters/whatsapp"
	"newsroom/internal/domain"
	"newsroom/internal/infra/cache"
	"newsroom/internal/infra/config"
	"newsroom/internal/infra/db"
	logx "newsroom/internal/infra/log"
	"newsroom/internal/infra/queue"
	"newsroom/internal/usecase/digest"
	"newsroom/internal/usecase/inbound"
	"newsroom/internal/usecase/ingest"
	"newsroom/internal/usecase/personas"
	"newsroom/internal/usecase/schedule"
)

// EngineLockKey ключ advisory lock, который держит единственный движок.
const EngineLockKey int64 = 0x6e657773

// rankFreshnessHours и maxSummaryItems параметры отбора материалов для сводки.
const (
	rankFreshnessHours = 24
	maxSummaryItems    = 60
)

// App граф зависимостей процесса.
type App struct {
	Config config.AppConfig
	Logger zerolog.Logger

	Pool  *pgxpool.Pool
	Repo  *repo.Postgres
	Redis *redis.Client

	Bots     *bot.Manager
	Personas *personas.Service
	Engine   *schedule.Engine
	WhatsApp *whatsapp.Handler
	Admin    *admin.API

	closers []func()
}

// New подключается к хранилищам и собирает сервисы. Вызывающий обязан вызвать Close.
func New(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	a.Repo = repo.NewPostgres(pool)

	var (
		marks   domain.ScheduleMarkRepo = a.Repo
		results domain.Cache            = cache.NewMemory()
		jobs    domain.ActionQueue
	)
	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = a.Redis.Close() })
		redisCache := cache.NewRedis(a.Redis)
		marks, results = redisCache, redisCache
		jobs = queue.NewRedisActionQueue(a.Redis, cfg.Queues.Actions)
	}
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitActionQueue(cfg.RabbitURL, cfg.Queues.Actions)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rabbit.Close() })
		jobs = rabbit
	}

	catalog, err := summarizer.LoadCatalog(cfg.Providers.File)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("providers: %w", err)
	}
	providers := summarizer.NewRegistry(catalog, summarizer.Options{
		Default:  cfg.Providers.Default,
		Timeout:  cfg.Providers.Timeout,
		MaxChars: cfg.Providers.MaxSummaryChars,
	}, logx.Component(logger, "summarizer"))

	clock := domain.SystemClock{}
	limit := cfg.Scheduler.FetchLimit

	var run mtproto.Runner
	if cfg.Telegram.APIID != 0 && cfg.Telegram.APIHash != "" {
		run = mtproto.ClientRunner(cfg.Telegram.APIID, cfg.Telegram.APIHash, mtproto.NewDBSession(a.Repo, cfg.Telegram.SessionName))
	} else {
		logger.Warn().Msg("app: TG_API_ID/TG_API_HASH не заданы, telegram-источники отключены")
	}
	fetchers := fetcher.NewRegistry(limit)
	fetchers.Register(domain.SourceRSS, fetcher.NewFeed(nil, limit))
	fetchers.Register(domain.SourceWebsite, fetcher.NewPage(nil, limit))
	fetchers.Register(domain.SourceTwitter, fetcher.NewTimeline(nil, nil, limit))
	fetchers.Register(domain.SourceYouTube, fetcher.NewVideo(nil, limit))
	fetchers.Register(domain.SourceTelegram, mtproto.NewChannelFetcher(run, limit, logx.Component(logger, "mtproto")))

	inboundSvc := inbound.NewService(a.Repo, a.Repo, a.Repo, a.Repo, providers, a.Repo, clock, inbound.Options{
		ContextItems:    cfg.Inbound.ContextItems,
		FilterThreshold: cfg.Inbound.FilterThreshold,
		FallbackTZ:      cfg.DefaultTZ,
	}, logx.Component(logger, "inbound"))

	a.Bots = bot.NewManager(bot.APIFactory, bot.NewHandler(inboundSvc, logx.Component(logger, "bot")), a.Repo, a.Repo, cfg.Telegram.PollTimeout, logx.Component(logger, "bot"))

	whatsappSender := delivery.NewTwilioSender()
	dispatcher := delivery.NewDispatcher(a.Repo, a.Repo, a.Bots, delivery.NewSMTPSender(cfg.Email.Timeout), whatsappSender, clock, logx.Component(logger, "delivery"))

	digestSvc := digest.NewService(digest.Deps{
		Personas:   a.Repo,
		Content:    a.Repo,
		Summaries:  a.Repo,
		Providers:  providers,
		Synth:      audio.NewElevenLabs(cfg.Audio.APIKey, cfg.Audio.BaseURL, cfg.Audio.Timeout),
		Assets:     audio.NewFileStore(cfg.Audio.Dir),
		Dispatcher: dispatcher,
		Ranker:     ranker.NewSimple(rankFreshnessHours, maxSummaryItems),
		Events:     a.Repo,
		Clock:      clock,
	}, cfg.Scheduler.Lookback, logx.Component(logger, "digest"))

	ingestSvc := ingest.NewService(a.Repo, a.Repo, fetchers, providers, a.Repo, clock, logx.Component(logger, "ingest"))

	a.Personas = personas.NewService(personas.Deps{
		Personas: a.Repo,
		Fetcher:  ingestSvc,
		Digest:   digestSvc,
		Bots:     a.Bots,
		Queue:    jobs,
		Results:  results,
		Events:   a.Repo,
		Clock:    clock,
	}, cfg.DefaultTZ, logx.Component(logger, "personas"))

	a.Engine = schedule.NewEngine(a.Repo, marks, a.Personas, schedule.Options{
		Interval:   cfg.Scheduler.Tick,
		FallbackTZ: cfg.DefaultTZ,
		Clock:      clock,
	}, logx.Component(logger, "scheduler"))

	a.WhatsApp = whatsapp.NewHandler(inboundSvc, a.Repo, whatsappSender, cfg.Inbound.VerifyToken, logx.Component(logger, "whatsapp"))
	a.Admin = admin.NewAPI(a.Personas, a.Bots, cfg.Admin.Token, logx.Component(logger, "admin"))
	return a, nil
}

// AcquireEngineLock берёт межпроцессную блокировку движка.
func (a *App) AcquireEngineLock(ctx context.Context) (func(), error) {
	release, ok, err := a.Repo.TryAdvisoryLock(ctx, EngineLockKey)
	if err != nil {
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	if !ok {
		return nil, ErrEngineLocked
	}
	return release, nil
}

// ErrEngineLocked движок уже запущен другим процессом.
var ErrEngineLocked = errors.New("engine is already running in another process")

// Close освобождает ресурсы в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
