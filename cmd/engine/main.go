package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"newsroom/internal/app"
	"newsroom/internal/infra/config"
	"newsroom/internal/infra/db"
	httpinfra "newsroom/internal/infra/http"
	"newsroom/internal/infra/log"
	"newsroom/internal/infra/metrics"
	"newsroom/internal/usecase/personas"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine: не удалось собрать зависимости")
	}
	defer a.Close()

	if err := db.Migrate(ctx, a.Pool); err != nil {
		logger.Fatal().Err(err).Msg("engine: миграция не удалась")
	}

	release, err := a.AcquireEngineLock(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine: движок уже запущен или блокировка недоступна")
	}
	defer release()

	started, err := a.Bots.StartAll(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("engine: не удалось запустить ботов")
	}
	logger.Info().Int("bots", started).Msg("engine: боты запущены")

	go func() {
		if err := a.Engine.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("engine: планировщик остановлен с ошибкой")
		}
	}()
	go func() {
		if err := a.Personas.Worker(ctx); err != nil && !errors.Is(err, personas.ErrQueueDisabled) {
			logger.Error().Err(err).Msg("engine: воркер очереди остановлен с ошибкой")
		}
	}()

	server := httpinfra.NewServer(log.Component(logger, "http"))
	a.Admin.Routes(server.Router)
	a.WhatsApp.Routes(server.Router)
	go func() {
		if err := server.Start(cfg.HTTPAddr); err != nil {
			logger.Error().Err(err).Msg("engine: http сервер остановлен с ошибкой")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("engine: завершение работы")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("engine: http сервер не остановился корректно")
	}
	a.Bots.StopAll()
	a.Engine.Wait()
	a.WhatsApp.Wait()
}
