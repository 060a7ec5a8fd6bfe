package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SchedulerTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_ticks_total",
		Help: "Количество тиков планировщика",
	})
	PersonaActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "persona_actions_total",
		Help: "Запуски действий персон",
	}, []string{"action", "status"})
	PersonaActionSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "persona_action_seconds",
		Help:    "Длительность действий персон",
		Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"action"})
	IngestItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_items_total",
		Help: "Материалы на этапе сохранения",
	}, []string{"status"})
	SourceFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "source_fetch_total",
		Help: "Опросы источников",
	}, []string{"kind", "status"})
	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_total",
		Help: "Доставки по каналам",
	}, []string{"channel", "status"})
	BotListeners = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_listeners_running",
		Help: "Число запущенных слушателей ботов",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SchedulerTicks,
		PersonaActions,
		PersonaActionSeconds,
		IngestItems,
		SourceFetches,
		Deliveries,
		BotListeners,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	st := status(err)
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, st).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, st).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObservePersonaAction фиксирует итог действия персоны.
func ObservePersonaAction(action string, start time.Time, err error) {
	PersonaActions.WithLabelValues(action, status(err)).Inc()
	PersonaActionSeconds.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

// ObserveSourceFetch фиксирует опрос источника.
func ObserveSourceFetch(kind string, err error) {
	SourceFetches.WithLabelValues(kind, status(err)).Inc()
}

// ObserveDelivery фиксирует доставку в канал.
func ObserveDelivery(channel string, ok bool) {
	st := "success"
	if !ok {
		st = "error"
	}
	Deliveries.WithLabelValues(channel, st).Inc()
}
