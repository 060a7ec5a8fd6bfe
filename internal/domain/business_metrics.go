package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event        string
	PersonaID    *int64
	SubscriberID *int64
	Metadata     map[string]any
	OccurredAt   time.Time
}

const (
	// BusinessMetricEventSubscriberRegistered фиксирует первый контакт подписчика.
	BusinessMetricEventSubscriberRegistered = "subscriber_registered"
	// BusinessMetricEventQuestionAnswered фиксирует ответ на вопрос подписчика.
	BusinessMetricEventQuestionAnswered = "question_answered"
	// BusinessMetricEventItemsIngested фиксирует сохранение новых материалов.
	BusinessMetricEventItemsIngested = "items_ingested"
	// BusinessMetricEventSummaryCreated фиксирует создание сводки.
	BusinessMetricEventSummaryCreated = "summary_created"
	// BusinessMetricEventSummarySent фиксирует рассылку сводки.
	BusinessMetricEventSummarySent = "summary_sent"
	// BusinessMetricEventActionRequested фиксирует ручной запуск действия.
	BusinessMetricEventActionRequested = "action_requested"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
