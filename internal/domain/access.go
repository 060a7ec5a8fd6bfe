package domain

import "time"

// TrialDays длительность пробного доступа при первом контакте.
const TrialDays = 7

// HasAccess проверяет, действует ли доступ подписчика на момент now.
// Доступ есть у одобренного и активного подписчика, либо пока не истекла подписка.
func (s Subscriber) HasAccess(now time.Time) bool {
	if s.IsApproved && s.IsActive {
		return true
	}
	return s.SubscriptionEnd != nil && s.SubscriptionEnd.After(now)
}

// DefaultPlan описывает возможности подписчика без привязанного тарифа.
func DefaultPlan() SubscriptionPlan {
	return SubscriptionPlan{
		Name:                "default",
		CanReceiveSummaries: true,
		CanAskQuestions:     true,
		CanReceiveAudio:     true,
		MaxMessagesPerDay:   -1,
		IsActive:            true,
	}
}

// AllowsMessage сообщает, укладывается ли очередное сообщение в дневной лимит.
// usedToday уже учитывает текущее сообщение.
func (p SubscriptionPlan) AllowsMessage(usedToday int) bool {
	if p.MaxMessagesPerDay < 0 {
		return true
	}
	return usedToday <= p.MaxMessagesPerDay
}

// TrialWindow возвращает начало и конец пробного периода.
func TrialWindow(now time.Time, plan SubscriptionPlan) (time.Time, time.Time) {
	days := plan.DurationDays
	if days <= 0 {
		days = TrialDays
	}
	return now, now.Add(time.Duration(days) * 24 * time.Hour)
}
