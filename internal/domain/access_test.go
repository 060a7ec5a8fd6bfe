package domain

import (
	"testing"
	"time"
)

func TestSubscriberHasAccess(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		sub  Subscriber
		want bool
	}{
		{name: "approved and active", sub: Subscriber{IsApproved: true, IsActive: true}, want: true},
		{name: "approved but inactive", sub: Subscriber{IsApproved: true}, want: false},
		{name: "active but not approved", sub: Subscriber{IsActive: true}, want: false},
		{name: "trial in future", sub: Subscriber{SubscriptionEnd: &future}, want: true},
		{name: "expired and not approved", sub: Subscriber{SubscriptionEnd: &past}, want: false},
		{name: "expired but approved", sub: Subscriber{IsApproved: true, IsActive: true, SubscriptionEnd: &past}, want: true},
		{name: "ends exactly now", sub: Subscriber{SubscriptionEnd: &now}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.HasAccess(now); got != tt.want {
				t.Fatalf("HasAccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlanAllowsMessage(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		used  int
		want  bool
	}{
		{name: "unlimited", limit: -1, used: 1000, want: true},
		{name: "within limit", limit: 5, used: 5, want: true},
		{name: "over limit", limit: 5, used: 6, want: false},
		{name: "zero limit", limit: 0, used: 1, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := SubscriptionPlan{MaxMessagesPerDay: tt.limit}
			if got := plan.AllowsMessage(tt.used); got != tt.want {
				t.Fatalf("AllowsMessage(%d) with limit %d = %v, want %v", tt.used, tt.limit, got, tt.want)
			}
		})
	}
}

func TestTrialWindowDefaultsToSevenDays(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	start, end := TrialWindow(now, SubscriptionPlan{})
	if !start.Equal(now) {
		t.Fatalf("start = %v, want %v", start, now)
	}
	if want := now.AddDate(0, 0, 7); !end.Equal(want) {
		t.Fatalf("end = %v, want %v", end, want)
	}
}
