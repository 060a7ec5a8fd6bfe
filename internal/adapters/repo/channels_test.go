package repo

import (
	"testing"

	"newsroom/internal/domain"
)

func TestDecodeChannelConfig(t *testing.T) {
	tests := []struct {
		name  string
		kind  domain.ChannelKind
		raw   string
		check func(t *testing.T, ch domain.DeliveryChannel)
	}{
		{
			name: "telegram",
			kind: domain.ChannelTelegram,
			raw:  `{"token":"123:abc"}`,
			check: func(t *testing.T, ch domain.DeliveryChannel) {
				if ch.Telegram == nil || ch.Telegram.Token != "123:abc" {
					t.Fatalf("unexpected telegram config: %+v", ch.Telegram)
				}
			},
		},
		{
			name: "email",
			kind: domain.ChannelEmail,
			raw:  `{"host":"smtp.example.com","port":2525,"recipient":"a@example.com"}`,
			check: func(t *testing.T, ch domain.DeliveryChannel) {
				if ch.Email == nil || ch.Email.Host != "smtp.example.com" || ch.Email.Port != 2525 {
					t.Fatalf("unexpected email config: %+v", ch.Email)
				}
			},
		},
		{
			name: "whatsapp with empty config",
			kind: domain.ChannelWhatsApp,
			raw:  ``,
			check: func(t *testing.T, ch domain.DeliveryChannel) {
				if ch.WhatsApp == nil || ch.WhatsApp.AccountSID != "" {
					t.Fatalf("unexpected whatsapp config: %+v", ch.WhatsApp)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := domain.DeliveryChannel{Kind: tt.kind}
			if err := decodeChannelConfig(&ch, []byte(tt.raw)); err != nil {
				t.Fatalf("decodeChannelConfig: %v", err)
			}
			tt.check(t, ch)
		})
	}
}

func TestDecodeChannelConfigUnknownKind(t *testing.T) {
	ch := domain.DeliveryChannel{Kind: "pigeon"}
	if err := decodeChannelConfig(&ch, []byte(`{}`)); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestSplitKeywords(t *testing.T) {
	got := splitKeywords(" ai, ,climate ,  energy ")
	want := []string{"ai", "climate", "energy"}
	if len(got) != len(want) {
		t.Fatalf("splitKeywords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitKeywords = %v, want %v", got, want)
		}
	}
}
