package bot

import (
	"fmt"
	"os"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"newsroom/internal/adapters/telegram"
	"newsroom/internal/infra/metrics"
)

const audioTitle = "Résumé audio"

func sendText(client Client, chatID int64, text string) error {
	for _, part := range telegram.SplitMessage(text) {
		start := time.Now()
		_, err := client.Send(tgbotapi.NewMessage(chatID, part))
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			return fmt.Errorf("bot: отправка в чат %d: %w", chatID, err)
		}
	}
	return nil
}

// sendAudio пропускает отсутствующий файл: текст сводки уже доставлен.
func sendAudio(client Client, chatID int64, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	audio := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(path))
	audio.Title = audioTitle
	start := time.Now()
	_, err := client.Send(audio)
	metrics.ObserveNetworkRequest("telegram_bot", "send_audio", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		return fmt.Errorf("bot: аудио в чат %d: %w", chatID, err)
	}
	return nil
}
