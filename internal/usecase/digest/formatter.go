package digest

import (
	"fmt"
	"strings"
	"time"
)

// FormatSummary оформляет сводку: приветствие с датой, текст и подпись персоны.
func FormatSummary(personaName string, local time.Time, body string) string {
	var b strings.Builder
	b.WriteString("Bonjour,\n\n")
	b.WriteString("Résumé du " + local.Format("02/01/2006") + "\n\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n\n---\n")
	b.WriteString(strings.TrimSpace(personaName))
	return b.String()
}

// AudioFileName имя файла озвучки.
func AudioFileName(personaID int64, at time.Time) string {
	return fmt.Sprintf("summary_%d_%s.mp3", personaID, at.UTC().Format("20060102_150405"))
}

// ArticleList список заголовков для команды /articles.
func ArticleList(day string, titles []string) string {
	if len(titles) == 0 {
		return fmt.Sprintf("Aucun article pour le %s.", day)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Articles du %s:\n", day)
	for i, title := range titles {
		fmt.Fprintf(&b, "\n%d. %s", i+1, strings.TrimSpace(title))
	}
	return b.String()
}
