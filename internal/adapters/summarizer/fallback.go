package summarizer

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"newsroom/internal/domain"
)

const (
	fallbackItems    = 10
	noNewsText       = "Aucune nouvelle actualité à résumer aujourd'hui."
	unavailableText  = "Le service IA n'est pas configuré. Contactez l'administrateur."
	answerFailedText = "Désolé, je n'ai pas pu générer de réponse pour le moment. Réessayez plus tard."
)

var tagRe = regexp.MustCompile(`<[^>]+>`)

// TitleBullets детерминированная сводка: заголовки первых материалов списком.
func TitleBullets(items []domain.ContentItem) string {
	if len(items) == 0 {
		return noNewsText
	}
	var b strings.Builder
	b.WriteString("Résumé des actualités:\n")
	for i, item := range items {
		if i == fallbackItems {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = "Article"
		}
		b.WriteString("\n• ")
		b.WriteString(title)
	}
	return b.String()
}

// cleanText убирает HTML-теги и сущности из ответа модели.
func cleanText(text string) string {
	text = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n").Replace(text)
	text = tagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		out = append(out, strings.Join(strings.Fields(line), " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func splitKeywords(raw string) []string {
	out := []string{}
	for _, kw := range strings.Split(raw, ",") {
		kw = strings.Trim(strings.TrimSpace(kw), ".\"'")
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
