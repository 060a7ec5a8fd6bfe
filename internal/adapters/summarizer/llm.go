package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	openai "newsroom/internal/infra/openai"
)

const (
	summaryItemRunes = 1000
	answerItems      = 10
	answerItemRunes  = 500
	keywordRunes     = 2000
	defaultLanguage  = "fr"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	Configured() bool
}

// LLM провайдер суммаризации поверх Chat Completions.
type LLM struct {
	name     string
	client   chatClient
	model    string
	timeout  time.Duration
	maxChars int
	logger   zerolog.Logger
}

var _ domain.Summarizer = (*LLM)(nil)

// NewLLM создаёт провайдера.
func NewLLM(name string, client chatClient, model string, timeout time.Duration, maxChars int, logger zerolog.Logger) *LLM {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxChars <= 0 {
		maxChars = 4500
	}
	return &LLM{name: name, client: client, model: model, timeout: timeout, maxChars: maxChars, logger: logger}
}

// WithModel возвращает копию провайдера с другой моделью. Пустое имя и auto сохраняют модель по умолчанию.
func (l *LLM) WithModel(model string) *LLM {
	model = strings.TrimSpace(model)
	if model == "" || model == "auto" || model == l.model {
		return l
	}
	clone := *l
	clone.model = model
	return &clone
}

// Name идентификатор провайдера.
func (l *LLM) Name() string { return l.name }

// Model модель, которой отправляются запросы.
func (l *LLM) Model() string { return l.model }

// Available реализует domain.Summarizer.
func (l *LLM) Available() bool {
	return l.client != nil && l.client.Configured()
}

// Summarize реализует domain.Summarizer.
func (l *LLM) Summarize(ctx context.Context, items []domain.ContentItem, voice domain.Voice) string {
	if len(items) == 0 {
		return noNewsText
	}
	if !l.Available() {
		l.logger.Warn().Str("provider", l.name).Msg("summarizer: провайдер не настроен, используется запасная сводка")
		return TitleBullets(items)
	}

	var articles strings.Builder
	for i, item := range items {
		if i > 0 {
			articles.WriteString("\n\n")
		}
		fmt.Fprintf(&articles, "Source: %s\nTitre: %s\nContenu: %s",
			originOf(item), titleOf(item), clipRunes(item.Body, summaryItemRunes))
	}

	prompt := fmt.Sprintf(`Génère un résumé d'actualités détaillé et engageant en %s à partir des articles suivants.
Le résumé doit:
- Être structuré avec les points clés (5-15 points)
- Mentionner la source directement après chaque point clé entre crochets [Nom Source], sans aucun chiffre
- Utiliser UNIQUEMENT du texte brut, sans balises HTML ni Markdown
- Ne pas dépasser %d caractères
- Aller directement au contenu, sans introduction ni notes

Articles à résumer:
%s

Résumé:`, languageOf(voice), l.maxChars, articles.String())

	text, err := l.complete(ctx, voicePrompt(voice), prompt, 0.4, 2048)
	if err != nil {
		l.logger.Error().Err(err).Str("provider", l.name).Msg("summarizer: ошибка генерации сводки")
		return TitleBullets(items)
	}
	text = cleanText(text)
	if text == "" {
		return TitleBullets(items)
	}
	return truncate(text, l.maxChars)
}

// Answer реализует domain.Summarizer.
func (l *LLM) Answer(ctx context.Context, question string, items []domain.ContentItem, voice domain.Voice) string {
	if !l.Available() {
		return unavailableText
	}

	var corpus strings.Builder
	for i, item := range items {
		if i == answerItems {
			break
		}
		if i > 0 {
			corpus.WriteString("\n\n")
		}
		fmt.Fprintf(&corpus, "[%s] %s: %s", originOf(item), titleOf(item), clipRunes(item.Body, answerItemRunes))
	}

	prompt := fmt.Sprintf(`Réponds à la question de l'utilisateur en te basant sur ta base de données d'articles.
Mentionne toujours la source de l'information.
Réponds en %s, en texte brut.

Base de données d'articles récents:
%s

Question de l'utilisateur: %s

Réponse:`, languageOf(voice), corpus.String(), strings.TrimSpace(question))

	text, err := l.complete(ctx, voicePrompt(voice), prompt, 0.5, 1024)
	if err != nil {
		l.logger.Error().Err(err).Str("provider", l.name).Msg("summarizer: ошибка ответа на вопрос")
		return answerFailedText
	}
	if text = cleanText(text); text == "" {
		return answerFailedText
	}
	return text
}

// ExtractKeywords реализует domain.Summarizer.
func (l *LLM) ExtractKeywords(ctx context.Context, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" || !l.Available() {
		return []string{}
	}
	prompt := fmt.Sprintf(`Extrais les mots-clés principaux du texte suivant.
Retourne uniquement une liste de mots-clés séparés par des virgules.

Texte: %s

Mots-clés:`, clipRunes(text, keywordRunes))

	out, err := l.complete(ctx, "", prompt, 0, 200)
	if err != nil {
		l.logger.Warn().Err(err).Str("provider", l.name).Msg("summarizer: не удалось извлечь ключевые слова")
		return []string{}
	}
	return splitKeywords(out)
}

func (l *LLM) complete(ctx context.Context, system, prompt string, temperature float64, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	messages := make([]openai.ChatMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatMessage{Role: openai.RoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatMessage{Role: openai.RoleUser, Content: prompt})

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: пустой ответ", l.name)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func voicePrompt(v domain.Voice) string {
	var b strings.Builder
	b.WriteString("Tu es un journaliste IA avec les caractéristiques suivantes:")
	if v.Personality != "" {
		b.WriteString("\n- Personnalité: " + v.Personality)
	}
	if v.WritingStyle != "" {
		b.WriteString("\n- Style d'écriture: " + v.WritingStyle)
	}
	if v.Tone != "" {
		b.WriteString("\n- Ton: " + v.Tone)
	}
	if v.Spelling != "" {
		b.WriteString("\n- Orthographe: " + v.Spelling)
	}
	return b.String()
}

func languageOf(v domain.Voice) string {
	if strings.TrimSpace(v.Language) == "" {
		return defaultLanguage
	}
	return v.Language
}

func originOf(item domain.ContentItem) string {
	if item.Origin != "" {
		return item.Origin
	}
	return "Inconnue"
}

func titleOf(item domain.ContentItem) string {
	if item.Title != "" {
		return item.Title
	}
	return "Sans titre"
}
