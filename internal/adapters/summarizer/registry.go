package summarizer

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	openai "newsroom/internal/infra/openai"
)

// Registry закрытая таблица провайдеров, собранная при загрузке конфигурации.
type Registry struct {
	providers map[string]*LLM
	def       string
}

var _ domain.SummarizerRegistry = (*Registry)(nil)

// Options параметры сборки реестра.
type Options struct {
	Default  string
	Timeout  time.Duration
	MaxChars int
	// Getenv по умолчанию os.Getenv.
	Getenv func(string) string
}

// NewRegistry создаёт провайдеров из каталога. Ключ каждого читается из своей переменной окружения.
func NewRegistry(catalog Catalog, opts Options, logger zerolog.Logger) *Registry {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	r := &Registry{providers: make(map[string]*LLM, len(catalog.Providers)), def: catalog.Default}
	if _, ok := catalog.Providers[opts.Default]; ok {
		r.def = opts.Default
	}
	for name, spec := range catalog.Providers {
		client := openai.NewClient(openai.Options{
			Name:    name,
			APIKey:  getenv(spec.KeyEnv),
			BaseURL: spec.BaseURL,
			Timeout: opts.Timeout,
			Headers: spec.Headers,
		})
		r.providers[name] = NewLLM(name, client, spec.Model, opts.Timeout, opts.MaxChars, logger)
	}
	return r
}

// For реализует domain.SummarizerRegistry. Неизвестный или пустой провайдер заменяется провайдером по умолчанию.
func (r *Registry) For(provider, model string) domain.Summarizer {
	p, ok := r.providers[provider]
	if !ok {
		p = r.providers[r.def]
	}
	return p.WithModel(model)
}

// Default идентификатор провайдера по умолчанию.
func (r *Registry) Default() string { return r.def }
