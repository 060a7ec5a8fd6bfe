package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

// updateTimeout ограничивает обработку одного апдейта, включая ответ провайдера.
const updateTimeout = 2 * time.Minute

// State состояние слушателя бота персоны.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Client часть Bot API, которой пользуется менеджер.
type Client interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Factory создаёт клиента по токену бота.
type Factory func(token string) (Client, error)

// APIFactory создаёт настоящего клиента Bot API.
func APIFactory(token string) (Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return api, nil
}

// UpdateHandler обрабатывает апдейт, полученный слушателем персоны.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, personaID int64, client Client, upd tgbotapi.Update)
}

type listener struct {
	token         string
	state         State
	client        Client
	cancel        context.CancelFunc
	done          chan struct{}
	stopRequested bool
}

// Manager владеет реестром слушателей: персона -> живой бот. Реестр меняет только он.
type Manager struct {
	mu        sync.Mutex
	listeners map[int64]*listener

	factory     Factory
	handler     UpdateHandler
	personas    domain.PersonaRepo
	channels    domain.DeliveryChannelRepo
	pollTimeout int
	logger      zerolog.Logger
}

// NewManager создаёт менеджер. pollTimeout задаётся в секундах long polling.
func NewManager(factory Factory, handler UpdateHandler, personas domain.PersonaRepo, channels domain.DeliveryChannelRepo, pollTimeout int, logger zerolog.Logger) *Manager {
	if factory == nil {
		factory = APIFactory
	}
	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	return &Manager{
		listeners:   make(map[int64]*listener),
		factory:     factory,
		handler:     handler,
		personas:    personas,
		channels:    channels,
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

// Start запускает слушателя персоны. Для уже запущенного слушателя ничего не делает.
// Контекст вызова нужен только для логов: слушатель живёт до Stop.
func (m *Manager) Start(ctx context.Context, personaID int64, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("bot: токен персоны %d: %w", personaID, domain.ErrNotConfigured)
	}

	m.mu.Lock()
	for {
		l, ok := m.listeners[personaID]
		if !ok {
			break
		}
		if l.state == Starting || l.state == Running {
			m.mu.Unlock()
			return nil
		}
		done := l.done
		m.mu.Unlock()
		<-done
		m.mu.Lock()
	}
	l := &listener{token: token, state: Starting, done: make(chan struct{})}
	m.listeners[personaID] = l
	m.mu.Unlock()

	client, err := m.factory(token)

	m.mu.Lock()
	if err != nil || l.stopRequested {
		if m.listeners[personaID] == l {
			delete(m.listeners, personaID)
		}
		l.state = Stopped
		close(l.done)
		m.mu.Unlock()
		if err != nil {
			return fmt.Errorf("bot: запуск персоны %d: %w", personaID, err)
		}
		return nil
	}
	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.client = client
	l.cancel = cancel
	l.state = Running
	m.mu.Unlock()

	metrics.BotListeners.Inc()
	m.logger.Info().Int64("persona", personaID).Msg("bot: слушатель запущен")
	go m.listen(listenCtx, personaID, l)
	return nil
}

func (m *Manager) listen(ctx context.Context, personaID int64, l *listener) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Int64("persona", personaID).Interface("panic", r).Msg("bot: слушатель упал")
		}
		m.mu.Lock()
		if m.listeners[personaID] == l {
			delete(m.listeners, personaID)
		}
		l.state = Stopped
		l.cancel()
		m.mu.Unlock()
		metrics.BotListeners.Dec()
		close(l.done)
		m.logger.Info().Int64("persona", personaID).Msg("bot: слушатель остановлен")
	}()

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = m.pollTimeout
	updates := l.client.GetUpdatesChan(cfg)
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			m.dispatch(ctx, personaID, l.client, upd)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, personaID int64, client Client, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Int64("persona", personaID).Int("update", upd.UpdateID).Interface("panic", r).Msg("bot: паника при обработке апдейта")
		}
	}()
	if m.handler == nil {
		return
	}
	// Stop завершает только цикл чтения, начатый ответ дорабатывает
	handleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), updateTimeout)
	defer cancel()
	m.handler.HandleUpdate(handleCtx, personaID, client, upd)
}

// Stop останавливает слушателя и ждёт, пока он доработает текущий апдейт.
func (m *Manager) Stop(personaID int64) {
	m.mu.Lock()
	l, ok := m.listeners[personaID]
	if !ok {
		m.mu.Unlock()
		return
	}
	switch l.state {
	case Starting:
		l.stopRequested = true
		m.mu.Unlock()
		return
	case Running:
		l.state = Stopping
		l.cancel()
		l.client.StopReceivingUpdates()
	}
	done := l.done
	m.mu.Unlock()
	<-done
}

// StopAll останавливает всех слушателей.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			m.Stop(id)
		}(id)
	}
	wg.Wait()
}

// StartAll запускает ботов всех активных персон с активным telegram-каналом.
// Ошибка одной персоны не мешает остальным.
func (m *Manager) StartAll(ctx context.Context) (int, error) {
	personas, err := m.personas.ListActivePersonas(ctx)
	if err != nil {
		return 0, fmt.Errorf("bot: список персон: %w", err)
	}
	started := 0
	for _, p := range personas {
		token, err := m.telegramToken(ctx, p.ID)
		if err != nil {
			m.logger.Error().Err(err).Int64("persona", p.ID).Msg("bot: не удалось прочитать каналы")
			continue
		}
		if token == "" {
			continue
		}
		if err := m.Start(ctx, p.ID, token); err != nil {
			m.logger.Error().Err(err).Int64("persona", p.ID).Msg("bot: не удалось запустить бота")
			continue
		}
		started++
	}
	return started, nil
}

// Sync приводит слушателя в соответствие с персоной после правки в админке.
func (m *Manager) Sync(ctx context.Context, personaID int64) (State, error) {
	p, err := m.personas.GetPersona(ctx, personaID)
	if errors.Is(err, domain.ErrNotFound) {
		m.Stop(personaID)
		return Stopped, nil
	}
	if err != nil {
		return m.State(personaID), fmt.Errorf("bot: персона %d: %w", personaID, err)
	}
	token, err := m.telegramToken(ctx, personaID)
	if err != nil {
		return m.State(personaID), fmt.Errorf("bot: каналы персоны %d: %w", personaID, err)
	}
	if !p.IsActive || token == "" {
		m.Stop(personaID)
		return Stopped, nil
	}

	m.mu.Lock()
	l, ok := m.listeners[personaID]
	changed := ok && l.token != token
	m.mu.Unlock()
	if changed {
		m.logger.Info().Int64("persona", personaID).Msg("bot: токен изменился, перезапуск")
		m.Stop(personaID)
	}
	if err := m.Start(ctx, personaID, token); err != nil {
		return m.State(personaID), err
	}
	return m.State(personaID), nil
}

// State возвращает состояние слушателя персоны.
func (m *Manager) State(personaID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.listeners[personaID]; ok {
		return l.state
	}
	return Stopped
}

// Push отправляет текст и аудио в чат через живого бота персоны.
func (m *Manager) Push(ctx context.Context, personaID, chatID int64, text, audioPath string) error {
	m.mu.Lock()
	l, ok := m.listeners[personaID]
	var client Client
	if ok && l.state == Running {
		client = l.client
	}
	m.mu.Unlock()
	if client == nil {
		return domain.ErrBotNotRunning
	}
	if err := sendText(client, chatID, text); err != nil {
		return err
	}
	if audioPath == "" {
		return nil
	}
	return sendAudio(client, chatID, audioPath)
}

func (m *Manager) telegramToken(ctx context.Context, personaID int64) (string, error) {
	channels, err := m.channels.ListDeliveryChannels(ctx, personaID)
	if err != nil {
		return "", err
	}
	for _, ch := range channels {
		if ch.Kind == domain.ChannelTelegram && ch.IsActive && ch.Telegram != nil {
			if token := strings.TrimSpace(ch.Telegram.Token); token != "" {
				return token, nil
			}
		}
	}
	return "", nil
}
