package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cms-engine/internal/ai"
	"github.com/cms-engine/internal/config"
	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/internal/settings"
	"github.com/cms-engine/internal/storage"
	"github.com/cms-engine/pkg/logger"
)

// ErrMessageTooLong is returned when the user message exceeds the
// configured length bound. The check runs before any API call.
var ErrMessageTooLong = errors.New("message exceeds maximum length")

// Completer generates a reply from a system prompt, history and message
type Completer interface {
	CompleteWithHistory(ctx context.Context, systemPrompt string, history []ai.Turn, userMessage string) (string, error)
}

// Searcher retrieves context chunks for a query. A nil Searcher disables
// retrieval augmentation.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]*models.ChunkMatch, error)
}

// PromptSource resolves an operator override for the system prompt. A
// nil source or an empty value keeps the built-in prompt.
type PromptSource interface {
	GetOrRefresh(ctx context.Context, key string) (string, error)
}

// Service is the stateless chat proxy: validate, retrieve context, call
// the generative API, log the exchange asynchronously.
type Service struct {
	completer  Completer
	searcher   Searcher
	repository storage.Repository
	prompts    PromptSource
	config     config.ChatConfig

	queue   chan *models.ChatMessage
	dropped int64
	mu      sync.Mutex
	done    chan struct{}
	once    sync.Once

	log *logger.Logger
}

// NewService creates a chat service and starts its background log worker
func NewService(completer Completer, searcher Searcher, repository storage.Repository, prompts PromptSource, cfg config.ChatConfig, log *logger.Logger) *Service {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 2000
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.LogQueueSize <= 0 {
		cfg.LogQueueSize = 256
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 5
	}

	s := &Service{
		completer:  completer,
		searcher:   searcher,
		repository: repository,
		prompts:    prompts,
		config:     cfg,
		queue:      make(chan *models.ChatMessage, cfg.LogQueueSize),
		done:       make(chan struct{}),
		log:        log.WithComponent("chat"),
	}
	go s.logWorker()
	return s
}

// Respond validates the message, assembles retrieval context and history,
// and returns the model's reply. The exchange is logged without blocking
// the response.
func (s *Service) Respond(ctx context.Context, sessionID, message string, history []ai.Turn) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("message is required")
	}
	if len([]rune(message)) > s.config.MaxMessageLength {
		return "", fmt.Errorf("%w (%d chars max)", ErrMessageTooLong, s.config.MaxMessageLength)
	}

	if len(history) > s.config.HistoryWindow {
		history = history[len(history)-s.config.HistoryWindow:]
	}

	systemPrompt := s.systemPrompt(ctx)
	if s.searcher != nil {
		if refs := s.retrieveContext(ctx, message); refs != "" {
			systemPrompt += "\n\nReference material:\n" + refs
		}
	}

	reply, err := s.completer.CompleteWithHistory(ctx, systemPrompt, history, message)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	s.enqueue(&models.ChatMessage{SessionID: sessionID, Role: "user", Content: message})
	s.enqueue(&models.ChatMessage{SessionID: sessionID, Role: "assistant", Content: reply})

	return reply, nil
}

// systemPrompt returns the operator-configured prompt when one is set,
// otherwise the built-in one. A failed lookup keeps the built-in prompt.
func (s *Service) systemPrompt(ctx context.Context) string {
	if s.prompts == nil {
		return ai.ChatSystemPrompt
	}
	value, err := s.prompts.GetOrRefresh(ctx, settings.KeyChatSystemPrompt)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read chat prompt override, using built-in")
		return ai.ChatSystemPrompt
	}
	if strings.TrimSpace(value) == "" {
		return ai.ChatSystemPrompt
	}
	return value
}

// retrieveContext gathers nearest chunks for the message. Retrieval
// failures degrade to an unaugmented answer, never a failed request.
func (s *Service) retrieveContext(ctx context.Context, message string) string {
	matches, err := s.searcher.Search(ctx, message, s.config.SearchLimit)
	if err != nil {
		s.log.Warn().Err(err).Msg("Context retrieval failed, answering without it")
		return ""
	}

	var b strings.Builder
	for _, m := range matches {
		b.WriteString("- ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// enqueue dispatches a message to the log worker without blocking; a full
// queue drops the message and counts the drop.
func (s *Service) enqueue(msg *models.ChatMessage) {
	select {
	case s.queue <- msg:
	default:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		s.log.Warn().Int64("dropped_total", dropped).Msg("Chat log queue full, dropping message")
	}
}

// logWorker drains the queue into the database
func (s *Service) logWorker() {
	for {
		select {
		case msg := <-s.queue:
			if err := s.repository.SaveChatMessage(context.Background(), msg); err != nil {
				s.log.Warn().Err(err).Msg("Failed to persist chat message")
			}
		case <-s.done:
			// Drain what is left before exiting
			for {
				select {
				case msg := <-s.queue:
					if err := s.repository.SaveChatMessage(context.Background(), msg); err != nil {
						s.log.Warn().Err(err).Msg("Failed to persist chat message")
					}
				default:
					return
				}
			}
		}
	}
}

// Close stops the log worker after draining pending messages
func (s *Service) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// DroppedLogs returns how many chat log messages were dropped on a full queue
func (s *Service) DroppedLogs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
