package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/models"
)

// DefaultFallbackTitle is shown when the cursor does not resolve to a domain
const DefaultFallbackTitle = "Questionnaire"

// Store is the persisted questionnaire state machine. One Store owns the
// questionnaire-storage document; construct it once and inject it.
type Store struct {
	mu            sync.RWMutex
	catalog       *Catalog
	state         models.QuestionnaireState
	kvStorage     interfaces.KeyValueStorage
	eventService  interfaces.EventService // optional
	fallbackTitle string
	now           func() time.Time
	logger        arbor.ILogger
}

var _ interfaces.QuestionnaireService = (*Store)(nil)

// NewStore creates a Store in the Idle state. Call Load to restore persisted progress.
func NewStore(catalog *Catalog, kvStorage interfaces.KeyValueStorage, eventService interfaces.EventService, fallbackTitle string, logger arbor.ILogger) *Store {
	if fallbackTitle == "" {
		fallbackTitle = DefaultFallbackTitle
	}
	return &Store{
		catalog:       catalog,
		state:         models.NewQuestionnaireState(),
		kvStorage:     kvStorage,
		eventService:  eventService,
		fallbackTitle: fallbackTitle,
		now:           time.Now,
		logger:        logger,
	}
}

// Load restores the persisted document. A missing document leaves the store Idle.
// A cursor that no longer fits the catalog is reset to (0,0).
func (s *Store) Load(ctx context.Context) error {
	value, err := s.kvStorage.Get(ctx, models.QuestionnaireStorageKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		s.logger.Debug().Msg("No stored questionnaire progress, starting idle")
		return nil
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read questionnaire progress")
		return fmt.Errorf("failed to read questionnaire progress: %w", err)
	}

	state, err := models.DecodeQuestionnaireState([]byte(value))
	if err != nil {
		s.logger.Error().Err(err).Msg("Stored questionnaire progress is unreadable, starting idle")
		return err
	}

	if s.catalog.Question(state.CurrentDomainIndex, state.CurrentQuestionIndex) == nil &&
		(state.CurrentDomainIndex != 0 || state.CurrentQuestionIndex != 0) {
		s.logger.Warn().
			Int("domain_index", state.CurrentDomainIndex).
			Int("question_index", state.CurrentQuestionIndex).
			Msg("Stored cursor is outside the catalog, resetting to first question")
		state.ProgressCursor = models.ProgressCursor{}
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.logger.Debug().
		Str("status", string(state.Status)).
		Int("responses", len(state.Responses)).
		Msg("Questionnaire progress loaded")
	return nil
}

// Start enters Active at the first question
func (s *Store) Start(ctx context.Context) error {
	return s.mutate(ctx, "start", func(st *models.QuestionnaireState) bool {
		st.Status = models.StatusActive
		st.ProgressCursor = models.ProgressCursor{}
		return true
	})
}

// Pause enters Paused. A completed questionnaire stays completed.
func (s *Store) Pause(ctx context.Context) error {
	return s.mutate(ctx, "pause", func(st *models.QuestionnaireState) bool {
		if st.Status.IsCompleted() {
			return false
		}
		st.Status = models.StatusPaused
		return true
	})
}

// Resume re-enters Active without moving the cursor. A completed questionnaire stays completed.
func (s *Store) Resume(ctx context.Context) error {
	return s.mutate(ctx, "resume", func(st *models.QuestionnaireState) bool {
		if st.Status.IsCompleted() {
			return false
		}
		st.Status = models.StatusActive
		return true
	})
}

// Complete enters Completed
func (s *Store) Complete(ctx context.Context) error {
	return s.mutate(ctx, "complete", func(st *models.QuestionnaireState) bool {
		st.Status = models.StatusCompleted
		return true
	})
}

// Reset returns to Idle with an empty log
func (s *Store) Reset(ctx context.Context) error {
	return s.mutate(ctx, "reset", func(st *models.QuestionnaireState) bool {
		*st = models.NewQuestionnaireState()
		return true
	})
}

// MoveToNextQuestion advances within the domain, then to the next domain, and
// completes after the last question of the last domain
func (s *Store) MoveToNextQuestion(ctx context.Context) error {
	return s.mutate(ctx, "next", func(st *models.QuestionnaireState) bool {
		domain := s.catalog.Domain(st.CurrentDomainIndex)
		if domain == nil {
			return false
		}

		switch {
		case st.CurrentQuestionIndex < len(domain.Questions)-1:
			st.CurrentQuestionIndex++
		case st.CurrentDomainIndex < len(s.catalog.Domains)-1:
			st.CurrentDomainIndex++
			st.CurrentQuestionIndex = 0
		default:
			st.Status = models.StatusCompleted
		}
		return true
	})
}

// GoToDomain jumps to the first question of domain i. Out of range is ignored.
func (s *Store) GoToDomain(ctx context.Context, domainIndex int) error {
	return s.mutate(ctx, "goto-domain", func(st *models.QuestionnaireState) bool {
		if s.catalog.Domain(domainIndex) == nil {
			return false
		}
		st.ProgressCursor = models.ProgressCursor{CurrentDomainIndex: domainIndex}
		return true
	})
}

// GoToQuestion jumps to (i, j). Out of range is ignored.
func (s *Store) GoToQuestion(ctx context.Context, domainIndex, questionIndex int) error {
	return s.mutate(ctx, "goto-question", func(st *models.QuestionnaireState) bool {
		if s.catalog.Question(domainIndex, questionIndex) == nil {
			return false
		}
		st.ProgressCursor = models.ProgressCursor{
			CurrentDomainIndex:   domainIndex,
			CurrentQuestionIndex: questionIndex,
		}
		return true
	})
}

// AddResponse stamps and appends a response. Repeated answers accumulate.
func (s *Store) AddResponse(ctx context.Context, response models.Response) error {
	return s.mutate(ctx, "response", func(st *models.QuestionnaireState) bool {
		response.Timestamp = s.now()
		st.Responses = append(st.Responses, response)
		return true
	})
}

// AddSensitiveDisclosure stamps and appends a disclosure
func (s *Store) AddSensitiveDisclosure(ctx context.Context, disclosure models.SensitiveDisclosure) error {
	return s.mutate(ctx, "disclosure", func(st *models.QuestionnaireState) bool {
		disclosure.Timestamp = s.now()
		st.SensitiveDisclosures = append(st.SensitiveDisclosures, disclosure)
		return true
	})
}

// SetLastQuestion overwrites the resume snapshot; nil clears it
func (s *Store) SetLastQuestion(ctx context.Context, last *models.LastQuestion) error {
	return s.mutate(ctx, "last-question", func(st *models.QuestionnaireState) bool {
		if last == nil {
			st.LastQuestion = nil
		} else {
			lq := *last
			st.LastQuestion = &lq
		}
		return true
	})
}

// CurrentQuestion returns the question under the cursor, nil when the cursor is invalid
func (s *Store) CurrentQuestion() *models.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := s.catalog.Question(s.state.CurrentDomainIndex, s.state.CurrentQuestionIndex)
	if q == nil {
		return nil
	}
	out := *q
	return &out
}

// CurrentDomainTitle returns the current domain's description or the fallback title
func (s *Store) CurrentDomainTitle() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d := s.catalog.Domain(s.state.CurrentDomainIndex); d != nil {
		return d.Description
	}
	return s.fallbackTitle
}

// ProgressPercentage is the response count over the total question count, clamped to 100.
// Duplicate answers count, so it can run ahead of the cursor.
func (s *Store) ProgressPercentage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return percentage(len(s.state.Responses), s.catalog.TotalQuestions())
}

// NavigationPercentage is the share of questions before the cursor; 100 once completed
func (s *Store) NavigationPercentage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.Status.IsCompleted() {
		return 100
	}

	passed := 0
	for i := 0; i < s.state.CurrentDomainIndex && i < len(s.catalog.Domains); i++ {
		passed += len(s.catalog.Domains[i].Questions)
	}
	if s.catalog.Domain(s.state.CurrentDomainIndex) != nil {
		passed += s.state.CurrentQuestionIndex
	}
	return percentage(passed, s.catalog.TotalQuestions())
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() models.QuestionnaireState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Domains returns the catalog outline
func (s *Store) Domains() []models.Domain {
	return s.catalog.Domains
}

func percentage(n, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(math.Min(100, float64(n)/float64(total)*100)))
}

// mutate applies fn under the write lock and persists the result before releasing it,
// so back-to-back mutations cannot interleave their writes. fn returns false for a no-op.
// A failed write is returned but the in-memory change is kept.
func (s *Store) mutate(ctx context.Context, action string, fn func(*models.QuestionnaireState) bool) error {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		s.logger.Debug().Str("action", action).Msg("Questionnaire action ignored")
		return nil
	}
	snapshot := s.state.Clone()
	err := s.persist(ctx, snapshot)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("Failed to persist questionnaire progress")
		return err
	}

	s.publish(ctx, action, snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context, state models.QuestionnaireState) error {
	data, err := models.EncodeQuestionnaireState(state)
	if err != nil {
		return fmt.Errorf("failed to encode questionnaire progress: %w", err)
	}
	if err := s.kvStorage.Set(ctx, models.QuestionnaireStorageKey, string(data), "Questionnaire progress"); err != nil {
		return fmt.Errorf("failed to store questionnaire progress: %w", err)
	}
	return nil
}

func (s *Store) publish(ctx context.Context, action string, state models.QuestionnaireState) {
	if s.eventService == nil {
		return
	}

	event := interfaces.Event{
		Type: interfaces.EventQuestionnaireUpdated,
		Payload: map[string]interface{}{
			"action":                 action,
			"status":                 string(state.Status),
			"current_domain_index":   state.CurrentDomainIndex,
			"current_question_index": state.CurrentQuestionIndex,
			"responses":              len(state.Responses),
			"progress":               percentage(len(state.Responses), s.catalog.TotalQuestions()),
		},
	}
	if err := s.eventService.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish questionnaire update")
	}
}
