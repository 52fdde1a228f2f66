package interfaces

import (
	"context"

	"github.com/ternarybob/bloom/internal/models"
)

// QuestionnaireService is the persisted questionnaire state machine.
// Mutations persist before returning; persistence failures are returned.
type QuestionnaireService interface {
	// Load restores state from the KV store, falling back to Idle when nothing is stored
	Load(ctx context.Context) error

	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Complete(ctx context.Context) error
	Reset(ctx context.Context) error

	MoveToNextQuestion(ctx context.Context) error
	GoToDomain(ctx context.Context, domainIndex int) error
	GoToQuestion(ctx context.Context, domainIndex, questionIndex int) error

	AddResponse(ctx context.Context, response models.Response) error
	AddSensitiveDisclosure(ctx context.Context, disclosure models.SensitiveDisclosure) error
	SetLastQuestion(ctx context.Context, last *models.LastQuestion) error

	CurrentQuestion() *models.Question
	CurrentDomainTitle() string
	ProgressPercentage() int
	NavigationPercentage() int
	Snapshot() models.QuestionnaireState
	Domains() []models.Domain
}
