package interfaces

import "github.com/ternarybob/bloom/internal/models"

// PDFService handles PDF generation from various formats
type PDFService interface {
	// ConvertMarkdownToPDF converts markdown content to a PDF byte slice
	ConvertMarkdownToPDF(markdown, title string) ([]byte, error)
}

// ReportService renders questionnaire summaries for clinician hand-off
type ReportService interface {
	QuestionnaireMarkdown(state models.QuestionnaireState, domains []models.Domain) string
	QuestionnairePDF(state models.QuestionnaireState, domains []models.Domain) ([]byte, error)
}
