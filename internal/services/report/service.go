package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/models"
)

// ReportTitle is the heading and PDF title of the questionnaire summary
const ReportTitle = "Wellbeing Check-in Summary"

// Service renders questionnaire state into clinician-facing summaries
type Service struct {
	pdf    interfaces.PDFService
	now    func() time.Time
	logger arbor.ILogger
}

var _ interfaces.ReportService = (*Service)(nil)

// NewService creates a report service rendering PDFs with pdf
func NewService(pdf interfaces.PDFService, logger arbor.ILogger) *Service {
	return &Service{
		pdf:    pdf,
		now:    time.Now,
		logger: logger,
	}
}

// QuestionnaireMarkdown lists responses grouped by catalog domain, followed by disclosures.
// Responses whose domain is not in the catalog are listed under "Other".
func (s *Service) QuestionnaireMarkdown(state models.QuestionnaireState, domains []models.Domain) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", ReportTitle)
	fmt.Fprintf(&sb, "Generated %s\n\n", s.now().Format("2 January 2006 15:04"))
	fmt.Fprintf(&sb, "**Status:** %s  \n", state.Status)
	fmt.Fprintf(&sb, "**Responses:** %d\n\n", len(state.Responses))

	questionText := make(map[string]string)
	known := make(map[string]bool, len(domains))
	for _, d := range domains {
		known[d.ID] = true
		for _, q := range d.Questions {
			questionText[d.ID+"/"+q.ID] = q.Text
		}
	}

	byDomain := make(map[string][]models.Response)
	var other []models.Response
	for _, r := range state.Responses {
		if known[r.DomainID] {
			byDomain[r.DomainID] = append(byDomain[r.DomainID], r)
		} else {
			other = append(other, r)
		}
	}

	for _, d := range domains {
		responses := byDomain[d.ID]
		if len(responses) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n", d.Description)
		writeResponseTable(&sb, responses, questionText)
	}
	if len(other) > 0 {
		sb.WriteString("## Other\n\n")
		writeResponseTable(&sb, other, questionText)
	}

	if len(state.SensitiveDisclosures) > 0 {
		sb.WriteString("## Sensitive disclosures\n\n")
		sb.WriteString("| Topic | Domain | Question | Response | Time |\n")
		sb.WriteString("|---|---|---|---|---|\n")
		for _, d := range state.SensitiveDisclosures {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				cell(d.Topic), cell(d.DomainID), cell(d.QuestionID), cell(d.Response), d.Timestamp.Format(time.RFC3339))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// QuestionnairePDF renders QuestionnaireMarkdown as a PDF
func (s *Service) QuestionnairePDF(state models.QuestionnaireState, domains []models.Domain) ([]byte, error) {
	data, err := s.pdf.ConvertMarkdownToPDF(s.QuestionnaireMarkdown(state, domains), ReportTitle)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to render questionnaire report")
		return nil, err
	}
	return data, nil
}

func writeResponseTable(sb *strings.Builder, responses []models.Response, questionText map[string]string) {
	sb.WriteString("| Question | Response | Flag |\n")
	sb.WriteString("|---|---|---|\n")
	for _, r := range responses {
		question := questionText[r.DomainID+"/"+r.QuestionID]
		if question == "" {
			question = r.QuestionID
		}
		fmt.Fprintf(sb, "| %s | %s | %s |\n", cell(question), cell(r.Response), cell(r.Flag))
	}
	sb.WriteString("\n")
}

// cellEscaper backslash-escapes the punctuation goldmark would read as inline markup
var cellEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"`", "\\`",
	"*", "\\*",
	"_", "\\_",
	"[", "\\[",
	"]", "\\]",
	"<", "\\<",
	">", "\\>",
	"!", "\\!",
	"~", "\\~",
	"&", "\\&",
	"|", "\\|",
	"\r\n", " ",
	"\r", " ",
	"\n", " ",
)

// cell keeps free text literal inside a table row
func cell(s string) string {
	return cellEscaper.Replace(s)
}
