package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/models"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

func testDomains() []models.Domain {
	return []models.Domain{
		{ID: "mood", Description: "Mood", Questions: []models.Question{{ID: "q1", Text: "How are you feeling?"}}},
		{ID: "sleep", Description: "Sleep", Questions: []models.Question{{ID: "q1", Text: "How did you sleep?"}}},
	}
}

func testState() models.QuestionnaireState {
	ts := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	state := models.NewQuestionnaireState()
	state.Status = models.StatusCompleted
	state.Responses = []models.Response{
		{QuestionID: "q1", DomainID: "mood", Response: "Tired | low", Flag: "amber", Timestamp: ts},
		{QuestionID: "legacy", DomainID: "removed", Response: "n/a", Timestamp: ts},
	}
	state.SensitiveDisclosures = []models.SensitiveDisclosure{
		{Topic: "safety", QuestionID: "q1", DomainID: "mood", Response: "line one\nline two", Timestamp: ts},
	}
	return state
}

func newTestService() *Service {
	svc := NewService(NewPDFRenderer(arbor.NewLogger()), arbor.NewLogger())
	svc.now = func() time.Time { return time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestQuestionnaireMarkdown(t *testing.T) {
	md := newTestService().QuestionnaireMarkdown(testState(), testDomains())

	assert.Contains(t, md, "# "+ReportTitle)
	assert.Contains(t, md, "**Status:** completed")
	assert.Contains(t, md, "## Mood")
	assert.Contains(t, md, "| How are you feeling? | Tired \\| low | amber |")
	assert.NotContains(t, md, "## Sleep", "domains without responses are omitted")
	assert.Contains(t, md, "## Other")
	assert.Contains(t, md, "| legacy | n/a |  |")
	assert.Contains(t, md, "## Sensitive disclosures")
	assert.Contains(t, md, "line one line two")
}

func TestQuestionnaireMarkdown_Empty(t *testing.T) {
	md := newTestService().QuestionnaireMarkdown(models.NewQuestionnaireState(), testDomains())

	assert.Contains(t, md, "**Responses:** 0")
	assert.NotContains(t, md, "## Sensitive disclosures")
}

func TestQuestionnairePDF(t *testing.T) {
	data, err := newTestService().QuestionnairePDF(testState(), testDomains())
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestConvertMarkdownToPDF(t *testing.T) {
	renderer := NewPDFRenderer(arbor.NewLogger())

	tests := []struct {
		name     string
		markdown string
	}{
		{"empty", ""},
		{"headings and lists", "# Title\n\nSome text.\n\n- one\n- two\n  - nested"},
		{"emphasis", "Normal **bold** *italic* ***both***"},
		{"table", "| A | B |\n|---|---|\n| 1 | a long cell that needs to wrap across more than one line of the table |"},
		{"non-latin punctuation", "It’s “quoted” — fine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := renderer.ConvertMarkdownToPDF(tt.markdown, tt.name)
			require.NoError(t, err)
			assert.Equal(t, "%PDF", string(data[:4]))
		})
	}
}

func TestCellKeepsMarkdownLiteral(t *testing.T) {
	renderer := NewPDFRenderer(arbor.NewLogger())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"emphasis", "feeling *very* _low_ **today**", "feeling *very* _low_ **today**"},
		{"code and strike", "`ls` then ~~gone~~", "`ls` then ~~gone~~"},
		{"link and image", "see [notes](http://x) ![img](y)", "see [notes](http://x) ![img](y)"},
		{"html and entity", "<b>bold</b> &amp; a & b", "<b>bold</b> &amp; a & b"},
		{"pipe and backslash", `a | b \ c\*`, `a | b \ c\*`},
		{"newlines", "line one\r\nline two\nthree", "line one line two three"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := []byte("| Response |\n|---|\n| " + cell(tt.in) + " |\n")
			doc := renderer.md.Parser().Parse(text.NewReader(source))

			var cells []ast.Node
			require.NoError(t, ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
				if _, ok := n.(*extast.TableCell); ok && entering {
					cells = append(cells, n)
				}
				return ast.WalkContinue, nil
			}))
			require.Len(t, cells, 2, "header and one body cell")

			body := cells[1]
			assert.Equal(t, tt.want, cellText(body, source))
			for c := body.FirstChild(); c != nil; c = c.NextSibling() {
				_, isText := c.(*ast.Text)
				assert.True(t, isText, "unexpected inline %s", c.Kind())
			}
		})
	}
}

func TestQuestionnairePDF_MarkdownInResponses(t *testing.T) {
	state := testState()
	state.Responses[0].Response = "*not* bold, [not](a link) <i>or</i> `code`"

	md := newTestService().QuestionnaireMarkdown(state, testDomains())
	assert.Contains(t, md, "\\*not\\* bold, \\[not\\](a link) \\<i\\>or\\</i\\> \\`code\\`")

	data, err := newTestService().QuestionnairePDF(state, testDomains())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))
}
