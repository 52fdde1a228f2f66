package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

const (
	baseFont     = "Arial"
	baseSize     = 10.0
	lineHeight   = 5.0
	pageWidth    = 190.0 // A4 minus 10mm margins
	pageBottomMM = 297.0 - 15.0
)

// PDFRenderer converts markdown into a simple A4 document
type PDFRenderer struct {
	md     goldmark.Markdown
	logger arbor.ILogger
}

var _ interfaces.PDFService = (*PDFRenderer)(nil)

// NewPDFRenderer creates a markdown to PDF renderer
func NewPDFRenderer(logger arbor.ILogger) *PDFRenderer {
	return &PDFRenderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough)),
		logger: logger,
	}
}

// ConvertMarkdownToPDF renders markdown to PDF bytes. title is stored as document metadata.
func (p *PDFRenderer) ConvertMarkdownToPDF(markdown, title string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("bloom", true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont(baseFont, "", baseSize)

	source := []byte(markdown)
	w := &pdfWriter{
		pdf:    pdf,
		source: source,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
	}

	doc := p.md.Parser().Parse(text.NewReader(source))
	if err := ast.Walk(doc, w.walk); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to layout PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	p.logger.Debug().Int("markdown_len", len(markdown)).Int("pdf_size", buf.Len()).Msg("PDF generated")
	return buf.Bytes(), nil
}

type pdfWriter struct {
	pdf       *fpdf.Fpdf
	source    []byte
	tr        func(string) string
	bold      bool
	italic    bool
	listLevel int
}

func (w *pdfWriter) setFont() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	w.pdf.SetFont(baseFont, style, baseSize)
}

func (w *pdfWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			w.pdf.Ln(4)
			size := map[int]float64{1: 16, 2: 13, 3: 11}[node.Level]
			if size == 0 {
				size = baseSize
			}
			w.pdf.SetFont(baseFont, "B", size)
		} else {
			w.pdf.Ln(7)
			w.setFont()
		}
	case *ast.Paragraph:
		if !entering && w.listLevel == 0 {
			w.pdf.Ln(7)
		}
	case *ast.Text:
		if entering {
			w.pdf.Write(lineHeight, w.tr(textValue(node, w.source)))
			if node.SoftLineBreak() {
				w.pdf.Write(lineHeight, " ")
			}
		}
	case *ast.String:
		if entering {
			w.pdf.Write(lineHeight, w.tr(string(node.Value)))
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.setFont()
	case *ast.List:
		if entering {
			w.listLevel++
		} else {
			w.listLevel--
			if w.listLevel == 0 {
				w.pdf.Ln(7)
			}
		}
	case *ast.ListItem:
		if entering {
			if w.pdf.GetX() > 11 {
				w.pdf.Ln(lineHeight)
			}
			w.pdf.SetX(10 + float64(w.listLevel)*5)
			w.pdf.Write(lineHeight, "- ")
		}
	case *ast.ThematicBreak:
		if entering {
			w.pdf.Ln(2)
			w.pdf.Line(10, w.pdf.GetY(), 200, w.pdf.GetY())
			w.pdf.Ln(2)
		}
	case *extast.Table:
		if entering {
			w.table(node)
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (w *pdfWriter) table(n *extast.Table) {
	var rows [][]string
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, w.tr(cellText(cell, w.source)))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	cols := len(rows[0])
	colWidth := pageWidth / float64(cols)
	w.pdf.Ln(2)

	for i, row := range rows {
		if i == 0 {
			w.pdf.SetFont(baseFont, "B", 9)
		} else {
			w.pdf.SetFont(baseFont, "", 9)
		}

		// Height of the tallest wrapped cell decides the row height
		lines := 1
		for _, cell := range row {
			if n := len(w.pdf.SplitText(cell, colWidth-2)); n > lines {
				lines = n
			}
		}
		rowHeight := float64(lines)*4 + 2

		y := w.pdf.GetY()
		if y+rowHeight > pageBottomMM {
			w.pdf.AddPage()
			y = w.pdf.GetY()
		}

		for j := 0; j < cols; j++ {
			x := 10 + float64(j)*colWidth
			style := "D"
			if i == 0 {
				w.pdf.SetFillColor(230, 230, 230)
				style = "FD"
			}
			w.pdf.Rect(x, y, colWidth, rowHeight, style)
			if j < len(row) {
				w.pdf.SetXY(x+1, y+1)
				w.pdf.MultiCell(colWidth-2, 4, row[j], "", "L", false)
			}
		}
		w.pdf.SetXY(10, y+rowHeight)
	}

	w.pdf.Ln(3)
	w.setFont()
}

func cellText(cell ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(cell, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			sb.WriteString(textValue(t, source))
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// textValue is the literal text of t with backslash escapes removed. Raw text
// such as code span content keeps its backslashes.
func textValue(t *ast.Text, source []byte) string {
	value := t.Segment.Value(source)
	if t.IsRaw() {
		return string(value)
	}
	return string(util.UnescapePunctuations(value))
}
