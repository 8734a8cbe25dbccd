package transcript

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/PDIMentor/internal/models"
	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"
)

// Page layout in millimetres.
const (
	pageMargin  = 20.0
	bodyIndent  = 8.0
	lineHeight  = 6.0
	titleHeight = 9.0
)

// ReplacementChar substitutes every character the PDF core fonts cannot encode.
const ReplacementChar = '?'

type rgb struct{ r, g, b int }

var (
	colorTitle     = rgb{20, 20, 20}
	colorTimestamp = rgb{110, 110, 110}
	colorBody      = rgb{30, 30, 30}
	colorMentor    = rgb{31, 97, 141}
	colorUser      = rgb{39, 128, 84}
)

var (
	reBoldMarkers   = regexp.MustCompile(`\*\*|__`)
	reItalicStar    = regexp.MustCompile(`\*([^*\n]+)\*`)
	reItalicUnder   = regexp.MustCompile(`(^|[\s(])_([^_\n]+)_`)
	reHeaderMarkers = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	reCodeMarkers   = regexp.MustCompile("`+")
)

// StripMarkup removes lightweight emphasis markup (bold, italics, inline code, headers).
func StripMarkup(s string) string {
	s = reHeaderMarkers.ReplaceAllString(s, "")
	s = reBoldMarkers.ReplaceAllString(s, "")
	s = reItalicStar.ReplaceAllString(s, "$1")
	s = reItalicUnder.ReplaceAllString(s, "$1$2")
	s = reCodeMarkers.ReplaceAllString(s, "")
	return s
}

// CleanText strips markup and replaces every rune outside Windows-1252 with ReplacementChar.
// It never fails.
func CleanText(s string) string {
	s = StripMarkup(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\n', '\t':
			b.WriteRune(r)
			continue
		case '\r':
			continue
		}
		if _, ok := charmap.Windows1252.EncodeRune(r); ok && r >= 0x20 {
			b.WriteRune(r)
		} else {
			b.WriteRune(ReplacementChar)
		}
	}
	return b.String()
}

// encode converts cleaned UTF-8 text to the single-byte encoding of the core fonts.
func encode(s string) string {
	out, err := charmap.Windows1252.NewEncoder().String(CleanText(s))
	if err != nil {
		// CleanText leaves only encodable runes; keep the cleaned text if that ever changes.
		slog.Warn("transcript: encoding fallback", "error", err)
		return CleanText(s)
	}
	return out
}

func newDocument(title string, ts time.Time) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(encode(title), false)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	setColor(pdf, colorTitle)
	pdf.MultiCell(0, titleHeight, encode(title), "", "L", false)

	pdf.SetFont("Helvetica", "", 10)
	setColor(pdf, colorTimestamp)
	pdf.MultiCell(0, lineHeight, encode("Gerado em: "+ts.Format("02/01/2006 15:04")), "", "L", false)
	pdf.Ln(4)
	return pdf
}

func setColor(pdf *fpdf.Fpdf, c rgb) {
	pdf.SetTextColor(c.r, c.g, c.b)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderTranscript lays out a title block, a timestamp line and one paragraph per entry with a
// role-coloured header and an indented body.
func RenderTranscript(entries []Entry, title string, ts time.Time) ([]byte, error) {
	pdf := newDocument(title, ts)
	for _, e := range entries {
		header := colorMentor
		if e.Role == models.RoleUser {
			header = colorUser
		}
		pdf.SetFont("Helvetica", "B", 12)
		setColor(pdf, header)
		pdf.MultiCell(0, lineHeight+1, encode(e.Speaker+":"), "", "L", false)

		pdf.SetLeftMargin(pageMargin + bodyIndent)
		pdf.SetX(pageMargin + bodyIndent)
		pdf.SetFont("Helvetica", "", 11)
		setColor(pdf, colorBody)
		pdf.MultiCell(0, lineHeight, encode(e.Text), "", "L", false)
		pdf.SetLeftMargin(pageMargin)
		pdf.Ln(3)
	}
	slog.Debug("transcript.RenderTranscript", "entries", len(entries))
	return output(pdf)
}

// RenderSummary lays out a title block, a timestamp line and the summary as one plain paragraph.
func RenderSummary(summary, title string, ts time.Time) ([]byte, error) {
	pdf := newDocument(title, ts)
	pdf.SetFont("Helvetica", "", 11)
	setColor(pdf, colorBody)
	pdf.MultiCell(0, lineHeight, encode(summary), "", "L", false)
	slog.Debug("transcript.RenderSummary", "length", len(summary))
	return output(pdf)
}
