package extractor

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// span is a run of text that belongs to one table cell, with its
// horizontal extent on the page (points, or character offsets for text
// layouts).
type span struct {
	x, end float64
	s      string
}

type line []span

func (l line) texts() []string {
	out := make([]string, len(l))
	for i, sp := range l {
		out[i] = sp.s
	}
	return out
}

const defaultFontSize = 10.0

// spansFromTexts groups positioned glyph runs from one PDF text row into
// cells. A horizontal gap wider than about one character starts a new cell;
// a smaller gap is a word space. Space glyphs are ignored; the gap they
// leave is what counts.
func spansFromTexts(texts pdf.TextHorizontal) line {
	items := slices.Clone(texts)
	slices.SortStableFunc(items, func(a, b pdf.Text) int {
		switch {
		case a.X < b.X:
			return -1
		case a.X > b.X:
			return 1
		}
		return 0
	})

	var out line
	var cur *span
	for _, t := range items {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = defaultFontSize
		}
		gap := 0.0
		if cur != nil {
			gap = t.X - cur.end
		}
		switch {
		case cur == nil || gap > size*1.1:
			out = append(out, span{x: t.X, end: t.X + t.W, s: t.S})
			cur = &out[len(out)-1]
		default:
			if gap > size*0.15 && !strings.HasSuffix(cur.s, " ") {
				cur.s += " "
			}
			cur.s += t.S
			cur.end = max(cur.end, t.X+t.W)
		}
	}
	for i := range out {
		out[i].s = strings.Join(strings.Fields(out[i].s), " ")
	}
	return out
}

// spansFromLayoutText splits a line of layout-preserving text (pdftotext
// -layout, tesseract with preserved spaces) into cells on runs of two or
// more spaces. Positions are rune offsets.
func spansFromLayoutText(text string) line {
	text = strings.ReplaceAll(text, "\t", "    ")
	var out line
	start, spaces := -1, 0
	pos := 0
	flush := func(endPos int) {
		if start >= 0 {
			s := strings.TrimSpace(runeSlice(text, start, endPos))
			if s != "" {
				out = append(out, span{x: float64(start), end: float64(start + utf8.RuneCountInString(s)), s: s})
			}
		}
		start = -1
	}
	for _, r := range text {
		if r == ' ' || r == '\u00a0' {
			spaces++
			if spaces == 2 {
				flush(pos - 1)
			}
		} else {
			if start < 0 {
				start = pos
			}
			spaces = 0
		}
		pos++
	}
	flush(pos)
	return out
}

func runeSlice(s string, from, to int) string {
	r := []rune(s)
	if to > len(r) {
		to = len(r)
	}
	if from >= to {
		return ""
	}
	return string(r[from:to])
}

// aligner assigns cells to table columns. Column anchors come from the
// page's column header row when it has one, else from the previous page's
// anchors, else from the page's widest row. Without alignment an empty
// paid-in cell would vanish and shift every amount one column left.
type aligner struct {
	isHeader func(cells []string) bool
	anchors  []float64
}

// minAnchors is the fewest columns worth aligning to.
const minAnchors = 4

func (a *aligner) page(number int, lines []line) models.Page {
	if anchors := a.pickAnchors(lines); len(anchors) >= minAnchors {
		a.anchors = anchors
	}

	rows := make([]models.RawRow, 0, len(lines))
	for _, ln := range lines {
		if len(ln) == 0 {
			continue
		}
		if len(a.anchors) < minAnchors {
			rows = append(rows, models.RawRow(ln.texts()))
			continue
		}
		row := make(models.RawRow, len(a.anchors))
		for _, sp := range ln {
			col := columnFor(a.anchors, sp)
			if row[col] != "" {
				row[col] += " "
			}
			row[col] += sp.s
		}
		rows = append(rows, row)
	}
	return models.Page{Number: number, Rows: rows}
}

func (a *aligner) pickAnchors(lines []line) []float64 {
	if a.isHeader != nil {
		for _, ln := range lines {
			if len(ln) >= minAnchors && a.isHeader(ln.texts()) {
				return starts(ln)
			}
		}
	}
	if len(a.anchors) >= minAnchors {
		return a.anchors
	}
	var widest line
	for _, ln := range lines {
		if len(ln) > len(widest) {
			widest = ln
		}
	}
	return starts(widest)
}

func starts(ln line) []float64 {
	out := make([]float64, len(ln))
	for i, sp := range ln {
		out[i] = sp.x
	}
	return out
}

// columnFor picks the last anchor at or left of the span's midpoint.
// Amounts are right-aligned under their headers, so the midpoint is a
// steadier key than the start.
func columnFor(anchors []float64, sp span) int {
	mid := (sp.x + sp.end) / 2
	col := 0
	for i, x := range anchors {
		if x-1 <= mid {
			col = i
		}
	}
	return col
}
