package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"mnemo/internal/textclean"
)

const (
	defaultPageHeight = 792.0
	defaultFontSize   = 10.0
	// rows further apart than this many font sizes start a new block
	blockGapFactor = 1.8
)

// PDFParser groups the text rows of each page into blocks, skipping the header
// and footer bands.
type PDFParser struct {
	HeaderHeight float64
	FooterHeight float64
	MinBlockLen  int
}

func NewPDFParser() *PDFParser {
	return &PDFParser{HeaderHeight: 100, FooterHeight: 100, MinBlockLen: 10}
}

func (p *PDFParser) Extensions() []string { return []string{".pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (blocks []string, err error) {
	// the pdf package panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			slog.Warn("failed to extract pdf page text", "file", path, "page", i, "error", err)
			continue
		}
		top, bottom := pageBounds(page)
		blocks = append(blocks, p.blocksFromRows(convertRows(rows), top, bottom)...)
	}
	return blocks, nil
}

type textRow struct {
	Y    float64
	Size float64
	Text string
}

func convertRows(rows pdf.Rows) []textRow {
	out := make([]textRow, 0, len(rows))
	for _, row := range rows {
		if row == nil || len(row.Content) == 0 {
			continue
		}
		tr := textRow{Y: float64(row.Position)}
		var b strings.Builder
		var prevEnd float64
		for i, t := range row.Content {
			if i > 0 && t.X-prevEnd > 0.25*t.FontSize && !strings.HasPrefix(t.S, " ") {
				b.WriteByte(' ')
			}
			b.WriteString(t.S)
			prevEnd = t.X + t.W
			tr.Size = max(tr.Size, t.FontSize)
			if i == 0 {
				tr.Y = t.Y
			}
		}
		if tr.Size <= 0 {
			tr.Size = defaultFontSize
		}
		tr.Text = b.String()
		out = append(out, tr)
	}
	return out
}

// blocksFromRows splits rows into blocks on vertical gaps. PDF user space grows
// upwards, so the header band sits just below top.
func (p *PDFParser) blocksFromRows(rows []textRow, top, bottom float64) []string {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Y > rows[j].Y })

	var (
		blocks []string
		lines  []string
		prev   *textRow
	)
	flush := func() {
		if len(lines) == 0 {
			return
		}
		text := strings.TrimSpace(textclean.CleanWhitespace(strings.Join(lines, " ")))
		if utf8.RuneCountInString(text) >= p.MinBlockLen {
			blocks = append(blocks, text)
		}
		lines = lines[:0]
	}

	for i := range rows {
		row := rows[i]
		if row.Y > top-p.HeaderHeight || row.Y < bottom+p.FooterHeight {
			continue
		}
		if prev != nil && prev.Y-row.Y > blockGapFactor*max(row.Size, prev.Size) {
			flush()
		}
		prev = &rows[i]
		if row.Text != "" && textclean.ValidLine(row.Text) {
			lines = append(lines, row.Text)
		}
	}
	flush()
	return blocks
}

// pageBounds returns the top and bottom of the page MediaBox, following
// inherited boxes through the page tree.
func pageBounds(page pdf.Page) (top, bottom float64) {
	for v := page.V; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			return box.Index(3).Float64(), box.Index(1).Float64()
		}
	}
	return defaultPageHeight, 0
}
