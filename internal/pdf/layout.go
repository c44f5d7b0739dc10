package pdf

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// Glyph is one positioned text run as reported by a page content stream.
// X and Y locate the baseline origin in PDF user space (origin bottom-left).
type Glyph struct {
	Text string
	X    float64
	Y    float64
	W    float64
	Size float64
}

// Frame is a page MediaBox in PDF user space
type Frame struct {
	X0, Y0, X1, Y1 float64
}

// DefaultFrame is an A4 portrait MediaBox, used when a page has none
var DefaultFrame = Frame{X0: 0, Y0: 0, X1: 595.28, Y1: 841.89}

// Width returns the frame width
func (f Frame) Width() float64 { return f.X1 - f.X0 }

// Height returns the frame height
func (f Frame) Height() float64 { return f.Y1 - f.Y0 }

// toPage converts a user-space point into top-left page space
func (f Frame) toPage(x, y float64) (float64, float64) {
	return x - f.X0, f.Y1 - y
}

// LayoutOptions tunes glyph clustering. All values are fractions of the
// font size (or line height for BlockGap).
type LayoutOptions struct {
	LineTolerance float64 // max baseline drift inside one line
	WordGap       float64 // horizontal gap that starts a new word
	BlockGap      float64 // vertical gap that starts a new block
}

// DefaultLayoutOptions returns the clustering values used by Open
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		LineTolerance: 0.3,
		WordGap:       0.25,
		BlockGap:      0.8,
	}
}

const defaultGlyphSize = 10.0

type placedGlyph struct {
	text     string
	box      Rect
	baseline float64
	size     float64
}

// Layout clusters glyphs into lines and blocks in top-left page space.
// Multi-rune glyph runs are split into evenly spaced runes first so that
// embedded spaces become word breaks.
func Layout(glyphs []Glyph, frame Frame, opts LayoutOptions) ([]Line, []Block) {
	placed := explodeGlyphs(glyphs, frame)
	if len(placed) == 0 {
		return nil, nil
	}

	sort.SliceStable(placed, func(i, j int) bool {
		if placed[i].baseline != placed[j].baseline {
			return placed[i].baseline < placed[j].baseline
		}
		return placed[i].box.X0 < placed[j].box.X0
	})

	var lines []Line
	start := 0
	for i := 1; i <= len(placed); i++ {
		if i < len(placed) {
			tol := opts.LineTolerance * math.Max(placed[i].size, placed[start].size)
			if math.Abs(placed[i].baseline-placed[start].baseline) <= tol {
				continue
			}
		}
		if line, ok := buildLine(placed[start:i], opts); ok {
			lines = append(lines, line)
		}
		start = i
	}

	return lines, buildBlocks(lines, opts)
}

func explodeGlyphs(glyphs []Glyph, frame Frame) []placedGlyph {
	var out []placedGlyph
	for _, g := range glyphs {
		n := utf8.RuneCountInString(g.Text)
		if n == 0 {
			continue
		}
		size := g.Size
		if size <= 0 {
			size = defaultGlyphSize
		}
		width := g.W
		if width <= 0 {
			width = size * 0.5 * float64(n)
		}
		step := width / float64(n)
		x, baseline := frame.toPage(g.X, g.Y)

		i := 0
		for _, r := range g.Text {
			x0 := x + float64(i)*step
			out = append(out, placedGlyph{
				text: string(r),
				box: Rect{
					X0: x0,
					Y0: baseline - size*0.8,
					X1: x0 + step,
					Y1: baseline + size*0.2,
				},
				baseline: baseline,
				size:     size,
			})
			i++
		}
	}
	return out
}

func buildLine(glyphs []placedGlyph, opts LayoutOptions) (Line, bool) {
	row := make([]placedGlyph, len(glyphs))
	copy(row, glyphs)
	sort.SliceStable(row, func(i, j int) bool { return row[i].box.X0 < row[j].box.X0 })

	var words []Word
	var current strings.Builder
	var box Rect
	var prevX1 float64
	flush := func() {
		if current.Len() > 0 {
			words = append(words, Word{Text: current.String(), Box: box})
		}
		current.Reset()
		box = Rect{}
	}

	for i, g := range row {
		if strings.TrimSpace(g.text) == "" {
			flush()
			prevX1 = g.box.X1
			continue
		}
		if i > 0 && current.Len() > 0 && g.box.X0-prevX1 > opts.WordGap*g.size {
			flush()
		}
		current.WriteString(g.text)
		box = box.Union(g.box)
		prevX1 = g.box.X1
	}
	flush()

	if len(words) == 0 {
		return Line{}, false
	}

	texts := make([]string, len(words))
	var lineBox Rect
	for i, w := range words {
		texts[i] = w.Text
		lineBox = lineBox.Union(w.Box)
	}
	return Line{Text: strings.Join(texts, " "), Box: lineBox, Words: words}, true
}

func buildBlocks(lines []Line, opts LayoutOptions) []Block {
	var blocks []Block
	var cur *Block
	for _, line := range lines {
		if cur != nil {
			prev := cur.Lines[len(cur.Lines)-1]
			gap := line.Box.Y0 - prev.Box.Y1
			if gap <= opts.BlockGap*prev.Box.Height() && cur.Box.OverlapsX(line.Box) {
				cur.Lines = append(cur.Lines, line)
				cur.Box = cur.Box.Union(line.Box)
				cur.Text += "\n" + line.Text
				continue
			}
			blocks = append(blocks, *cur)
		}
		cur = &Block{Text: line.Text, Box: line.Box, Lines: []Line{line}}
	}
	if cur != nil {
		blocks = append(blocks, *cur)
	}
	return blocks
}

// collectWords flattens line words in reading order
func collectWords(lines []Line) []Word {
	var words []Word
	for _, l := range lines {
		words = append(words, l.Words...)
	}
	return words
}

// joinLineText returns the lines' text joined by newlines
func joinLineText(lines []Line) string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}
