package pdf

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"strconv"
)

// matrix is a PDF transformation matrix [a b c d e f]
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// multiply returns m × n
func (m matrix) multiply(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// unitBox maps the image unit square through m into user space
func (m matrix) unitBox() Frame {
	xs := [4]float64{}
	ys := [4]float64{}
	xs[0], ys[0] = m.apply(0, 0)
	xs[1], ys[1] = m.apply(1, 0)
	xs[2], ys[2] = m.apply(0, 1)
	xs[3], ys[3] = m.apply(1, 1)
	f := Frame{X0: xs[0], Y0: ys[0], X1: xs[0], Y1: ys[0]}
	for i := 1; i < 4; i++ {
		f.X0 = math.Min(f.X0, xs[i])
		f.X1 = math.Max(f.X1, xs[i])
		f.Y0 = math.Min(f.Y0, ys[i])
		f.Y1 = math.Max(f.Y1, ys[i])
	}
	return f
}

// Placement is one XObject draw (Do operator) with its user-space box
type Placement struct {
	Name string
	Box  Frame
}

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenName
	tokenOperator
	tokenOther
)

type token struct {
	kind  tokenKind
	value string
}

// contentLexer tokenizes just enough of a content stream to follow the
// graphics state: numbers, names and operators. Strings, arrays and
// dictionaries are consumed as opaque operands.
type contentLexer struct {
	reader *bufio.Reader
}

func newContentLexer(r io.Reader) *contentLexer {
	return &contentLexer{reader: bufio.NewReader(r)}
}

func isWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *contentLexer) next() token {
	for {
		c, err := l.reader.ReadByte()
		if err != nil {
			return token{kind: tokenEOF}
		}
		switch {
		case isWhitespace(c):
			continue
		case c == '%':
			l.skipLine()
			continue
		case c == '(':
			l.skipLiteralString()
			return token{kind: tokenOther}
		case c == '<':
			if p, _ := l.reader.Peek(1); len(p) == 1 && p[0] == '<' {
				_, _ = l.reader.ReadByte()
				return token{kind: tokenOther, value: "<<"}
			}
			l.skipUntil('>')
			return token{kind: tokenOther}
		case c == '>':
			if p, _ := l.reader.Peek(1); len(p) == 1 && p[0] == '>' {
				_, _ = l.reader.ReadByte()
			}
			return token{kind: tokenOther, value: ">>"}
		case c == '[' || c == ']' || c == '{' || c == '}':
			return token{kind: tokenOther, value: string(c)}
		case c == '/':
			return token{kind: tokenName, value: l.readRegular()}
		default:
			_ = l.reader.UnreadByte()
			word := l.readRegular()
			if word == "" {
				// stray delimiter such as ')'
				_, _ = l.reader.ReadByte()
				continue
			}
			if _, err := strconv.ParseFloat(word, 64); err == nil {
				return token{kind: tokenNumber, value: word}
			}
			return token{kind: tokenOperator, value: word}
		}
	}
}

func (l *contentLexer) readRegular() string {
	var buf bytes.Buffer
	for {
		c, err := l.reader.ReadByte()
		if err != nil {
			break
		}
		if isWhitespace(c) || isDelimiter(c) {
			_ = l.reader.UnreadByte()
			break
		}
		buf.WriteByte(c)
	}
	return buf.String()
}

func (l *contentLexer) skipLine() {
	for {
		c, err := l.reader.ReadByte()
		if err != nil || c == '\n' || c == '\r' {
			return
		}
	}
}

func (l *contentLexer) skipUntil(end byte) {
	for {
		c, err := l.reader.ReadByte()
		if err != nil || c == end {
			return
		}
	}
}

func (l *contentLexer) skipLiteralString() {
	depth := 1
	for depth > 0 {
		c, err := l.reader.ReadByte()
		if err != nil {
			return
		}
		switch c {
		case '\\':
			_, _ = l.reader.ReadByte()
		case '(':
			depth++
		case ')':
			depth--
		}
	}
}

// skipInlineImage discards inline image data up to and including "EI"
func (l *contentLexer) skipInlineImage() {
	var prev2, prev1 byte = ' ', ' '
	for {
		c, err := l.reader.ReadByte()
		if err != nil {
			return
		}
		if prev2 == 'E' && prev1 == 'I' && isWhitespace(c) {
			return
		}
		prev2, prev1 = prev1, c
	}
}

// ScanPlacements follows q/Q/cm in a content stream and records the box of
// every Do operator. Form XObjects are not entered.
func ScanPlacements(r io.Reader) []Placement {
	lexer := newContentLexer(r)
	ctm := identity
	var stack []matrix
	var operands []token
	var placements []Placement

	for {
		tok := lexer.next()
		switch tok.kind {
		case tokenEOF:
			return placements
		case tokenNumber, tokenName, tokenOther:
			operands = append(operands, tok)
			continue
		}

		switch tok.value {
		case "q":
			stack = append(stack, ctm)
		case "Q":
			if n := len(stack); n > 0 {
				ctm = stack[n-1]
				stack = stack[:n-1]
			}
		case "cm":
			if m, ok := matrixOperand(operands); ok {
				ctm = m.multiply(ctm)
			}
		case "Do":
			if n := len(operands); n > 0 && operands[n-1].kind == tokenName {
				placements = append(placements, Placement{Name: operands[n-1].value, Box: ctm.unitBox()})
			}
		case "ID":
			lexer.skipInlineImage()
		}
		operands = operands[:0]
	}
}

func matrixOperand(operands []token) (matrix, bool) {
	if len(operands) < 6 {
		return matrix{}, false
	}
	var m matrix
	tail := operands[len(operands)-6:]
	for i, t := range tail {
		if t.kind != tokenNumber {
			return matrix{}, false
		}
		v, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return matrix{}, false
		}
		m[i] = v
	}
	return m, true
}
