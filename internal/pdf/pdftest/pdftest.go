// Package pdftest writes small single-font PDF booklets for tests. Text is
// drawn in Helvetica with WinAnsi encoding and every character advances 500
// units, so a 12pt run is 6pt per character. Images are 2x2 DeviceRGB
// XObjects stretched over their box.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
)

// MediaBox of every generated page (A4, origin bottom-left)
const (
	PageWidth  = 595.0
	PageHeight = 842.0
)

// GlyphWidth is the advance of one character in thousandths of the font size
const GlyphWidth = 500

// Text is one line drawn with its baseline at (X, Y) in PDF user space
type Text struct {
	X, Y float64
	Size float64
	S    string
}

// Image is drawn with "W 0 0 H X Y cm /Name Do"
type Image struct {
	Name       string
	X, Y, W, H float64
	Pixels     [12]byte // 2x2 RGB, row by row
}

// Page holds what is drawn on one page, text first
type Page struct {
	Texts  []Text
	Images []Image
}

// Write builds pages into path and fails the test on error
func Write(t testing.TB, path string, pages ...Page) {
	t.Helper()
	if err := os.WriteFile(path, Build(pages...), 0o644); err != nil {
		t.Fatalf("pdftest: write %s: %v", path, err)
	}
}

// Build returns a complete PDF with a classic cross-reference table
func Build(pages ...Page) []byte {
	var objects []string

	// 1 catalog, 2 page tree, 3 font; pages follow
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>", "", fontDict())
	var kids []string
	for _, page := range pages {
		pageNr := len(objects) + 1
		contentNr := pageNr + 1
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNr))

		var xobjects []string
		for i, img := range page.Images {
			xobjects = append(xobjects, fmt.Sprintf("/%s %d 0 R", img.Name, contentNr+1+i))
		}
		resources := "/Font << /F1 3 0 R >>"
		if len(xobjects) > 0 {
			resources += " /XObject << " + strings.Join(xobjects, " ") + " >>"
		}
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << %s >> /Contents %d 0 R >>",
			PageWidth, PageHeight, resources, contentNr))

		content := pageContent(page)
		objects = append(objects, stream(fmt.Sprintf("<< /Length %d >>", len(content)), content))
		for _, img := range page.Images {
			objects = append(objects, stream(
				"<< /Type /XObject /Subtype /Image /Width 2 /Height 2 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Length 12 >>",
				string(img.Pixels[:])))
		}
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func fontDict() string {
	widths := make([]string, 126-32+1)
	for i := range widths {
		widths[i] = fmt.Sprint(GlyphWidth)
	}
	return "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding" +
		" /FirstChar 32 /LastChar 126 /Widths [" + strings.Join(widths, " ") + "] >>"
}

func pageContent(page Page) string {
	var b strings.Builder
	for _, t := range page.Texts {
		size := t.Size
		if size <= 0 {
			size = 12
		}
		fmt.Fprintf(&b, "BT /F1 %g Tf %g %g Td (%s) Tj ET\n", size, t.X, t.Y, escape(t.S))
	}
	for _, img := range page.Images {
		fmt.Fprintf(&b, "q %g 0 0 %g %g %g cm /%s Do Q\n", img.W, img.H, img.X, img.Y, img.Name)
	}
	return b.String()
}

func stream(dict, data string) string {
	return dict + "\nstream\n" + data + "\nendstream"
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(s)
}
