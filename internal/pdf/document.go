package pdf

import (
	"fmt"
	"math"
	"os"

	lpdf "github.com/ledongthuc/pdf"
)

// Options controls how a Document is opened and how pages are laid out
type Options struct {
	MaxFileSize int64
	Layout      LayoutOptions
	Images      bool // extract embedded raster images
}

// DefaultOptions returns options with image extraction enabled and the
// default layout tolerances
func DefaultOptions() Options {
	return Options{
		MaxFileSize: 100 * 1024 * 1024,
		Layout:      DefaultLayoutOptions(),
		Images:      true,
	}
}

// Document is an open PDF. Text and geometry come from ledongthuc/pdf,
// images from pdfcpu (opened lazily on the first page that needs them).
type Document struct {
	path   string
	opts   Options
	file   *os.File
	reader *lpdf.Reader
	closed bool

	images     *imageSource
	imagesErr  error
	imagesOpen bool
}

// Open validates path and opens it for page extraction
func Open(path string, opts Options) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Library: LibraryLedongthuc, Op: "open_file", Err: fmt.Errorf("cannot access file: %w", err)}
	}
	if err := NewValidator(opts.MaxFileSize).ValidateFileInfo(path, info); err != nil {
		return nil, &Error{Library: LibraryLedongthuc, Op: "open_file", Err: err}
	}

	f, reader, err := lpdf.Open(path)
	if err != nil {
		return nil, &Error{
			Library: LibraryLedongthuc,
			Op:      "open_file",
			Err:     fmt.Errorf("failed to open PDF: %w", err),
		}
	}

	return &Document{
		path:   path,
		opts:   opts,
		file:   f,
		reader: reader,
	}, nil
}

// PageCount returns the number of pages in the document
func (d *Document) PageCount() int {
	if d.closed {
		return 0
	}
	return d.reader.NumPage()
}

// Page extracts page pageNum (1-based). Problems with individual images are
// reported in Page.Issues rather than as an error.
func (d *Document) Page(pageNum int) (*Page, error) {
	if d.closed {
		return nil, &Error{Library: LibraryLedongthuc, Op: "get_page", Err: ErrDocumentClosed}
	}
	if pageNum < 1 || pageNum > d.reader.NumPage() {
		return nil, &Error{
			Library: LibraryLedongthuc,
			Op:      "get_page",
			Err:     fmt.Errorf("%w %d (document has %d pages)", ErrInvalidPage, pageNum, d.reader.NumPage()),
		}
	}

	p := d.reader.Page(pageNum)
	page := &Page{Number: pageNum}
	if p.V.IsNull() {
		page.Width, page.Height = DefaultFrame.Width(), DefaultFrame.Height()
		return page, nil
	}

	frame := mediaBox(p)
	page.Width, page.Height = frame.Width(), frame.Height()

	glyphs, err := pageGlyphs(p)
	if err != nil {
		return nil, &Error{Library: LibraryLedongthuc, Op: "extract_text", Err: err}
	}
	lines, blocks := Layout(glyphs, frame, d.opts.Layout)
	page.Lines = lines
	page.Blocks = blocks
	page.Words = collectWords(lines)
	page.Text = joinLineText(lines)

	if d.opts.Images {
		src, err := d.imageSource()
		if err != nil {
			page.Issues = append(page.Issues, err.Error())
		} else {
			images, issues := src.pageImages(pageNum, frame)
			page.Images = images
			page.Issues = append(page.Issues, issues...)
		}
	}

	return page, nil
}

// Close closes the document
func (d *Document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

func (d *Document) imageSource() (*imageSource, error) {
	if !d.imagesOpen {
		d.images, d.imagesErr = openImageSource(d.path)
		d.imagesOpen = true
	}
	return d.images, d.imagesErr
}

// pageGlyphs reads the text runs of a page, recovering from panics raised
// by malformed content streams
func pageGlyphs(p lpdf.Page) (glyphs []Glyph, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during text extraction: %v", r)
		}
	}()

	content := p.Content()
	glyphs = make([]Glyph, 0, len(content.Text))
	for _, t := range content.Text {
		glyphs = append(glyphs, Glyph{
			Text: t.S,
			X:    t.X,
			Y:    t.Y,
			W:    t.W,
			Size: t.FontSize,
		})
	}
	return glyphs, nil
}

// mediaBox returns the page MediaBox, following Parent for inherited boxes
func mediaBox(p lpdf.Page) Frame {
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.Kind() != lpdf.Array || box.Len() != 4 {
			continue
		}
		x0, y0 := box.Index(0).Float64(), box.Index(1).Float64()
		x1, y1 := box.Index(2).Float64(), box.Index(3).Float64()
		f := Frame{
			X0: math.Min(x0, x1),
			Y0: math.Min(y0, y1),
			X1: math.Max(x0, x1),
			Y1: math.Max(y0, y1),
		}
		if f.Width() > 0 && f.Height() > 0 {
			return f
		}
	}
	return DefaultFrame
}
