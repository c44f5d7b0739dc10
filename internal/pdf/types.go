package pdf

import "math"

// Rect is an axis-aligned box in page space. The origin is the top-left
// corner of the page's MediaBox and Y grows downward, so Y0 is the top edge.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent of the box
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent of the box
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// MidX returns the horizontal midpoint
func (r Rect) MidX() float64 { return (r.X0 + r.X1) / 2 }

// Empty reports whether the box has no area
func (r Rect) Empty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// Union returns the smallest box containing both r and o. An empty receiver
// yields o unchanged.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// OverlapsX reports whether the horizontal spans of r and o intersect
func (r Rect) OverlapsX(o Rect) bool {
	return r.X0 < o.X1 && o.X0 < r.X1
}

// Word is a run of glyphs on one line without a visible gap
type Word struct {
	Text string `json:"text"`
	Box  Rect   `json:"box"`
}

// Line is a visual line of words, left to right
type Line struct {
	Text  string `json:"text"`
	Box   Rect   `json:"box"`
	Words []Word `json:"words,omitempty"`
}

// Block is a group of vertically adjacent lines
type Block struct {
	Text  string `json:"text"`
	Box   Rect   `json:"box"`
	Lines []Line `json:"lines,omitempty"`
}

// Image is an embedded raster image drawn on a page
type Image struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`   // resource name, e.g. "Im1"
	Format string `json:"format"` // file extension of Data: "png", "jpg", "tif"
	Box    Rect   `json:"box"`
	Placed bool   `json:"placed"` // false when no Do operator for Name was found
	Data   []byte `json:"-"`
}

// Page is everything the exam pipeline needs from one PDF page
type Page struct {
	Number int      `json:"number"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Text   string   `json:"text"`
	Words  []Word   `json:"words,omitempty"`
	Lines  []Line   `json:"lines,omitempty"`
	Blocks []Block  `json:"blocks,omitempty"`
	Images []Image  `json:"images,omitempty"`
	Issues []string `json:"issues,omitempty"` // non-fatal extraction problems
}

// FileInfo represents information about a PDF file
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}
