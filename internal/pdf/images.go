package pdf

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// imageSource reads embedded images and their placements through pdfcpu.
// ledongthuc/pdf exposes neither decoded image streams nor Do operators.
type imageSource struct {
	ctx *model.Context
}

func openImageSource(path string) (*imageSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &Error{Library: LibraryPDFCPU, Op: "open_file", Err: fmt.Errorf("failed to open file: %w", err)}
	}
	defer file.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(file, conf)
	if err != nil {
		return nil, &Error{Library: LibraryPDFCPU, Op: "open_file", Err: fmt.Errorf("failed to read PDF context: %w", err)}
	}

	return &imageSource{ctx: ctx}, nil
}

// pageImages returns the page's raster images in object order together with
// any per-image problems. Images without a matching Do operator keep a zero
// box and Placed=false.
func (s *imageSource) pageImages(pageNr int, frame Frame) (images []Image, issues []string) {
	defer func() {
		if r := recover(); r != nil {
			issues = append(issues, fmt.Sprintf("panic during image extraction on page %d: %v", pageNr, r))
		}
	}()

	extracted, err := pdfcpu.ExtractPageImages(s.ctx, pageNr, false)
	if err != nil {
		return nil, []string{fmt.Sprintf("image extraction failed on page %d: %v", pageNr, err)}
	}
	if len(extracted) == 0 {
		return nil, nil
	}

	var placements []Placement
	content, err := pdfcpu.ExtractPageContent(s.ctx, pageNr)
	if err != nil {
		issues = append(issues, fmt.Sprintf("content stream unavailable on page %d: %v", pageNr, err))
	} else if content != nil {
		placements = ScanPlacements(content)
	}

	objNrs := make([]int, 0, len(extracted))
	for objNr := range extracted {
		objNrs = append(objNrs, objNr)
	}
	sort.Ints(objNrs)

	used := make([]bool, len(placements))
	for _, objNr := range objNrs {
		img := extracted[objNr]
		if img.Thumb {
			continue
		}
		if img.Reader == nil {
			issues = append(issues, fmt.Sprintf("image %s (obj %d) on page %d has no data", img.Name, objNr, pageNr))
			continue
		}
		data, err := io.ReadAll(img.Reader)
		if err != nil || len(data) == 0 {
			issues = append(issues, fmt.Sprintf("image %s (obj %d) on page %d could not be read: %v", img.Name, objNr, pageNr, err))
			continue
		}

		out := Image{
			Index:  len(images),
			Name:   img.Name,
			Format: img.FileType,
			Data:   data,
		}
		for i, pl := range placements {
			if used[i] || pl.Name != img.Name {
				continue
			}
			used[i] = true
			out.Box = frameToRect(pl.Box, frame)
			out.Placed = true
			break
		}
		if !out.Placed {
			issues = append(issues, fmt.Sprintf("image %s on page %d has no placement", img.Name, pageNr))
		}
		images = append(images, out)
	}

	return images, issues
}

// frameToRect converts a user-space box into top-left page space
func frameToRect(box, page Frame) Rect {
	x0, top := page.toPage(box.X0, box.Y1)
	x1, bottom := page.toPage(box.X1, box.Y0)
	return Rect{X0: x0, Y0: top, X1: x1, Y1: bottom}
}
