package exam

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/a3tai/mcp-exam-reader/internal/pdf"
	"go.uber.org/zap"
)

// DefaultMaxImageGap is the largest vertical distance between a stem and the
// figure below it
const DefaultMaxImageGap = 150.0

// imageEdgeSlack absorbs rounding where an image touches the stem or bound
const imageEdgeSlack = 2.0

// ImageStore writes extracted page images below an output root. Paths handed
// out are relative to the root and use forward slashes.
type ImageStore struct {
	root   string
	logger *zap.Logger
}

// NewImageStore creates a store rooted at root
func NewImageStore(root string, logger *zap.Logger) *ImageStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageStore{root: root, logger: logger}
}

// Root returns the output root directory
func (s *ImageStore) Root() string {
	return s.root
}

// ImagePath returns the relative path used for image index of page
func ImagePath(stem string, page, index int, format string) string {
	return path.Join("images", sanitizeStem(stem), fmt.Sprintf("p%d_img%d.%s", page, index, imageExt(format)))
}

// Save writes img unless the target already exists and returns its relative
// path
func (s *ImageStore) Save(stem string, page int, img pdf.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("image %d on page %d has no data", img.Index, page)
	}
	rel := ImagePath(stem, page, img.Index, img.Format)
	target := filepath.Join(s.root, filepath.FromSlash(rel))

	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		s.logger.Debug("Image already stored, skipping write", zap.String("path", rel))
		return rel, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move %s into place: %w", rel, err)
	}
	s.logger.Debug("Stored image", zap.String("path", rel), zap.Int("bytes", len(img.Data)))
	return rel, nil
}

func imageExt(format string) string {
	switch f := strings.ToLower(strings.TrimPrefix(format, ".")); f {
	case "jpeg":
		return "jpg"
	case "tiff":
		return "tif"
	case "":
		return "bin"
	default:
		return f
	}
}

func sanitizeStem(stem string) string {
	stem = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(stem))
	if stem == "" || stem == "." || stem == ".." {
		return "document"
	}
	return stem
}

// stemRegion is where one question's stem sits on a page
type stemRegion struct {
	number int
	box    pdf.Rect
	bound  float64 // images must end above this
	inStem bool
}

// Associator links saved page images to the question stems they follow
type Associator struct {
	store  *ImageStore
	stem   string
	mode   Mode
	maxGap float64
	logger *zap.Logger
}

// NewAssociator creates an Associator for one booklet. stem names the
// booklet's image folder.
func NewAssociator(store *ImageStore, stem string, mode Mode, maxGap float64, logger *zap.Logger) *Associator {
	if maxGap <= 0 {
		maxGap = DefaultMaxImageGap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Associator{store: store, stem: stem, mode: mode, maxGap: maxGap, logger: logger}
}

type storedImage struct {
	rel     string
	box     pdf.Rect
	claimed bool
}

// Attach saves the page's images and sets ImagePath on the questions of that
// page whose stem an image follows. It returns how many questions got an
// image. Failures on single images are logged and skipped.
func (a *Associator) Attach(page *pdf.Page, questions []Question) int {
	if page == nil || len(page.Images) == 0 {
		return 0
	}

	var images []*storedImage
	for _, img := range page.Images {
		rel, err := a.store.Save(a.stem, page.Number, img)
		if err != nil {
			a.logger.Warn("Failed to store image",
				zap.Int("page", page.Number), zap.Int("index", img.Index), zap.Error(err))
			continue
		}
		if !img.Placed || img.Box.Empty() {
			a.logger.Debug("Image has no placement on page",
				zap.Int("page", page.Number), zap.String("path", rel))
			continue
		}
		images = append(images, &storedImage{rel: rel, box: img.Box})
	}
	if len(images) == 0 {
		return 0
	}

	targets := make(map[int]*Question)
	for i := range questions {
		q := &questions[i]
		if q.PageNumber == page.Number && q.ImagePath == nil {
			targets[q.Number] = q
		}
	}

	attached := 0
	for _, region := range a.stemRegions(page) {
		q, ok := targets[region.number]
		if !ok {
			continue
		}
		best := a.bestImage(region, images)
		if best == nil {
			continue
		}
		best.claimed = true
		q.ImagePath = stringPtr(best.rel)
		delete(targets, region.number)
		attached++
		a.logger.Debug("Associated image with question",
			zap.Int("question", q.Number), zap.String("path", best.rel))
	}
	return attached
}

func (a *Associator) bestImage(region stemRegion, images []*storedImage) *storedImage {
	var best *storedImage
	bestGap := math.Inf(1)
	for _, img := range images {
		if img.claimed {
			continue
		}
		gap := img.box.Y0 - region.box.Y1
		if gap < -imageEdgeSlack || gap > a.maxGap {
			continue
		}
		if !img.box.OverlapsX(region.box) {
			continue
		}
		if img.box.Y1 > region.bound+imageEdgeSlack {
			continue
		}
		if gap < bestGap {
			best, bestGap = img, gap
		}
	}
	return best
}

// stemRegions rescans the page's blocks with the question and option
// markers and returns each stem with the top of what follows it
func (a *Associator) stemRegions(page *pdf.Page) []stemRegion {
	pageBottom := page.Height
	if pageBottom <= 0 {
		pageBottom = math.Inf(1)
	}

	var regions []stemRegion
	cur := -1
	closeStem := func(top float64) {
		if cur >= 0 && regions[cur].inStem {
			regions[cur].inStem = false
			regions[cur].bound = top
		}
	}

	for _, block := range page.Blocks {
		for _, line := range block.Lines {
			text := strings.TrimSpace(line.Text)
			if text == "" || isPageFurniture(text) {
				continue
			}
			if number, _, ok := matchQuestion(text, a.mode); ok {
				closeStem(line.Box.Y0)
				regions = append(regions, stemRegion{number: number, box: line.Box, inStem: true})
				cur = len(regions) - 1
				continue
			}
			if cur < 0 || !regions[cur].inStem {
				continue
			}
			if _, ok := matchOptions(text); ok {
				closeStem(line.Box.Y0)
				continue
			}
			regions[cur].box = regions[cur].box.Union(line.Box)
		}
	}
	closeStem(pageBottom)
	return regions
}
