package exam

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/a3tai/mcp-exam-reader/internal/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImagePath(t *testing.T) {
	assert.Equal(t, "images/生化_1111/p2_img1.jpg", ImagePath("生化_1111", 2, 1, "jpeg"))
	assert.Equal(t, "images/a_b/p1_img0.png", ImagePath("a/b", 1, 0, ".PNG"))
	assert.Equal(t, "images/document/p3_img4.bin", ImagePath(" ", 3, 4, ""))
}

func TestImageStore_SaveIsIdempotent(t *testing.T) {
	root := t.TempDir()
	store := NewImageStore(root, nil)
	assert.Equal(t, root, store.Root())

	img := pdf.Image{Index: 1, Format: "png", Data: []byte("first")}
	rel, err := store.Save("題目", 3, img)
	require.NoError(t, err)
	assert.Equal(t, "images/題目/p3_img1.png", rel)

	target := filepath.Join(root, filepath.FromSlash(rel))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	img.Data = []byte("second")
	again, err := store.Save("題目", 3, img)
	require.NoError(t, err)
	assert.Equal(t, rel, again)

	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	_, err = os.Stat(target + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestImageStore_SaveRejectsEmpty(t *testing.T) {
	store := NewImageStore(t.TempDir(), nil)
	_, err := store.Save("x", 1, pdf.Image{Index: 0, Format: "png"})
	assert.Error(t, err)
}

func textLine(text string, x0, y0, x1, y1 float64) pdf.Line {
	return pdf.Line{Text: text, Box: pdf.Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}}
}

func figurePage(images ...pdf.Image) *pdf.Page {
	return &pdf.Page{
		Number: 1,
		Width:  600,
		Height: 800,
		Blocks: []pdf.Block{
			{Lines: []pdf.Line{
				textLine("1. 如下圖所示，", 50, 100, 300, 112),
				textLine("箭頭所指為何？", 50, 114, 200, 126),
			}},
			{Lines: []pdf.Line{
				textLine("(A) 甲 (B) 乙", 50, 240, 200, 252),
				textLine("(C) 丙 (D) 丁", 50, 254, 200, 266),
			}},
			{Lines: []pdf.Line{
				textLine("2. 下列何者正確？", 50, 300, 300, 312),
				textLine("(A) 甲", 50, 420, 100, 432),
			}},
		},
		Images: images,
	}
}

func TestAssociator_Attach(t *testing.T) {
	root := t.TempDir()
	assoc := NewAssociator(NewImageStore(root, nil), "exam", ModeDefault, 0, nil)

	figure := pdf.Image{Index: 0, Format: "png", Placed: true, Box: pdf.Rect{X0: 60, Y0: 130, X1: 260, Y1: 235}, Data: []byte("fig")}
	// drawn over the options of question 1, so it belongs to nobody
	late := pdf.Image{Index: 1, Format: "png", Placed: true, Box: pdf.Rect{X0: 60, Y0: 245, X1: 260, Y1: 290}, Data: []byte("late")}
	// under question 2, before its options
	second := pdf.Image{Index: 2, Format: "jpg", Placed: true, Box: pdf.Rect{X0: 80, Y0: 320, X1: 280, Y1: 410}, Data: []byte("second")}
	unplaced := pdf.Image{Index: 3, Format: "png", Data: []byte("logo")}

	questions := []Question{
		{Number: 1, PageNumber: 1},
		{Number: 2, PageNumber: 1},
		{Number: 3, PageNumber: 2},
	}
	attached := assoc.Attach(figurePage(figure, late, second, unplaced), questions)
	assert.Equal(t, 2, attached)

	require.NotNil(t, questions[0].ImagePath)
	assert.Equal(t, "images/exam/p1_img0.png", *questions[0].ImagePath)
	require.NotNil(t, questions[1].ImagePath)
	assert.Equal(t, "images/exam/p1_img2.jpg", *questions[1].ImagePath)
	assert.Nil(t, questions[2].ImagePath)

	// every image is stored, attached or not
	for _, name := range []string{"p1_img0.png", "p1_img1.png", "p1_img2.jpg", "p1_img3.png"} {
		_, err := os.Stat(filepath.Join(root, "images", "exam", name))
		assert.NoError(t, err, name)
	}
}

func TestAssociator_GapAndOverlap(t *testing.T) {
	tests := []struct {
		name string
		box  pdf.Rect
		want bool
	}{
		{"directly below stem", pdf.Rect{X0: 60, Y0: 128, X1: 200, Y1: 230}, true},
		{"touching stem", pdf.Rect{X0: 60, Y0: 125, X1: 200, Y1: 230}, true},
		{"off to the right", pdf.Rect{X0: 320, Y0: 128, X1: 500, Y1: 230}, false},
		{"above the stem", pdf.Rect{X0: 60, Y0: 20, X1: 200, Y1: 90}, false},
		{"past the options", pdf.Rect{X0: 60, Y0: 130, X1: 200, Y1: 260}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assoc := NewAssociator(NewImageStore(t.TempDir(), nil), "exam", ModeDefault, 0, nil)
			img := pdf.Image{Index: 0, Format: "png", Placed: true, Box: tt.box, Data: []byte("x")}
			questions := []Question{{Number: 1, PageNumber: 1}}

			assoc.Attach(figurePage(img), questions)
			assert.Equal(t, tt.want, questions[0].ImagePath != nil)
		})
	}
}

func TestAssociator_MaxGap(t *testing.T) {
	assoc := NewAssociator(NewImageStore(t.TempDir(), nil), "exam", ModeDefault, 50, nil)
	page := &pdf.Page{
		Number: 1,
		Height: 800,
		Blocks: []pdf.Block{{Lines: []pdf.Line{textLine("1. 題幹", 50, 100, 300, 112)}}},
		Images: []pdf.Image{{Index: 0, Format: "png", Placed: true, Box: pdf.Rect{X0: 60, Y0: 200, X1: 200, Y1: 300}, Data: []byte("x")}},
	}
	questions := []Question{{Number: 1, PageNumber: 1}}

	assert.Equal(t, 0, assoc.Attach(page, questions))
	assert.Nil(t, questions[0].ImagePath)
}
