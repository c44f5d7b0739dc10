package pdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPlacements(t *testing.T) {
	stream := strings.Join([]string{
		"q 100 0 0 50 72 600 cm /Im1 Do Q",
		"q 1 0 0 1 10 10 cm q 20 0 0 20 0 0 cm /Im2 Do Q Q",
		"BT /F1 12 Tf (text with (nested) \\) parens) Tj [(a) -20 (b)] TJ ET",
		"% a comment /Fake Do",
		"q 5 0 0 5 0 0 cm BI /W 1 /H 1 ID abcEIx EI Q",
		"/Im3 Do",
		"<< /MCID 0 >> BDC EMC <48656c6c6f> Tj",
	}, "\n")

	placements := ScanPlacements(strings.NewReader(stream))
	require.Len(t, placements, 3)

	assert.Equal(t, "Im1", placements[0].Name)
	assert.Equal(t, Frame{X0: 72, Y0: 600, X1: 172, Y1: 650}, placements[0].Box)

	assert.Equal(t, "Im2", placements[1].Name)
	assert.Equal(t, Frame{X0: 10, Y0: 10, X1: 30, Y1: 30}, placements[1].Box)

	assert.Equal(t, "Im3", placements[2].Name)
	assert.Equal(t, Frame{X0: 0, Y0: 0, X1: 1, Y1: 1}, placements[2].Box)
}

func TestScanPlacements_RotatedAndUnbalanced(t *testing.T) {
	// 90 degree rotation, then an extra Q that must not underflow
	stream := "Q 0 10 -20 0 100 100 cm /Fig Do"

	placements := ScanPlacements(strings.NewReader(stream))
	require.Len(t, placements, 1)
	assert.Equal(t, Frame{X0: 80, Y0: 100, X1: 100, Y1: 110}, placements[0].Box)
}

func TestScanPlacements_IgnoresMalformedCM(t *testing.T) {
	placements := ScanPlacements(strings.NewReader("1 0 cm /Im1 Do"))
	require.Len(t, placements, 1)
	assert.Equal(t, Frame{X0: 0, Y0: 0, X1: 1, Y1: 1}, placements[0].Box)
}

func TestFrameToRect(t *testing.T) {
	page := Frame{X0: 0, Y0: 0, X1: 600, Y1: 800}
	box := Frame{X0: 72, Y0: 600, X1: 172, Y1: 650}

	assert.Equal(t, Rect{X0: 72, Y0: 150, X1: 172, Y1: 200}, frameToRect(box, page))
}
