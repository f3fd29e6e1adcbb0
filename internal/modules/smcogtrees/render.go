package smcogtrees

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"strconv"
)

var leafPattern = regexp.MustCompile(`([^(),:;]+):([0-9]*\.?[0-9]+)`)

const (
	imageWidth  = 320
	rowHeight   = 18
	marginX     = 12
	marginY     = 10
	markerWidth = 4
)

var (
	background = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	branch     = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	query      = color.RGBA{R: 178, G: 24, B: 43, A: 255}
)

type leaf struct {
	name   string
	length float64
}

func parseLeaves(newick string) ([]leaf, error) {
	matches := leafPattern.FindAllStringSubmatch(newick, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("tree has no leaves")
	}
	leaves := make([]leaf, 0, len(matches))
	for _, m := range matches {
		length, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("leaf %s: %w", m[1], err)
		}
		leaves = append(leaves, leaf{name: m[1], length: length})
	}
	return leaves, nil
}

// renderTree draws each leaf as a horizontal branch scaled to its length,
// joined by a vertical spine. The first leaf is the query and is highlighted.
// Output depends only on the newick string.
func renderTree(newick string) ([]byte, error) {
	leaves, err := parseLeaves(newick)
	if err != nil {
		return nil, err
	}
	maxLen := 0.0
	for _, l := range leaves {
		if l.length > maxLen {
			maxLen = l.length
		}
	}
	if maxLen == 0 {
		maxLen = 1
	}
	height := marginY*2 + rowHeight*len(leaves)
	img := image.NewRGBA(image.Rect(0, 0, imageWidth, height))
	fill(img, img.Bounds(), background)

	span := imageWidth - 2*marginX - markerWidth
	top := marginY + rowHeight/2
	bottom := top + rowHeight*(len(leaves)-1)
	fill(img, image.Rect(marginX, top, marginX+2, bottom+2), branch)
	for i, l := range leaves {
		y := top + rowHeight*i
		end := marginX + int(float64(span)*l.length/maxLen)
		if end < marginX+markerWidth {
			end = marginX + markerWidth
		}
		c := branch
		if i == 0 {
			c = query
		}
		fill(img, image.Rect(marginX, y, end, y+2), c)
		fill(img, image.Rect(end, y-3, end+markerWidth, y+5), c)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}
