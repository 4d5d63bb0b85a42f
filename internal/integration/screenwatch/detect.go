// Package screenwatch implements the screen-capture integration: a
// ticker pulls frames from a capture backend and runs pixel detectors
// over configured regions to recover hits and health values from games
// that expose no other telemetry.
package screenwatch

import (
	"image"
)

// ROI is a normalized screen rectangle, 0..1 coordinates relative to the
// captured frame.
type ROI struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Bounds maps the normalized rectangle onto pixel coordinates of a frame.
func (r ROI) Bounds(frame image.Rectangle) image.Rectangle {
	fw := float64(frame.Dx())
	fh := float64(frame.Dy())
	rect := image.Rect(
		frame.Min.X+int(r.X*fw),
		frame.Min.Y+int(r.Y*fh),
		frame.Min.X+int((r.X+r.W)*fw),
		frame.Min.Y+int((r.Y+r.H)*fh),
	)
	return rect.Intersect(frame)
}

// RednessScore is the mean red-dominance over a rectangle: per pixel
// max(0, R-max(G,B))/255, averaged. A pure red region scores 1, anything
// grey or green-blue scores 0.
func RednessScore(img *image.RGBA, rect image.Rectangle) float64 {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return 0
	}
	var sum float64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := img.Pix[img.PixOffset(rect.Min.X, y):img.PixOffset(rect.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			r, g, b := int(row[i]), int(row[i+1]), int(row[i+2])
			gb := g
			if b > gb {
				gb = b
			}
			if d := r - gb; d > 0 {
				sum += float64(d) / 255
			}
		}
	}
	return sum / float64(rect.Dx()*rect.Dy())
}

// RGB is a reference colour for the health bar classifier.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

func (c RGB) dist(r, g, b uint8) int {
	return abs(int(c.R)-int(r)) + abs(int(c.G)-int(g)) + abs(int(c.B)-int(b))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// HealthFraction scans a health bar rectangle left to right. A pixel is
// filled when its L1 distance to filled is within tolerance and not
// greater than its distance to empty; a column is filled when at least
// rowFraction of its rows are. The first unfilled column marks the end of
// the bar.
func HealthFraction(img *image.RGBA, rect image.Rectangle, filled, empty RGB, tolerance int, rowFraction float64) float64 {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return 0
	}
	width := rect.Dx()
	height := rect.Dy()
	need := int(rowFraction * float64(height))
	if need < 1 {
		need = 1
	}
	for x := 0; x < width; x++ {
		filledRows := 0
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			i := img.PixOffset(rect.Min.X+x, y)
			r, g, b := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
			df := filled.dist(r, g, b)
			if df <= tolerance && df <= empty.dist(r, g, b) {
				filledRows++
			}
		}
		if filledRows < need {
			return float64(x) / float64(width)
		}
	}
	return 1
}

// binarize renders a rectangle into a bool grid: true where the grayscale
// value clears the threshold (or falls below it, when inverted).
func binarize(img *image.RGBA, rect image.Rectangle, threshold uint8, invert bool) [][]bool {
	rect = rect.Intersect(img.Bounds())
	grid := make([][]bool, rect.Dy())
	for y := range grid {
		grid[y] = make([]bool, rect.Dx())
		for x := range grid[y] {
			i := img.PixOffset(rect.Min.X+x, rect.Min.Y+y)
			r, g, b := int(img.Pix[i]), int(img.Pix[i+1]), int(img.Pix[i+2])
			gray := (r*299 + g*587 + b*114) / 1000
			on := gray >= int(threshold)
			if invert {
				on = !on
			}
			grid[y][x] = on
		}
	}
	return grid
}

// resizeNearest maps a bool grid onto w x h by nearest-neighbour sampling.
func resizeNearest(grid [][]bool, w, h int) [][]bool {
	srcH := len(grid)
	if srcH == 0 {
		return make([][]bool, h)
	}
	srcW := len(grid[0])
	out := make([][]bool, h)
	for y := range out {
		out[y] = make([]bool, w)
		sy := y * srcH / h
		for x := range out[y] {
			sx := x * srcW / w
			if srcW > 0 {
				out[y][x] = grid[sy][sx]
			}
		}
	}
	return out
}

// hamming counts mismatched pixels between a grid and a digit template of
// the same dimensions.
func hamming(grid [][]bool, tpl digitTemplate) int {
	d := 0
	for y := 0; y < templateH; y++ {
		for x := 0; x < templateW; x++ {
			if grid[y][x] != tpl.at(x, y) {
				d++
			}
		}
	}
	return d
}

// ReadDigits binarizes a rectangle, splits it into digits equal-width
// slices and matches each against the 0-9 templates. It returns ok=false
// when any slice's best Hamming distance exceeds hammingMax.
func ReadDigits(img *image.RGBA, rect image.Rectangle, digits int, threshold uint8, invert bool, hammingMax int) (int, bool) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() || digits < 1 || rect.Dx() < digits {
		return 0, false
	}
	grid := binarize(img, rect, threshold, invert)
	sliceW := rect.Dx() / digits

	value := 0
	for d := 0; d < digits; d++ {
		slice := make([][]bool, len(grid))
		for y := range grid {
			slice[y] = grid[y][d*sliceW : (d+1)*sliceW]
		}
		small := resizeNearest(slice, templateW, templateH)

		best, bestDigit := templateW*templateH+1, -1
		for digit, tpl := range digitTemplates {
			if h := hamming(small, tpl); h < best {
				best, bestDigit = h, digit
			}
		}
		if best > hammingMax {
			return 0, false
		}
		value = value*10 + bestDigit
	}
	return value, true
}
