// Package render draws pose-skeleton overlays. The output is deterministic:
// identical image bytes and keypoints always produce identical overlay bytes.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"

	"github.com/tiger/pose-feedback-pipeline/internal/normalize"
)

// MimeType is the encoding of every rendered overlay.
const MimeType = "image/jpeg"

// minConfidence drops landmarks the detector was unsure about.
const minConfidence = 0.2

// cocoEdges connects COCO-indexed landmarks into limbs.
var cocoEdges = [][2]int{
	{5, 7}, {7, 9}, {6, 8}, {8, 10}, {5, 6}, {11, 12},
	{5, 11}, {6, 12}, {11, 13}, {13, 15}, {12, 14}, {14, 16}, {0, 5}, {0, 6},
}

var overlayColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Skeleton decodes the source image, draws keypoints and limb edges over it,
// and re-encodes the composite as JPEG.
func Skeleton(source []byte, keypoints []normalize.Keypoint) ([]byte, error) {
	decoded, _, err := image.Decode(bytes.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	bounds := decoded.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, decoded, bounds.Min, draw.Src)

	for _, kp := range keypoints {
		if kp.Confidence < minConfidence {
			continue
		}
		drawDot(canvas, int(kp.X), int(kp.Y))
	}
	for _, edge := range cocoEdges {
		a, b := edge[0], edge[1]
		if a >= len(keypoints) || b >= len(keypoints) {
			continue
		}
		ka, kb := keypoints[a], keypoints[b]
		if ka.Confidence < minConfidence || kb.Confidence < minConfidence {
			continue
		}
		drawLine(canvas, int(ka.X), int(ka.Y), int(kb.X), int(kb.Y))
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, canvas, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode overlay: %w", err)
	}
	return out.Bytes(), nil
}

func drawDot(canvas *image.RGBA, x, y int) {
	for dx := -2; dx < 2; dx++ {
		for dy := -2; dy < 2; dy++ {
			setPixel(canvas, x+dx, y+dy)
		}
	}
}

// drawLine rasterizes with Bresenham's algorithm.
func drawLine(canvas *image.RGBA, x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	sx := 1
	if x0 >= x1 {
		sx = -1
	}
	dy := -abs(y1 - y0)
	sy := 1
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy
	for {
		setPixel(canvas, x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func setPixel(canvas *image.RGBA, x, y int) {
	if image.Pt(x, y).In(canvas.Bounds()) {
		canvas.SetRGBA(x, y, overlayColor)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
