package nvr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// overlayJPEGQuality is the re-encode quality for the published per-iteration
// camera image.
const overlayJPEGQuality = 75

var (
	zoneOverlayColor   = color.RGBA{255, 255, 0, 255}   // yellow
	motionOverlayColor = color.RGBA{0, 128, 255, 255}   // blue
	objectOverlayColor = color.RGBA{255, 0, 0, 255}      // red
)

// renderOverlay decodes jpegData, draws the zone polygons, the motion
// indicator (when motionFrame is non-nil), and the object boxes/labels from
// objFrame, and re-encodes the result at overlayJPEGQuality. It returns the
// original bytes unchanged if jpegData doesn't decode as a JPEG, since the
// published image is best-effort annotation, not a required transform.
func renderOverlay(jpegData []byte, objFrame, motionFrame *Frame, zones []Zone) []byte {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return jpegData
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	if motionFrame != nil {
		drawMotionIndicator(rgba, motionFrame.Contours)
	}

	for _, z := range zones {
		drawPolygon(rgba, z.Polygon, zoneOverlayColor)
	}

	if objFrame != nil {
		for _, obj := range objFrame.Objects {
			drawObjectBox(rgba, obj)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: overlayJPEGQuality}); err != nil {
		return jpegData
	}
	return buf.Bytes()
}

// drawMotionIndicator stands in for a motion mask/contour overlay: the
// motion analyzer only reports aggregate counts (MotionContours has no
// contour geometry), so there is nothing to trace a polygon from. A corner
// banner with the aggregate counts is the closest faithful rendering.
func drawMotionIndicator(img *image.RGBA, contours MotionContours) {
	if contours.Items <= 0 {
		return
	}
	label := fmt.Sprintf("motion x%d max=%.0f", contours.Items, contours.MaxArea)
	drawLabel(img, 4, 16, label, motionOverlayColor)
}

// drawPolygon draws the closed outline connecting poly's vertices in order.
func drawPolygon(img *image.RGBA, poly []Point, c color.RGBA) {
	if len(poly) < 2 {
		return
	}
	for i := range poly {
		a := poly[i]
		b := poly[(i+1)%len(poly)]
		drawLine(img, int(a.X), int(a.Y), int(b.X), int(b.Y), c)
	}
}

// drawLine draws a Bresenham line from (x0,y0) to (x1,y1).
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	bounds := img.Bounds()
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		if x0 >= bounds.Min.X && x0 < bounds.Max.X && y0 >= bounds.Min.Y && y0 < bounds.Max.Y {
			img.Set(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			break
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

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// drawObjectBox draws obj's bounding box and a "label confidence%" tag.
func drawObjectBox(img *image.RGBA, obj DetectedObject) {
	x, y := int(obj.BBox.X1), int(obj.BBox.Y1)
	w, h := int(obj.BBox.X2-obj.BBox.X1), int(obj.BBox.Y2-obj.BBox.Y1)
	if w <= 0 || h <= 0 {
		return
	}
	drawBox(img, x, y, w, h, objectOverlayColor, 2)
	label := fmt.Sprintf("%s %.0f%%", obj.Label, obj.Confidence*100)
	drawLabel(img, x, y-5, label, objectOverlayColor)
}

// drawBox draws a rectangle outline of the given thickness.
func drawBox(img *image.RGBA, x, y, w, h int, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	for t := 0; t < thickness; t++ {
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			if y+t >= 0 && y+t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+t, c)
			}
			if y+h-t >= 0 && y+h-t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+h-t, c)
			}
		}
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			if x+t >= 0 && x+t < bounds.Max.X && j >= 0 {
				img.Set(x+t, j, c)
			}
			if x+w-t >= 0 && x+w-t < bounds.Max.X && j >= 0 {
				img.Set(x+w-t, j, c)
			}
		}
	}
}

// drawLabel draws label's text at (x, y) over a background box whose
// pixels are overwritten (not blended) with semi-transparent black,
// clamped onto the image.
func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	bgColor := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			px, py := x+dx, y+dy
			if px >= 0 && px < img.Bounds().Max.X && py >= 0 && py < img.Bounds().Max.Y {
				img.Set(px, py, bgColor)
			}
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
