package watermark

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const (
	overlayMargin      = 20
	overlayMinFontSize = 8
	overlayScale       = 25
)

// OverlayText is the copyright line drawn by the visible overlay.
func OverlayText(creator string) string {
	return fmt.Sprintf("© %s - AI Protected", creator)
}

// OverlayAnchors returns the top-left corners of the three overlay copies
// for a text box of tw x th on a w x h image: bottom-right, bottom-left and
// center.
func OverlayAnchors(w, h, tw, th int) []image.Point {
	return []image.Point{
		{X: w - tw - overlayMargin, Y: h - th - overlayMargin},
		{X: overlayMargin, Y: h - th - overlayMargin},
		{X: w/2 - tw/2, Y: h/2 - th/2},
	}
}

// DrawOverlay composites the copyright text in translucent white at the
// three anchors. opacity must be within [0, 1]. The buffer stays opaque.
func (e *Engine) DrawOverlay(img *image.RGBA, creator string, opacity float64) error {
	if !(opacity >= 0 && opacity <= 1) {
		return fmt.Errorf("visible opacity %.2f out of range [0, 1]", opacity)
	}

	bounds := img.Bounds()
	size := max(bounds.Dx(), bounds.Dy()) / overlayScale
	if size < overlayMinFontSize {
		size = overlayMinFontSize
	}

	face := e.overlayFace(float64(size))
	defer face.Close()

	text := OverlayText(creator)
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: uint8(math.Round(255 * opacity))}),
		Face: face,
	}

	metrics := face.Metrics()
	textWidth := drawer.MeasureString(text).Ceil()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()
	ascent := metrics.Ascent.Ceil()

	for _, p := range OverlayAnchors(bounds.Dx(), bounds.Dy(), textWidth, textHeight) {
		drawer.Dot = fixed.P(bounds.Min.X+p.X, bounds.Min.Y+p.Y+ascent)
		drawer.DrawString(text)
	}
	return nil
}
