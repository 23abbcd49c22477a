package watermark

import "image"

const (
	tilePitch = 32
	tileBoost = 2
)

// StampTiles brightens a 1-pixel-tall strip, up to 32 pixels wide, at every
// grid point (i, j) on a 32 pixel pitch where (i+j) is a multiple of 64. All
// three channels gain +2, saturating at 255.
func StampTiles(img *image.RGBA) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	for i := 0; i < height; i += tilePitch {
		for j := 0; j < width; j += tilePitch {
			if (i+j)%(tilePitch*2) != 0 {
				continue
			}
			end := min(j+tilePitch, width)
			offset := img.PixOffset(bounds.Min.X+j, bounds.Min.Y+i)
			for x := j; x < end; x++ {
				for c := 0; c < 3; c++ {
					if v := int(img.Pix[offset+c]) + tileBoost; v > 255 {
						img.Pix[offset+c] = 255
					} else {
						img.Pix[offset+c] = uint8(v)
					}
				}
				offset += 4
			}
		}
	}
}
