package watermark

import "image"

// EmbedBitPlane writes bits into the two least significant bits of every
// color channel, in row-major order starting at the top-left pixel. A 1 bit
// sets both low bits, a 0 bit clears them. The same sequence is written to
// R, G and B.
//
// Embedding is all-or-nothing: when the payload is longer than the pixel
// count the buffer is left untouched and false is returned.
func EmbedBitPlane(img *image.RGBA, bits []byte) bool {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if len(bits) == 0 || len(bits) > width*height {
		return false
	}

	for i, bit := range bits {
		offset := img.PixOffset(bounds.Min.X+i%width, bounds.Min.Y+i/width)
		low := uint8(0)
		if bit != 0 {
			low = 0x03
		}
		for c := 0; c < 3; c++ {
			img.Pix[offset+c] = (img.Pix[offset+c] & 0xFC) | low
		}
	}
	return true
}
