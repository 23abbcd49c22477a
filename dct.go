package watermark

import (
	"image"
	"math"
)

const (
	blockSize = 8

	// Coefficients biased per block, as row-major indexes into the 8x8
	// coefficient grid, and the magnitude applied to each.
	coeffA      = 3*blockSize + 3
	coeffB      = 4*blockSize + 4
	coeffShiftA = 8
	coeffShiftB = 6
)

// BlockTransform is a separable transform over one 8x8 block stored in
// row-major order. Inverse must undo Forward.
type BlockTransform interface {
	Forward(block *[64]float64)
	Inverse(block *[64]float64)
}

// DCT8 is the orthonormal 8x8 DCT-II and its inverse.
type DCT8 struct{}

var dctBasis = func() (c [blockSize][blockSize]float64) {
	for k := 0; k < blockSize; k++ {
		scale := math.Sqrt(2.0 / blockSize)
		if k == 0 {
			scale = math.Sqrt(1.0 / blockSize)
		}
		for n := 0; n < blockSize; n++ {
			c[k][n] = scale * math.Cos(float64(2*n+1)*float64(k)*math.Pi/(2*blockSize))
		}
	}
	return c
}()

// Forward computes C·B·Cᵀ in place.
func (DCT8) Forward(block *[64]float64) {
	var tmp [64]float64
	for u := 0; u < blockSize; u++ {
		for x := 0; x < blockSize; x++ {
			var sum float64
			for y := 0; y < blockSize; y++ {
				sum += dctBasis[u][y] * block[y*blockSize+x]
			}
			tmp[u*blockSize+x] = sum
		}
	}
	for u := 0; u < blockSize; u++ {
		for v := 0; v < blockSize; v++ {
			var sum float64
			for x := 0; x < blockSize; x++ {
				sum += tmp[u*blockSize+x] * dctBasis[v][x]
			}
			block[u*blockSize+v] = sum
		}
	}
}

// Inverse computes Cᵀ·F·C in place.
func (DCT8) Inverse(block *[64]float64) {
	var tmp [64]float64
	for y := 0; y < blockSize; y++ {
		for v := 0; v < blockSize; v++ {
			var sum float64
			for u := 0; u < blockSize; u++ {
				sum += dctBasis[u][y] * block[u*blockSize+v]
			}
			tmp[y*blockSize+v] = sum
		}
	}
	for y := 0; y < blockSize; y++ {
		for x := 0; x < blockSize; x++ {
			var sum float64
			for v := 0; v < blockSize; v++ {
				sum += tmp[y*blockSize+v] * dctBasis[v][x]
			}
			block[y*blockSize+x] = sum
		}
	}
}

// EmbedTransform biases two mid-frequency DCT coefficients of every full 8x8
// luma block according to the payload bit selected for that block. Bits wrap
// around when there are more blocks than bits. Partial blocks at the right
// and bottom edges are left alone.
//
// It reports whether the stage ran: a nil transform, an empty payload or an
// image without a single full block leave the buffer unchanged and return
// false.
func EmbedTransform(img *image.RGBA, bits []byte, t BlockTransform) bool {
	if t == nil || len(bits) == 0 {
		return false
	}

	bounds := img.Bounds()
	cols, rows := bounds.Dx()/blockSize, bounds.Dy()/blockSize
	if cols == 0 || rows == 0 {
		return false
	}

	region := image.Rect(0, 0, cols*blockSize, rows*blockSize).Add(bounds.Min)
	planes := splitLumaChroma(img, region)

	var block [64]float64
	for br := 0; br < rows; br++ {
		for bc := 0; bc < cols; bc++ {
			planes.loadBlock(&block, br, bc)
			t.Forward(&block)
			biasCoefficients(&block, bits[(br*cols+bc)%len(bits)])
			t.Inverse(&block)
			planes.storeBlock(&block, br, bc)
		}
	}

	planes.merge(img, region)
	return true
}

func biasCoefficients(block *[64]float64, bit byte) {
	if bit != 0 {
		block[coeffA] += coeffShiftA
		block[coeffB] += coeffShiftB
		return
	}
	block[coeffA] -= coeffShiftA
	block[coeffB] -= coeffShiftB
}

// lumaChroma holds a luma plane and two color-difference planes for a region.
type lumaChroma struct {
	stride    int
	y, cb, cr []float64
}

// splitLumaChroma converts region to Y = 0.299R + 0.587G + 0.114B with
// Cb = B - Y and Cr = R - Y, kept in float so the round trip is exact.
func splitLumaChroma(img *image.RGBA, region image.Rectangle) *lumaChroma {
	w, h := region.Dx(), region.Dy()
	p := &lumaChroma{
		stride: w,
		y:      make([]float64, w*h),
		cb:     make([]float64, w*h),
		cr:     make([]float64, w*h),
	}
	for row := 0; row < h; row++ {
		offset := img.PixOffset(region.Min.X, region.Min.Y+row)
		for col := 0; col < w; col++ {
			r := float64(img.Pix[offset])
			g := float64(img.Pix[offset+1])
			b := float64(img.Pix[offset+2])
			luma := 0.299*r + 0.587*g + 0.114*b

			i := row*w + col
			p.y[i] = luma
			p.cb[i] = b - luma
			p.cr[i] = r - luma
			offset += 4
		}
	}
	return p
}

// merge writes the planes back as RGB, rounding and clamping each sample.
func (p *lumaChroma) merge(img *image.RGBA, region image.Rectangle) {
	for row := 0; row < region.Dy(); row++ {
		offset := img.PixOffset(region.Min.X, region.Min.Y+row)
		for col := 0; col < region.Dx(); col++ {
			i := row*p.stride + col
			luma := p.y[i]
			r := luma + p.cr[i]
			b := luma + p.cb[i]
			g := (luma - 0.299*r - 0.114*b) / 0.587

			img.Pix[offset] = clampByte(r)
			img.Pix[offset+1] = clampByte(g)
			img.Pix[offset+2] = clampByte(b)
			offset += 4
		}
	}
}

func (p *lumaChroma) loadBlock(block *[64]float64, br, bc int) {
	for y := 0; y < blockSize; y++ {
		start := (br*blockSize+y)*p.stride + bc*blockSize
		copy(block[y*blockSize:(y+1)*blockSize], p.y[start:start+blockSize])
	}
}

// storeBlock writes block into the luma plane clamped to [0, 255].
func (p *lumaChroma) storeBlock(block *[64]float64, br, bc int) {
	for y := 0; y < blockSize; y++ {
		start := (br*blockSize+y)*p.stride + bc*blockSize
		for x := 0; x < blockSize; x++ {
			p.y[start+x] = math.Max(0, math.Min(255, block[y*blockSize+x]))
		}
	}
}
