package watermark

import (
	"image/color"
	"math/rand/v2"
	"testing"
)

func TestPerturbBoundaries(t *testing.T) {
	cases := []struct {
		name  string
		fill  uint8
		src   Source
		minIn int
		maxIn int
	}{
		{name: "black_max_noise", fill: 0, src: constSource(0.999999), minIn: 5, maxIn: 5},
		{name: "black_no_noise", fill: 0, src: constSource(0), minIn: 0, maxIn: 0},
		{name: "white_max_noise", fill: 255, src: constSource(0.999999), minIn: 255, maxIn: 255},
		{name: "white_random", fill: 255, src: rand.New(rand.NewPCG(1, 2)), minIn: 255, maxIn: 255},
		{name: "black_random", fill: 0, src: rand.New(rand.NewPCG(3, 4)), minIn: 0, maxIn: 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			img := solidRGBA(33, 17, color.RGBA{tc.fill, tc.fill, tc.fill, 255})
			Perturb(img, tc.src)

			for i, v := range img.Pix {
				if i%4 == 3 {
					if v != 255 {
						t.Fatalf("alpha changed at %d: %d", i, v)
					}
					continue
				}
				if int(v) < tc.minIn || int(v) > tc.maxIn {
					t.Fatalf("sample %d = %d outside [%d, %d]", i, v, tc.minIn, tc.maxIn)
				}
			}
		})
	}
}

func TestPerturbNeverDarkens(t *testing.T) {
	img := gradientRGBA(40, 40)
	before := cloneRGBA(img)

	Perturb(img, rand.New(rand.NewPCG(7, 7)))

	for i := range img.Pix {
		if img.Pix[i] < before.Pix[i] || int(img.Pix[i])-int(before.Pix[i]) > 5 {
			t.Fatalf("sample %d moved from %d to %d", i, before.Pix[i], img.Pix[i])
		}
	}
}

func TestPerturbDefaultSource(t *testing.T) {
	img := solidRGBA(4, 4, color.RGBA{250, 250, 250, 255})
	Perturb(img, nil)

	for i, v := range img.Pix {
		if i%4 != 3 && v < 250 {
			t.Fatalf("sample %d = %d below input", i, v)
		}
	}
}
