package watermark

import (
	"encoding/base64"
	"testing"
)

func TestProtectBase64(t *testing.T) {
	data := encodePNG(t, gradientRGBA(40, 40))
	raw := base64.StdEncoding.EncodeToString(data)
	eng := NewEngine(WithSource(constSource(0)))

	for name, input := range map[string]string{
		"plain":    raw,
		"data_url": "data:image/png;base64," + raw,
		"unpadded": base64.RawStdEncoding.EncodeToString(data),
	} {
		t.Run(name, func(t *testing.T) {
			out, report, err := eng.ProtectBase64(input, "Alice", "ts")
			if err != nil {
				t.Fatalf("ProtectBase64: %v", err)
			}
			if !report.TransformApplied {
				t.Fatalf("unexpected report %+v", report)
			}

			img, format, err := DecodeBase64Image(out)
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if format != "png" || img.Bounds().Dx() != 40 || img.Bounds().Dy() != 40 {
				t.Fatalf("output %s %v", format, img.Bounds())
			}
		})
	}
}

func TestDecodeBase64ImageErrors(t *testing.T) {
	if _, _, err := DecodeBase64Image("%%%"); err == nil {
		t.Fatalf("expected base64 error")
	}
	if _, _, err := DecodeBase64Image(base64.StdEncoding.EncodeToString([]byte("not an image"))); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, _, err := DecodeBase64Image(""); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
