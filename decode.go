package watermark

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	// Register common decoders, including WebP via x/image/webp.
	_ "golang.org/x/image/webp"
	_ "image/gif"
)

// Output formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// jpegQuality matches the quality used for re-encoded uploads.
const jpegQuality = 95

// Decode reads an image from the reader, returning the decoded image and the
// detected format string ("png", "jpeg", "webp", etc.).
func Decode(r io.Reader) (image.Image, string, error) {
	return image.Decode(r)
}

// DecodeImageBytes decodes an in-memory image.
func DecodeImageBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}
	return Decode(bytes.NewReader(data))
}

// EncodePNG writes the provided image to the writer as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// Encode writes img in format, which must be FormatPNG or FormatJPEG.
func Encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case FormatPNG:
		return EncodePNG(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// FormatForExt maps a lowercase file extension (without the dot) to an
// output format and the extension to write. Unknown extensions fall back to
// PNG.
func FormatForExt(ext string) (format, outExt string) {
	switch ext {
	case "jpg", "jpeg":
		return FormatJPEG, ext
	case "png":
		return FormatPNG, ext
	}
	return FormatPNG, "png"
}
