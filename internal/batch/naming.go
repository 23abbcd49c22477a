package batch

import (
	"path/filepath"
	"strings"

	watermark "github.com/gcslaoli/provenance-watermark-go"
)

const outputSuffix = "_ai_protected"

// OutputName derives the output file name and format from an upload name:
// <stem>_ai_protected.<ext>. The stem defaults to "image" and unknown
// extensions are written as PNG.
func OutputName(filename string) (name, format, ext string) {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))

	stem, rawExt := "", base
	if i := strings.LastIndex(base, "."); i >= 0 {
		stem, rawExt = base[:i], base[i+1:]
	}
	if stem == "" {
		stem = "image"
	}

	format, ext = watermark.FormatForExt(strings.ToLower(rawExt))
	return stem + outputSuffix + "." + ext, format, ext
}

// ContentTypeFor returns the MIME type of an output format.
func ContentTypeFor(format string) string {
	if format == watermark.FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}
