package watermark

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
)

// DecodeBase64Image decodes a base64 image, padded or not and optionally
// wrapped in a data URL, and reports the detected format.
func DecodeBase64Image(input string) (image.Image, string, error) {
	raw := stripDataPrefix(input)

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		var rawErr error
		if data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "=")); rawErr != nil {
			return nil, "", fmt.Errorf("decode base64: %w", err)
		}
	}

	return DecodeImageBytes(data)
}

// EncodePNGToBase64 encodes an image as PNG and returns a base64 string.
func EncodePNGToBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ProtectBase64 applies the robust watermark to a base64-encoded image and
// returns the result as base64 PNG together with the pipeline report.
func (e *Engine) ProtectBase64(input, creator, timestamp string) (string, Report, error) {
	img, _, err := DecodeBase64Image(input)
	if err != nil {
		return "", Report{}, err
	}

	protected, report, err := e.Protect(img, creator, timestamp)
	if err != nil {
		return "", Report{}, err
	}

	output, err := EncodePNGToBase64(protected)
	if err != nil {
		return "", Report{}, err
	}
	return output, report, nil
}

func stripDataPrefix(input string) string {
	lower := strings.ToLower(input)
	if strings.HasPrefix(lower, "data:") {
		if idx := strings.Index(input, ","); idx != -1 {
			return input[idx+1:]
		}
	}
	return strings.TrimSpace(input)
}
