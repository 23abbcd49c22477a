package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// ErrUndecodable marks input bytes that are not a supported image.
var ErrUndecodable = errors.New("undecodable image")

// ProtectBytes decodes raw image bytes, runs the marks selected by settings
// and re-encodes the result in format with provenance metadata attached.
// ts stamps both the payload and the metadata. Metadata failures are reported
// in the TagResult, never as an error.
func (e *Engine) ProtectBytes(data []byte, format, creator string, ts time.Time, settings Settings) ([]byte, Report, TagResult, error) {
	img, _, err := DecodeImageBytes(data)
	if err != nil {
		return nil, Report{}, TagResult{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	protected, report, err := e.Apply(img, creator, ts.Format(TimestampLayout), settings)
	if err != nil {
		return nil, Report{}, TagResult{}, err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, protected, format); err != nil {
		return nil, Report{}, TagResult{}, fmt.Errorf("encode %s: %w", format, err)
	}

	prov := NewProvenance(creator, settings.Consent, settings.AdditionalInfo, ts)
	out, tag := ApplyTags(buf.Bytes(), format, prov)
	if !tag.Applied {
		e.logger.Warn("metadata not attached", "format", format, "reason", tag.Reason)
	}
	return out, report, tag, nil
}
