package watermark

import (
	"bytes"
	"errors"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

const (
	exifTimeLayout = "2006:01:02 15:04:05"

	// app1Overhead is the marker length field plus the "Exif\0\0" prefix.
	app1Overhead = 2 + 6
	maxSegment   = 0xFFFF
)

// exifTagger writes the provenance record into the JPEG EXIF segment,
// replacing any existing one. A new segment goes right after SOI.
type exifTagger struct{}

func (exifTagger) Tag(encoded []byte, p Provenance) ([]byte, error) {
	if len(encoded) < 2 || encoded[0] != 0xFF || encoded[1] != 0xD8 {
		return nil, errors.New("exif: not a JPEG stream")
	}

	ib, err := buildExif(p)
	if err != nil {
		return nil, err
	}
	raw, err := exif.NewIfdByteEncoder().EncodeToExif(ib)
	if err != nil {
		return nil, fmt.Errorf("exif: encode: %w", err)
	}
	if n := app1Overhead + len(raw); n > maxSegment {
		return nil, fmt.Errorf("exif: segment of %d bytes exceeds %d", n, maxSegment)
	}

	parsed, err := jpegstructure.NewJpegMediaParser().ParseBytes(encoded)
	if err != nil {
		return nil, fmt.Errorf("exif: parse jpeg: %w", err)
	}
	sl, ok := parsed.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("exif: unexpected media context %T", parsed)
	}
	if err := sl.SetExif(ib); err != nil {
		return nil, fmt.Errorf("exif: set segment: %w", err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("exif: write jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// buildExif lays out IFD0 (document, software, artist, copyright and the
// optional description) plus the Exif sub-IFD carrying DateTimeOriginal.
func buildExif(p Provenance) (*exif.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("exif: ifd mapping: %w", err)
	}
	ib := exif.NewIfdBuilder(im, exif.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)

	ifd0 := [][2]string{
		{"DocumentName", fmt.Sprintf("AI_Consent:%s_Protected", p.Consent)},
		{"Software", p.Tool},
		{"Artist", p.Creator},
		{"Copyright", p.Copyright() + " - AI Protected"},
	}
	if p.Note != "" {
		ifd0 = append(ifd0, [2]string{"ImageDescription", p.Note})
	}
	for _, tag := range ifd0 {
		if err := ib.AddStandardWithName(tag[0], tag[1]); err != nil {
			return nil, fmt.Errorf("exif: %s: %w", tag[0], err)
		}
	}

	exifIb, err := exif.GetOrCreateIbFromRootIb(ib, "IFD/Exif")
	if err != nil {
		return nil, fmt.Errorf("exif: sub-ifd: %w", err)
	}
	if err := exifIb.AddStandardWithName("DateTimeOriginal", p.Timestamp.Format(exifTimeLayout)); err != nil {
		return nil, fmt.Errorf("exif: DateTimeOriginal: %w", err)
	}
	return ib, nil
}
