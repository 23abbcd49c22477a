package batch

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
)

// ArchiveName is the download name of a multi-image result.
const ArchiveName = "ai_protected_images.zip"

// WriteArchive packs outputs into a zip stream, one stored entry per output
// in input order. Each entry comment carries the output's content digest.
func WriteArchive(w io.Writer, outputs []Output, modified time.Time) error {
	zw := zip.NewWriter(w)
	for _, out := range outputs {
		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     out.Name,
			Method:   zip.Store,
			Modified: modified,
			Comment:  "blake3:" + out.Digest,
		})
		if err != nil {
			return fmt.Errorf("add %s: %w", out.Name, err)
		}
		if _, err := entry.Write(out.Data); err != nil {
			return fmt.Errorf("write %s: %w", out.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

// Body is the response body for a result: the raw image for a single
// output, a zip archive otherwise.
type Body struct {
	Filename    string
	ContentType string
	Digest      string
	Data        []byte
}

// Package builds the response body for res.
func Package(res *Result) (Body, error) {
	switch len(res.Outputs) {
	case 0:
		return Body{}, fmt.Errorf("no outputs to package")
	case 1:
		out := res.Outputs[0]
		return Body{
			Filename:    out.Name,
			ContentType: out.ContentType,
			Digest:      out.Digest,
			Data:        out.Data,
		}, nil
	}

	var buf bytes.Buffer
	if err := WriteArchive(&buf, res.Outputs, res.Timestamp); err != nil {
		return Body{}, err
	}
	return Body{
		Filename:    ArchiveName,
		ContentType: "application/zip",
		Digest:      digest(buf.Bytes()),
		Data:        buf.Bytes(),
	}, nil
}
