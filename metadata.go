package watermark

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// ToolName identifies this software in written metadata.
	ToolName = "AI-Protected Image Watermarking App"

	protectionLevel = "Enhanced"
)

// Provenance is the record attached to the output container's metadata.
type Provenance struct {
	Creator   string
	Consent   Consent
	Timestamp time.Time
	Tool      string
	Note      string
}

// NewProvenance builds a record stamped with ts and the tool name.
func NewProvenance(creator string, consent Consent, note string, ts time.Time) Provenance {
	return Provenance{
		Creator:   creator,
		Consent:   consent,
		Timestamp: ts,
		Tool:      ToolName,
		Note:      note,
	}
}

// Copyright is the short copyright notice for the creator.
func (p Provenance) Copyright() string {
	return "© " + p.Creator
}

// MarshalJSON writes the record with the field names used in text chunks.
func (p Provenance) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Creator        string `json:"Creator"`
		Copyright      string `json:"Copyright"`
		Consent        string `json:"AI_Training_Consent"`
		Date           string `json:"Watermark_Date"`
		Tool           string `json:"Watermark_Tool"`
		Protection     string `json:"Protection_Level"`
		AdditionalInfo string `json:"Additional_Info"`
	}{
		Creator:        p.Creator,
		Copyright:      p.Copyright(),
		Consent:        string(p.Consent),
		Date:           p.Timestamp.Format(TimestampLayout),
		Tool:           p.Tool,
		Protection:     protectionLevel,
		AdditionalInfo: p.Note,
	})
}

// Tagger attaches a provenance record to an encoded image of one format.
type Tagger interface {
	Tag(encoded []byte, p Provenance) ([]byte, error)
}

// TagResult reports whether metadata was attached and, if not, why.
type TagResult struct {
	Applied bool
	Reason  string
}

var taggers = map[string]Tagger{
	FormatJPEG: exifTagger{},
	FormatPNG:  textChunkTagger{},
}

// TaggerFor returns the tagger for an output format.
func TaggerFor(format string) (Tagger, bool) {
	t, ok := taggers[format]
	return t, ok
}

// ApplyTags attaches p to encoded. Failures are not errors: the original
// bytes are returned together with the reason.
func ApplyTags(encoded []byte, format string, p Provenance) ([]byte, TagResult) {
	tagger, ok := TaggerFor(format)
	if !ok {
		return encoded, TagResult{Reason: fmt.Sprintf("no tagger for format %q", format)}
	}

	tagged, err := tagger.Tag(encoded, p)
	if err != nil {
		return encoded, TagResult{Reason: err.Error()}
	}
	return tagged, TagResult{Applied: true}
}
