package watermark

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
)

const pngMetadataKeyword = "metadata"

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// textChunkTagger stores the provenance record as JSON in an iTXt chunk
// placed just before IEND.
type textChunkTagger struct{}

func (textChunkTagger) Tag(encoded []byte, p Provenance) ([]byte, error) {
	if !bytes.HasPrefix(encoded, pngSignature) {
		return nil, errors.New("png: missing signature")
	}

	text, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("png: encode metadata: %w", err)
	}

	parsed, err := pngstructure.NewPngMediaParser().ParseBytes(encoded)
	if err != nil {
		return nil, fmt.Errorf("png: parse chunks: %w", err)
	}
	cs, ok := parsed.(*pngstructure.ChunkSlice)
	if !ok {
		return nil, fmt.Errorf("png: unexpected media context %T", parsed)
	}

	chunks := cs.Chunks()
	end := slices.IndexFunc(chunks, func(c *pngstructure.Chunk) bool { return c.Type == "IEND" })
	if end < 0 {
		return nil, errors.New("png: IEND chunk not found")
	}

	data := iTXtData(pngMetadataKeyword, text)
	chunk := &pngstructure.Chunk{Type: "iTXt", Length: uint32(len(data)), Data: data}
	chunk.UpdateCrc32()

	var buf bytes.Buffer
	if err := pngstructure.NewChunkSlice(slices.Insert(slices.Clone(chunks), end, chunk)).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("png: write chunks: %w", err)
	}
	return buf.Bytes(), nil
}

// iTXtData builds an uncompressed international text chunk body with no
// language tag.
func iTXtData(keyword string, text []byte) []byte {
	data := make([]byte, 0, len(keyword)+5+len(text))
	data = append(data, keyword...)
	data = append(data, 0, 0, 0, 0, 0)
	return append(data, text...)
}
