package watermark

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const (
	// ProtectionTag is the fixed protection label carried in every payload.
	ProtectionTag = "ai-resistant"

	// TimestampLayout formats payload and metadata timestamps as ISO-8601
	// local time with microseconds.
	TimestampLayout = "2006-01-02T15:04:05.000000"
)

// Payload is the provenance record embedded into the pixels. Field order is
// the serialized key order.
type Payload struct {
	Creator     string `json:"creator"`
	Timestamp   string `json:"timestamp"`
	ContentHash string `json:"hash"`
	Protection  string `json:"protection"`
}

// BuildPayload assembles the payload for creator and timestamp. The content
// hash is the first 8 hex characters of md5(creator || timestamp).
func BuildPayload(creator, timestamp string) Payload {
	sum := md5.Sum([]byte(creator + timestamp))
	return Payload{
		Creator:     creator,
		Timestamp:   timestamp,
		ContentHash: hex.EncodeToString(sum[:])[:8],
		Protection:  ProtectionTag,
	}
}

// MarshalCompact returns the payload as compact JSON. Non-ASCII runes are
// written as \u escapes so every character fits one byte.
func (p Payload) MarshalCompact() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return asciiEscape(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// Bits serializes the payload to one 8-bit big-endian code per character.
// Each element of the result is 0 or 1.
func (p Payload) Bits() ([]byte, error) {
	data, err := p.MarshalCompact()
	if err != nil {
		return nil, err
	}
	return BytesToBits(data), nil
}

// BytesToBits expands data into a sequence of 0/1 values, most significant
// bit first.
func BytesToBits(data []byte) []byte {
	bits := make([]byte, 0, len(data)*8)
	for _, b := range data {
		for shift := 7; shift >= 0; shift-- {
			bits = append(bits, (b>>uint(shift))&1)
		}
	}
	return bits
}

func asciiEscape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r < utf8.RuneSelf {
			out = append(out, byte(r))
			continue
		}
		if r > 0xFFFF {
			r -= 0x10000
			out = fmt.Appendf(out, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
			continue
		}
		out = fmt.Appendf(out, `\u%04x`, r)
	}
	return out
}
