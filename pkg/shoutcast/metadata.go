package shoutcast

import (
	"bytes"
	"strings"
)

// Metadata blocks are sent as a length byte followed by length*16 bytes.
const (
	metaBlockUnit = 16
	maxMetaLen    = 255 * metaBlockUnit
)

// Metadata is the in-band stream metadata.
type Metadata struct {
	StreamTitle string
	StreamURL   string
}

// NewMetadata parses a metadata block with its NUL padding.
func NewMetadata(b []byte) *Metadata {
	s := string(bytes.TrimRight(b, "\x00"))
	return &Metadata{
		StreamTitle: field(s, "StreamTitle"),
		StreamURL:   field(s, "StreamUrl"),
	}
}

func field(s, key string) string {
	start := strings.Index(s, key+"='")
	if start < 0 {
		return ""
	}
	s = s[start+len(key)+2:]

	end := strings.Index(s, "';")
	if end < 0 {
		return strings.TrimSuffix(s, "'")
	}
	return s[:end]
}

// Equals compares two Metadata, nil being equal only to nil.
func (m *Metadata) Equals(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	return *m == *other
}

// Bytes encodes the metadata as a block including its length byte. Text
// beyond the largest encodable block is cut off.
func (m *Metadata) Bytes() []byte {
	var text strings.Builder
	text.WriteString("StreamTitle='" + m.StreamTitle + "';")
	if m.StreamURL != "" {
		text.WriteString("StreamUrl='" + m.StreamURL + "';")
	}

	payload := []byte(text.String())
	if len(payload) > maxMetaLen {
		payload = payload[:maxMetaLen]
	}

	blocks := (len(payload) + metaBlockUnit - 1) / metaBlockUnit
	out := make([]byte, 1+blocks*metaBlockUnit)
	out[0] = byte(blocks)
	copy(out[1:], payload)

	return out
}
