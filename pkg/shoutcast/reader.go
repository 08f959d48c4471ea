package shoutcast

import (
	"io"
)

// MetadataCallbackFunc is called when the stream metadata changes.
type MetadataCallbackFunc func(m *Metadata)

// Reader strips metadata blocks from an ICY stream so only audio bytes are
// returned.
type Reader struct {
	r        io.Reader
	metaint  int
	pos      int
	metadata *Metadata
	callback MetadataCallbackFunc
}

func NewReader(r io.Reader, metaint int, callback MetadataCallbackFunc) *Reader {
	return &Reader{
		r:        r,
		metaint:  metaint,
		callback: callback,
	}
}

// Read returns audio bytes only. A metaint of zero or less means the stream
// carries no metadata and is passed through.
func (s *Reader) Read(buf []byte) (int, error) {
	if s.metaint <= 0 {
		return s.r.Read(buf)
	}

	if s.pos == s.metaint {
		if err := s.readMetadata(); err != nil {
			return 0, err
		}
		s.pos = 0
	}

	k := s.metaint - s.pos
	if k > len(buf) {
		k = len(buf)
	}

	n, err := s.r.Read(buf[:k])
	s.pos += n

	return n, err
}

// Metadata returns the last metadata seen, or nil.
func (s *Reader) Metadata() *Metadata {
	return s.metadata
}

func (s *Reader) readMetadata() error {
	var size [1]byte
	if _, err := io.ReadFull(s.r, size[:]); err != nil {
		return err
	}

	if size[0] == 0 {
		return nil
	}

	block := make([]byte, int(size[0])*metaBlockUnit)
	if _, err := io.ReadFull(s.r, block); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}

	if m := NewMetadata(block); !m.Equals(s.metadata) {
		s.metadata = m
		if s.callback != nil {
			s.callback(m)
		}
	}

	return nil
}
