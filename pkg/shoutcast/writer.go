package shoutcast

import (
	"io"
)

// Writer interleaves a metadata block after every metaint bytes of audio.
// The title is only sent again when it changes; otherwise an empty block is
// written.
type Writer struct {
	w       io.Writer
	metaint int
	title   func() string

	pos  int
	sent *Metadata
}

func NewWriter(w io.Writer, metaint int, title func() string) *Writer {
	return &Writer{
		w:       w,
		metaint: metaint,
		title:   title,
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	var written int

	for len(p) > 0 {
		k := w.metaint - w.pos
		if k > len(p) {
			k = len(p)
		}

		n, err := w.w.Write(p[:k])
		written += n
		w.pos += n
		if err != nil {
			return written, err
		}
		p = p[k:]

		if w.pos == w.metaint {
			if err := w.writeMetadata(); err != nil {
				return written, err
			}
			w.pos = 0
		}
	}

	return written, nil
}

func (w *Writer) writeMetadata() error {
	m := &Metadata{}
	if w.title != nil {
		m.StreamTitle = w.title()
	}

	if m.Equals(w.sent) {
		_, err := w.w.Write([]byte{0})
		return err
	}

	if _, err := w.w.Write(m.Bytes()); err != nil {
		return err
	}
	w.sent = m

	return nil
}
