package catalog

// Cursor walks a catalog as an infinite cyclic sequence: track 0 follows the
// last track, in catalog order. A Cursor is not safe for concurrent use; the
// playback engine owns its cursor.
type Cursor struct {
	tracks []Track
	index  int
}

func NewCursor(tracks []Track) *Cursor {
	return &Cursor{tracks: tracks}
}

// Next selects the next track. It returns false when the catalog is empty.
func (c *Cursor) Next() (Track, bool) {
	if len(c.tracks) == 0 {
		return Track{}, false
	}

	// Loop back to the first track
	if c.index >= len(c.tracks) {
		c.index = 0
	}

	t := c.tracks[c.index]
	c.index++

	return t, true
}

// Len returns the catalog size.
func (c *Cursor) Len() int {
	return len(c.tracks)
}
