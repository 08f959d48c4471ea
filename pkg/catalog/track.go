package catalog

// Track is one playable audio file. Tracks are immutable once loaded.
type Track struct {
	Path    string `json:"path"`
	Bitrate int    `json:"bitrate"` // bits per second
	Title   string `json:"title,omitempty"`
	Artist  string `json:"artist,omitempty"`
}

// ByteRate returns the playback speed of the track in bytes per second.
func (t Track) ByteRate() float64 {
	return float64(t.Bitrate) / 8
}

// StreamTitle formats the track the way ICY clients display it.
func (t Track) StreamTitle() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}
