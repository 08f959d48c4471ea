package shoutcast

import (
	"net/http"
	"strconv"
)

// Station describes the stream in the icy-* response headers.
type Station struct {
	Name        string
	Genre       string
	Description string
	URL         string
	// Bitrate in bits per second.
	Bitrate int
}

// SetHeaders writes the station headers. icy-metaint is only advertised when
// metaint is positive.
func SetHeaders(h http.Header, s Station, metaint int) {
	h.Set("Content-Type", "audio/mpeg")
	h.Set("Cache-Control", "no-cache, no-store")
	h.Set("icy-pub", "0")

	if s.Name != "" {
		h.Set("icy-name", s.Name)
	}
	if s.Genre != "" {
		h.Set("icy-genre", s.Genre)
	}
	if s.Description != "" {
		h.Set("icy-description", s.Description)
	}
	if s.URL != "" {
		h.Set("icy-url", s.URL)
	}
	if s.Bitrate > 0 {
		h.Set("icy-br", strconv.Itoa(s.Bitrate/1000))
	}
	if metaint > 0 {
		h.Set("icy-metaint", strconv.Itoa(metaint))
	}
}

// WantsMetadata reports whether the listener asked for in-band metadata.
func WantsMetadata(r *http.Request) bool {
	return r.Header.Get("Icy-MetaData") == "1"
}
