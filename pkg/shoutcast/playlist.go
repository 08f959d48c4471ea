package shoutcast

import (
	"fmt"
	"io"
)

// WriteM3U writes an extended M3U playlist pointing at streamURL.
func WriteM3U(w io.Writer, streamURL, title string) error {
	_, err := fmt.Fprintf(w, "#EXTM3U\n#EXTINF:-1,%s\n%s\n", title, streamURL)
	return err
}

// WritePLS writes a version 2 PLS playlist pointing at streamURL.
func WritePLS(w io.Writer, streamURL, title string) error {
	_, err := fmt.Fprintf(w,
		"[playlist]\nNumberOfEntries=1\nFile1=%s\nTitle1=%s\nLength1=-1\nVersion=2\n",
		streamURL, title)
	return err
}
