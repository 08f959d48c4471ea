package catalog

import (
	"os"
	"strings"

	"github.com/dhowden/tag"
)

// readTags returns the title and artist stored in the file's tags, if any.
func readTags(path string) (title, artist string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", ""
	}

	return strings.TrimSpace(m.Title()), strings.TrimSpace(m.Artist())
}
