package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MPEG-1 Layer III, 44.1kHz, no CRC.
func frameHeader(bitrateIdx byte) []byte {
	return []byte{0xFF, 0xFB, bitrateIdx<<4 | 0x00, 0x00}
}

func TestMPEGHeaderProbe(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.mp3")
	data := append([]byte{0x00, 0x01, 0x02}, frameHeader(9)...)
	data = append(data, make([]byte, 64)...)
	require.NoError(t, os.WriteFile(plain, data, 0o644))

	bitrate, err := MPEGHeader{}.Probe(context.Background(), plain)
	require.NoError(t, err)
	assert.Equal(t, 128000, bitrate)

	// ID3v2 tag of 20 bytes, containing a false sync, precedes the first frame
	tagged := filepath.Join(dir, "tagged.mp3")
	id3 := []byte{'I', 'D', '3', 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 20}
	body := make([]byte, 20)
	body[5], body[6] = 0xFF, 0xFF
	data = append(append(id3, body...), frameHeader(11)...)
	data = append(data, make([]byte, 64)...)
	require.NoError(t, os.WriteFile(tagged, data, 0o644))

	bitrate, err = MPEGHeader{}.Probe(context.Background(), tagged)
	require.NoError(t, err)
	assert.Equal(t, 192000, bitrate)
}

func TestMPEGHeaderProbeNoFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.mp3")
	require.NoError(t, os.WriteFile(path, make([]byte, 128), 0o644))

	_, err := MPEGHeader{}.Probe(context.Background(), path)
	assert.ErrorIs(t, err, ErrNoBitrate)
}

func TestFrameBitrateSkipsInvalidSync(t *testing.T) {
	// first sync has a reserved bit-rate index, the second is valid
	data := append([]byte{0xFF, 0xFB, 0xF0, 0x00}, frameHeader(5)...)
	bitrate, err := frameBitrate(data)
	require.NoError(t, err)
	assert.Equal(t, 64000, bitrate)
}

func TestParseFFProbe(t *testing.T) {
	bitrate, err := parseFFProbe([]byte(`{"format":{"filename":"a.mp3","bit_rate":"320000"}}`))
	require.NoError(t, err)
	assert.Equal(t, 320000, bitrate)

	_, err = parseFFProbe([]byte(`{"format":{}}`))
	assert.ErrorIs(t, err, ErrNoBitrate)

	_, err = parseFFProbe([]byte(`{"format":{"bit_rate":"fast"}}`))
	assert.Error(t, err)
}

type staticProber struct {
	bitrate int
	err     error
}

func (s staticProber) Probe(context.Context, string) (int, error) { return s.bitrate, s.err }

func TestChain(t *testing.T) {
	failing := staticProber{err: errors.New("no ffprobe")}

	bitrate, err := Chain{failing, staticProber{bitrate: 256000}}.Probe(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 256000, bitrate)

	_, err = Chain{failing, staticProber{}}.Probe(context.Background(), "x")
	assert.Error(t, err)

	_, err = Chain{}.Probe(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoBitrate)
}
