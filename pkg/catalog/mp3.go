package catalog

import (
	"context"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// MPEG audio bit-rate lookup (kbps), indexed by [MPEG-1, MPEG-2/2.5][layer I, II, III][index].
var bitrateTable = [2][3][16]int{
	{
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	},
	{
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
	},
}

const mpegScanSize = 8192

// MPEGHeader reads the bit-rate from the first MPEG audio frame header,
// skipping a leading ID3v2 tag. It needs no external tools, but reports the
// first frame's rate only, so VBR files come out approximate.
type MPEGHeader struct{}

func (MPEGHeader) Probe(_ context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var header [10]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0, errors.Wrap(err, "read header")
	}

	offset := int64(0)
	if string(header[:3]) == "ID3" {
		// Synchsafe integer, 7 bits per byte
		tagSize := int64(header[6]&0x7F)<<21 | int64(header[7]&0x7F)<<14 | int64(header[8]&0x7F)<<7 | int64(header[9]&0x7F)
		offset = 10 + tagSize
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	buf := make([]byte, mpegScanSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, err
	}

	return frameBitrate(buf[:n])
}

// frameBitrate scans data for the first valid frame header and decodes its bit-rate.
func frameBitrate(data []byte) (int, error) {
	for pos := findFrameSync(data); pos >= 0; {
		if pos+4 <= len(data) {
			if bitrate := decodeBitrate(binary.BigEndian.Uint32(data[pos : pos+4])); bitrate > 0 {
				return bitrate, nil
			}
		}

		next := findFrameSync(data[pos+1:])
		if next < 0 {
			break
		}
		pos += next + 1
	}

	return 0, ErrNoBitrate
}

// findFrameSync returns the position of the first MPEG frame sync word (11
// set bits: 0xFF followed by a byte with the top three bits set), or -1.
func findFrameSync(data []byte) int {
	for i := 0; i < len(data)-1; i++ {
		if data[i] == 0xFF && data[i+1]&0xE0 == 0xE0 {
			return i
		}
	}
	return -1
}

func decodeBitrate(hdr uint32) int {
	versionBits := (hdr >> 19) & 0x03
	layerBits := (hdr >> 17) & 0x03
	bitrateIdx := (hdr >> 12) & 0x0F
	sampleIdx := (hdr >> 10) & 0x03

	if bitrateIdx == 0 || bitrateIdx == 15 || sampleIdx == 3 {
		return 0
	}

	// version bits: 0=2.5, 1=reserved, 2=2, 3=1
	var versionIdx int
	switch versionBits {
	case 3:
		versionIdx = 0
	case 2, 0:
		versionIdx = 1
	default:
		return 0
	}

	// layer bits: 1=III, 2=II, 3=I
	var layerIdx int
	switch layerBits {
	case 3:
		layerIdx = 0
	case 2:
		layerIdx = 1
	case 1:
		layerIdx = 2
	default:
		return 0
	}

	return bitrateTable[versionIdx][layerIdx][bitrateIdx] * 1000
}
