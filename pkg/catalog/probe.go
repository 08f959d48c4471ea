package catalog

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"

	"github.com/pkg/errors"
)

// ErrNoBitrate is returned by a Prober that could read the file but found no
// bit-rate in it.
var ErrNoBitrate = errors.New("no bitrate found")

// Prober determines the bit-rate of an audio file in bits per second.
type Prober interface {
	Probe(ctx context.Context, path string) (int, error)
}

// Chain tries each Prober in order and returns the first bit-rate found.
type Chain []Prober

func (c Chain) Probe(ctx context.Context, path string) (int, error) {
	err := ErrNoBitrate
	for _, p := range c {
		var bitrate int
		bitrate, err = p.Probe(ctx, path)
		if err == nil && bitrate > 0 {
			return bitrate, nil
		}
		if err == nil {
			err = ErrNoBitrate
		}
	}
	return 0, err
}

// FFProbe asks the ffprobe binary for the container bit-rate.
type FFProbe struct {
	// Path to the ffprobe binary. Defaults to "ffprobe" on $PATH.
	Path string
}

type ffprobeOutput struct {
	Format struct {
		BitRate string `json:"bit_rate"`
	} `json:"format"`
}

func (f FFProbe) Probe(ctx context.Context, path string) (int, error) {
	bin := f.Path
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path)

	out, err := cmd.Output()
	if err != nil {
		return 0, errors.Wrap(err, "ffprobe")
	}

	return parseFFProbe(out)
}

func parseFFProbe(out []byte) (int, error) {
	var data ffprobeOutput
	if err := json.Unmarshal(out, &data); err != nil {
		return 0, errors.Wrap(err, "failed to decode ffprobe output")
	}

	if data.Format.BitRate == "" {
		return 0, ErrNoBitrate
	}

	bitrate, err := strconv.Atoi(data.Format.BitRate)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot parse bitrate %q", data.Format.BitRate)
	}

	return bitrate, nil
}
