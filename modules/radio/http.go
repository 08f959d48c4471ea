package radio

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/zachfi/onair/pkg/catalog"
	"github.com/zachfi/onair/pkg/engine"
	"github.com/zachfi/onair/pkg/pacer"
	"github.com/zachfi/onair/pkg/shoutcast"
)

const streamPath = "/radio"

// RegisterHandlers adds the listener, playlist and control endpoints.
func (r *Radio) RegisterHandlers(router *mux.Router) {
	router.HandleFunc(streamPath, r.streamHandler).Methods(http.MethodGet)
	router.HandleFunc(streamPath+".m3u", r.playlistHandler(shoutcast.WriteM3U, "audio/x-mpegurl")).Methods(http.MethodGet)
	router.HandleFunc(streamPath+".pls", r.playlistHandler(shoutcast.WritePLS, "audio/x-scpls")).Methods(http.MethodGet)
	router.HandleFunc("/now-playing", r.nowPlayingHandler).Methods(http.MethodGet)
	router.HandleFunc("/control/{command}", r.controlHandler).Methods(http.MethodPost)
}

func (r *Radio) streamHandler(w http.ResponseWriter, req *http.Request) {
	e := r.engine.Load()
	if e == nil {
		http.Error(w, ErrNotReady.Error(), http.StatusServiceUnavailable)
		return
	}

	p := pacer.New(pacer.Config{
		BytesPerSecond: e.ClientRate(),
		Backlog:        r.cfg.ClientBacklog,
		Burst:          r.cfg.ChunkSize,
	})
	id := r.registry.Register(p)
	defer r.registry.Unregister(id)

	logger := r.logger.With("client", id)
	logger.Info("listener connected", "remote", req.RemoteAddr)

	metaint := 0
	if shoutcast.WantsMetadata(req) {
		metaint = r.cfg.IcyMetaInt
	}
	shoutcast.SetHeaders(w.Header(), r.station(e.Status()), metaint)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn("listener write failed", "err", err)
		return
	}

	var out io.Writer = &deadlineWriter{
		w:       w,
		rc:      rc,
		timeout: r.cfg.WriteTimeout,
	}
	if metaint > 0 {
		out = shoutcast.NewWriter(out, metaint, r.streamTitle)
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	go func() {
		select {
		case <-r.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := p.Drain(ctx, out)
	switch {
	case err == nil:
		logger.Info("listener evicted")
	case errors.Is(err, context.Canceled):
		logger.Info("listener disconnected")
	default:
		logger.Warn("listener write failed", "err", err)
	}
}

func (r *Radio) station(st engine.Status) shoutcast.Station {
	bitrate := r.cfg.DefaultBitrate
	if st.Track != nil {
		bitrate = st.Track.Bitrate
	}

	return shoutcast.Station{
		Name:        r.cfg.StationName,
		Genre:       r.cfg.StationGenre,
		Description: r.cfg.StationDescription,
		URL:         r.cfg.StationURL,
		Bitrate:     bitrate,
	}
}

func (r *Radio) streamTitle() string {
	if st := r.Status(); st.Track != nil {
		return st.Track.StreamTitle()
	}
	return r.cfg.StationName
}

func (r *Radio) playlistHandler(write func(io.Writer, string, string) error, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		scheme := "http"
		if req.TLS != nil {
			scheme = "https"
		}

		w.Header().Set("Content-Type", contentType)
		if err := write(w, scheme+"://"+req.Host+streamPath, r.cfg.StationName); err != nil {
			r.logger.Error("error writing playlist", "err", err)
		}
	}
}

type nowPlaying struct {
	State     engine.State   `json:"state"`
	Track     *catalog.Track `json:"track,omitempty"`
	Listeners int            `json:"listeners"`
}

func (r *Radio) nowPlayingHandler(w http.ResponseWriter, _ *http.Request) {
	r.writeStatus(w)
}

func (r *Radio) controlHandler(w http.ResponseWriter, req *http.Request) {
	command := mux.Vars(req)["command"]

	err := r.Control(req.Context(), command)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrUnknownCommand):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrNotReady), errors.Is(err, engine.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	r.writeStatus(w)
}

func (r *Radio) writeStatus(w http.ResponseWriter) {
	st := r.Status()

	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(nowPlaying{
		State:     st.State,
		Track:     st.Track,
		Listeners: r.registry.Len(),
	})
	if err != nil {
		r.logger.Error("error writing status", "err", err)
	}
}

// deadlineWriter bounds each write to a listener and flushes it straight to
// the peer.
type deadlineWriter struct {
	w       io.Writer
	rc      *http.ResponseController
	timeout time.Duration
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if d.timeout > 0 {
		err := d.rc.SetWriteDeadline(time.Now().Add(d.timeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return 0, err
		}
	}

	n, err := d.w.Write(p)
	if err != nil {
		return n, err
	}

	if err := d.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}

	return n, nil
}
