// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dmdsrv serves DMD recordings over HTTP.
package dmdsrv // import "sbinet.org/x/dmd/dmdsrv"

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/plot/vg"
	"sbinet.org/x/dmd"
	"sbinet.org/x/dmd/internal/config"
)

var errOneChannel = errors.New("dmdsrv: exactly one channel is needed")

type Server struct {
	mux *http.ServeMux
	log *slog.Logger
	reg *prometheus.Registry
	met *metrics

	mu   sync.Mutex // serializes accesses to the readers
	ids  []string
	mgrs map[string]*manager

	root string
	tmpl *template.Template
	plot plotOptions
}

type Option func(srv *Server)

// WithLogger sets the logger of the server.
func WithLogger(log *slog.Logger) Option {
	return func(srv *Server) {
		srv.log = log
	}
}

// WithRegistry sets the registry of the server metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(srv *Server) {
		srv.reg = reg
	}
}

// WithPlotSize sets the size of the generated plots.
func WithPlotSize(width, height vg.Length) Option {
	return func(srv *Server) {
		srv.plot.width = width
		srv.plot.height = height
	}
}

// WithMaxPoints limits the number of points drawn per plot.
func WithMaxPoints(n int) Option {
	return func(srv *Server) {
		srv.plot.maxPoints = n
	}
}

// NewServer returns a server for the provided recordings, keyed by id,
// with all handlers under root.
// The server takes ownership of the readers.
func NewServer(root string, recs map[string]*dmd.Reader, opts ...Option) (*Server, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("could not create server: no recording")
	}

	srv := &Server{
		mux:  http.NewServeMux(),
		log:  slog.Default(),
		mgrs: make(map[string]*manager, len(recs)),
		root: strings.TrimRight(root, "/") + "/",
		tmpl: template.Must(template.New("dmd").Parse(page)),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.reg == nil {
		srv.reg = prometheus.NewRegistry()
	}
	srv.met = newMetrics(srv.reg)

	for id, r := range recs {
		srv.ids = append(srv.ids, id)
		srv.mgrs[id] = newManager(id, r)
	}
	sort.Strings(srv.ids)

	srv.mux.HandleFunc(srv.root, srv.met.wrap("root", srv.handleRoot))
	srv.mux.HandleFunc(srv.root+"favicon.ico", func(w http.ResponseWriter, r *http.Request) {})
	srv.mux.HandleFunc(srv.root+"plot", srv.met.wrap("plot", srv.handlePlot))
	srv.mux.HandleFunc(srv.root+"api", srv.met.wrap("api", srv.handleAPI))
	srv.mux.HandleFunc(srv.root+"api/data", srv.met.wrap("data", srv.handleData))
	srv.mux.HandleFunc(srv.root+"api/reduced", srv.met.wrap("reduced", srv.handleReduced))
	srv.mux.Handle(srv.root+"metrics", promhttp.HandlerFor(srv.reg, promhttp.HandlerOpts{}))

	return srv, nil
}

// Open opens the recordings listed in the configuration with the provided
// reader API, and returns a server for them.
func Open(cfg *config.Config, api dmd.API, log *slog.Logger) (*Server, error) {
	recs := make(map[string]*dmd.Reader, len(cfg.Recordings))
	for _, rec := range cfg.Recordings {
		r, err := dmd.OpenWith(api, rec.Path)
		if err != nil {
			for _, r := range recs {
				_ = r.Close()
			}
			return nil, fmt.Errorf("could not open recording %q: %w", rec.ID, err)
		}
		log.Info("opened recording", "id", rec.ID, "file", rec.Path, "channels", len(r.Channels()))
		recs[rec.ID] = r
	}

	srv, err := NewServer(
		cfg.Server.Root, recs,
		WithLogger(log),
		WithPlotSize(vg.Length(cfg.Plot.Width)*vg.Centimeter, vg.Length(cfg.Plot.Height)*vg.Centimeter),
		WithMaxPoints(cfg.Plot.MaxPoints),
	)
	if err != nil {
		for _, r := range recs {
			_ = r.Close()
		}
		return nil, err
	}
	return srv, nil
}

// Close closes all the recordings.
func (srv *Server) Close() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	var errs []error
	for _, id := range srv.ids {
		err := srv.mgrs[id].r.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("could not close recording %q: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.mux.ServeHTTP(w, r)
}

type pageContext struct {
	Root       string
	Recordings []string
	Info       Info
	Selected   []dmd.ChannelID
	From       string
	To         string
}

func (ctx pageContext) IsSelected(id dmd.ChannelID) bool {
	return slices.Contains(ctx.Selected, id)
}

func (srv *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != srv.root {
		http.NotFound(w, r)
		return
	}

	err := r.ParseForm()
	if err != nil {
		srv.fail(w, http.StatusBadRequest, fmt.Errorf("could not parse form: %w", err))
		return
	}

	mgr, err := srv.mgrFor(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, fmt.Errorf("could not find recording manager: %w", err))
		return
	}

	sel, err := selected(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, err)
		return
	}

	srv.mu.Lock()
	info, err := mgr.info()
	srv.mu.Unlock()
	if err != nil {
		srv.fail(w, http.StatusInternalServerError, err)
		return
	}

	ctx := pageContext{
		Root:       srv.root,
		Recordings: srv.ids,
		Info:       info,
		From:       r.Form.Get("from"),
		To:         r.Form.Get("to"),
	}
	if sel.len() > 0 {
		srv.mu.Lock()
		chans, err := mgr.lookup(sel)
		srv.mu.Unlock()
		if err != nil {
			srv.fail(w, status(err), err)
			return
		}
		for _, ch := range chans {
			ctx.Selected = append(ctx.Selected, ch.ID)
		}
	}

	buf := new(bytes.Buffer)
	err = srv.tmpl.Execute(buf, ctx)
	if err != nil {
		srv.fail(w, http.StatusInternalServerError, fmt.Errorf("could not display page for recording=%q: %w", mgr.id, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.Copy(w, buf)
}

func (srv *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		srv.fail(w, http.StatusBadRequest, fmt.Errorf("could not parse form: %w", err))
		return
	}

	mgr, err := srv.mgrFor(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, fmt.Errorf("could not find recording manager: %w", err))
		return
	}

	opts, err := readOptions(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, err)
		return
	}

	sel, err := selected(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, err)
		return
	}
	if sel.len() > 1 {
		srv.fail(w, http.StatusBadRequest, fmt.Errorf("could not plot %d channels: %w", sel.len(), errOneChannel))
		return
	}

	srv.mu.Lock()
	chans, err := mgr.lookup(sel)
	srv.mu.Unlock()
	if err != nil {
		srv.fail(w, status(err), err)
		return
	}

	bufs, err := srv.plots(mgr, chans, isTrue(r.Form.Get("abs")), opts)
	if err != nil {
		srv.fail(w, status(err), err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(bufs[0].Bytes())
}

// Message holds informations about a recording.
type Message struct {
	Root       string                   `json:"root"`
	Recordings []string                 `json:"recordings"`
	Info       Info                     `json:"info"`
	From       string                   `json:"from"`
	To         string                   `json:"to"`
	Plots      map[dmd.ChannelID]string `json:"plots,omitempty"` // base64 PNG, by channel ID
}

func (srv *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		srv.fail(w, http.StatusBadRequest, fmt.Errorf("could not parse form: %w", err))
		return
	}

	mgr, err := srv.mgrFor(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, fmt.Errorf("could not find recording manager: %w", err))
		return
	}

	opts, err := readOptions(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, err)
		return
	}

	sel, err := selected(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, err)
		return
	}

	srv.mu.Lock()
	info, err := mgr.info()
	srv.mu.Unlock()
	if err != nil {
		srv.fail(w, http.StatusInternalServerError, err)
		return
	}

	msg := Message{
		Root:       srv.root,
		Recordings: srv.ids,
		Info:       info,
		From:       r.Form.Get("from"),
		To:         r.Form.Get("to"),
	}

	if sel.len() > 0 {
		srv.mu.Lock()
		chans, err := mgr.lookup(sel)
		srv.mu.Unlock()
		if err != nil {
			srv.fail(w, status(err), err)
			return
		}

		bufs, err := srv.plots(mgr, chans, isTrue(r.Form.Get("abs")), opts)
		if err != nil {
			srv.fail(w, status(err), err)
			return
		}
		msg.Plots = make(map[dmd.ChannelID]string, len(chans))
		for i, ch := range chans {
			msg.Plots[ch.ID] = base64.StdEncoding.EncodeToString(bufs[i].Bytes())
		}
	}

	srv.reply(w, msg)
}

func (srv *Server) handleData(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		srv.fail(w, http.StatusBadRequest, fmt.Errorf("could not parse form: %w", err))
		return
	}

	mgr, err := srv.mgrFor(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, fmt.Errorf("could not find recording manager: %w", err))
		return
	}

	opts, err := readOptions(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, err)
		return
	}

	sel, err := selected(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, err)
		return
	}

	srv.mu.Lock()
	data, err := mgr.data(sel, opts...)
	srv.mu.Unlock()
	if err != nil {
		srv.fail(w, status(err), err)
		return
	}
	srv.count(mgr, data)

	srv.reply(w, data)
}

func (srv *Server) handleReduced(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		srv.fail(w, http.StatusBadRequest, fmt.Errorf("could not parse form: %w", err))
		return
	}

	mgr, err := srv.mgrFor(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, fmt.Errorf("could not find recording manager: %w", err))
		return
	}

	opts, err := readOptions(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, err)
		return
	}

	sel, err := selected(r)
	if err != nil {
		srv.fail(w, http.StatusBadRequest, err)
		return
	}

	srv.mu.Lock()
	data, err := mgr.reduced(sel, opts...)
	srv.mu.Unlock()
	if err != nil {
		srv.fail(w, status(err), err)
		return
	}
	srv.count(mgr, data)

	srv.reply(w, data)
}

// plots reads the provided channels and renders their plots.
func (srv *Server) plots(mgr *manager, chans []*dmd.Channel, abs bool, opts []dmd.ReadOption) ([]bytes.Buffer, error) {
	srv.mu.Lock()
	sers, err := mgr.series(chans, abs, opts...)
	srv.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for _, ser := range sers {
		srv.met.samples.WithLabelValues(mgr.id).Add(float64(len(ser.Ys)))
	}

	bufs, err := plot(sers, srv.plot)
	if err != nil {
		return nil, fmt.Errorf("could not create plots for recording=%q: %w", mgr.id, err)
	}
	srv.met.plots.Add(float64(len(bufs)))
	return bufs, nil
}

func (srv *Server) count(mgr *manager, data Data) {
	n := 0
	for _, col := range data.Columns {
		switch vs := col.Values.(type) {
		case []float64:
			n += len(vs)
		case []int32:
			n += len(vs)
		case [][2]float64:
			n += len(vs)
		}
	}
	srv.met.samples.WithLabelValues(mgr.id).Add(float64(n))
}

func (srv *Server) reply(w http.ResponseWriter, v any) {
	buf := new(bytes.Buffer)
	err := json.NewEncoder(buf).Encode(v)
	if err != nil {
		srv.fail(w, http.StatusInternalServerError, fmt.Errorf("could not encode message: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = io.Copy(w, buf)
	if err != nil {
		srv.log.Error("could not write message", "err", err)
	}
}

func (srv *Server) fail(w http.ResponseWriter, code int, err error) {
	switch {
	case code >= http.StatusInternalServerError:
		srv.log.Error("request failed", "code", code, "err", err)
	default:
		srv.log.Warn("invalid request", "code", code, "err", err)
	}
	http.Error(w, err.Error(), code)
}

func (srv *Server) mgrFor(r *http.Request) (*manager, error) {
	id := r.Form.Get("id")
	if id == "" {
		if len(srv.mgrs) > 1 {
			return nil, fmt.Errorf("could not find id parameter form")
		}
		id = srv.ids[0]
	}

	mgr, ok := srv.mgrs[id]
	if !ok {
		return nil, fmt.Errorf("could not find manager for recording=%q", id)
	}

	return mgr, nil
}

// selected decodes the channels requested by name (ch) and by ID (cid).
func selected(r *http.Request) (selection, error) {
	sel := selection{names: r.Form["ch"]}
	for _, v := range r.Form["cid"] {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return sel, fmt.Errorf("could not parse cid parameter %q: %w", v, err)
		}
		sel.ids = append(sel.ids, dmd.ChannelID(id))
	}
	return sel, nil
}

// readOptions decodes the time range (from, to, in seconds) and the
// timestamps format of a request.
func readOptions(r *http.Request) ([]dmd.ReadOption, error) {
	var opts []dmd.ReadOption
	for _, v := range []struct {
		key string
		opt func(float64) dmd.ReadOption
	}{
		{"from", dmd.WithStart},
		{"to", dmd.WithEnd},
	} {
		str := r.Form.Get(v.key)
		if str == "" {
			continue
		}
		t, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return nil, fmt.Errorf("could not parse %q parameter %q: %w", v.key, str, err)
		}
		opts = append(opts, v.opt(t))
	}

	if str := r.Form.Get("format"); str != "" {
		tf, err := dmd.ParseTimestampFormat(str)
		if err != nil {
			return nil, fmt.Errorf("could not parse format parameter: %w", err)
		}
		opts = append(opts, dmd.WithTimestamps(tf))
	}
	return opts, nil
}

func isTrue(v string) bool {
	ok, _ := strconv.ParseBool(v)
	return ok
}

func status(err error) int {
	for _, e := range []error{
		dmd.ErrNoChannel,
		dmd.ErrDuplicateName,
		dmd.ErrSampleRateMismatch,
		dmd.ErrTimestampMismatch,
		dmd.ErrUnsupportedSampleType,
		dmd.ErrAsyncChannel,
		dmd.ErrSweepRange,
		errOneChannel,
	} {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}
