// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmdsrv // import "sbinet.org/x/dmd/dmdsrv"

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	samples  *prometheus.CounterVec
	plots    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dmd_http_requests_total",
			Help: "Total number of HTTP requests, by handler and status code",
		}, []string{"handler", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dmd_http_request_duration_seconds",
			Help:    "Duration of HTTP requests, by handler",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
		samples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dmd_samples_read_total",
			Help: "Total number of samples read from recordings",
		}, []string{"recording"}),
		plots: f.NewCounter(prometheus.CounterOpts{
			Name: "dmd_plots_total",
			Help: "Total number of generated plots",
		}),
	}
}

func (m *metrics) wrap(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, code: http.StatusOK}
		h(ww, r)
		m.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(name, strconv.Itoa(ww.code)).Inc()
	}
}

// responseWriter captures the status code of a response.
type responseWriter struct {
	http.ResponseWriter
	code int
}

func (w *responseWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
