// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmdsrv_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"
	"sbinet.org/x/dmd"
	"sbinet.org/x/dmd/dmdsrv"
	"sbinet.org/x/dmd/internal/config"
	"sbinet.org/x/dmd/internal/dmdfake"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newAPI() *dmdfake.API {
	return dmdfake.New(map[string]*dmdfake.File{
		"demo.dmd":   dmdfake.Demo(),
		"simple.dmd": dmdfake.Simple(),
		"dups.dmd":   dmdfake.Duplicates(),
	})
}

func newServer(t *testing.T, api *dmdfake.API) *httptest.Server {
	t.Helper()

	recs := make(map[string]*dmd.Reader)
	for id, fname := range map[string]string{"demo": "demo.dmd", "simple": "simple.dmd", "dups": "dups.dmd"} {
		r, err := dmd.OpenWith(api, fname)
		require.NoError(t, err)
		recs[id] = r
	}

	srv, err := dmdsrv.NewServer("/", recs,
		dmdsrv.WithLogger(discard),
		dmdsrv.WithRegistry(prometheus.NewRegistry()),
		dmdsrv.WithPlotSize(4*vg.Inch, 3*vg.Inch),
		dmdsrv.WithMaxPoints(500),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, srv.Close())
	})
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string, vs url.Values) (int, []byte) {
	t.Helper()
	u := ts.URL + path
	if len(vs) > 0 {
		u += "?" + vs.Encode()
	}
	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestRoot(t *testing.T) {
	ts := newServer(t, newAPI())

	code, body := get(t, ts, "/", url.Values{"id": {"demo"}, "ch": {"AI 1/1"}, "from": {"1"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	for _, want := range []string{
		"Recording:   demo",
		"Title: demo",
		"CNT 1/1",
		"keypress",
		`name="cid" value="0" checked`,
		`/plot?id=demo&cid=0&from=1&to=`,
	} {
		assert.Contains(t, string(body), want)
	}
	assert.NotContains(t, string(body), `value="1" checked`)

	for _, tc := range []struct {
		path string
		vs   url.Values
		code int
	}{
		{path: "/", code: http.StatusBadRequest},
		{path: "/", vs: url.Values{"id": {"nope"}}, code: http.StatusBadRequest},
		{path: "/", vs: url.Values{"id": {"demo"}, "cid": {"x"}}, code: http.StatusBadRequest},
		{path: "/", vs: url.Values{"id": {"dups"}, "ch": {"XXX"}}, code: http.StatusBadRequest},
		{path: "/nope", code: http.StatusNotFound},
		{path: "/favicon.ico", code: http.StatusOK},
	} {
		code, _ := get(t, ts, tc.path, tc.vs)
		assert.Equal(t, tc.code, code, "path=%s?%s", tc.path, tc.vs.Encode())
	}
}

func TestPlot(t *testing.T) {
	ts := newServer(t, newAPI())

	for _, abs := range []string{"false", "true"} {
		code, body := get(t, ts, "/plot", url.Values{
			"id": {"demo"}, "ch": {"AI 1/1"}, "from": {"5"}, "to": {"6"}, "abs": {abs},
		})
		require.Equal(t, http.StatusOK, code, "body: %s", body)

		img, err := png.Decode(bytes.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, 4*96, img.Bounds().Dx())
	}

	for _, vs := range []url.Values{
		{"id": {"demo"}, "ch": {"VS 1/1"}},
		{"id": {"demo"}, "ch": {"nope"}},
		{"id": {"demo"}},
		{"id": {"demo"}, "ch": {"AI 1/1"}, "from": {"x"}},
		{"id": {"demo"}, "cid": {"0", "2"}},
		{"id": {"demo"}, "cid": {"7"}},
	} {
		code, _ := get(t, ts, "/plot", vs)
		assert.Equal(t, http.StatusBadRequest, code, "query=%s", vs.Encode())
	}
}

func TestAPI(t *testing.T) {
	ts := newServer(t, newAPI())

	code, body := get(t, ts, "/api", url.Values{"id": {"demo"}, "ch": {"AI 1/1", "CNT 1/1"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)

	var msg dmdsrv.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "/", msg.Root)
	assert.Equal(t, []string{"demo", "dups", "simple"}, msg.Recordings)
	assert.Equal(t, "demo", msg.Info.ID)
	assert.Equal(t, "demo.dmd", msg.Info.File)
	assert.Equal(t, 9.999, msg.Info.Duration)
	assert.Len(t, msg.Info.Headers, 2)
	require.Len(t, msg.Info.Markers, 3)
	assert.Equal(t, "keypress", msg.Info.Markers[1].Text)
	require.Len(t, msg.Info.Channels, 7)

	ch := msg.Info.Channels[3]
	assert.Equal(t, "VS 1/1", ch.Name)
	assert.Equal(t, "float64", ch.Kind)
	assert.Equal(t, 10, ch.Dim)
	assert.Equal(t, uint64(10000), ch.Samples)
	assert.True(t, msg.Info.Channels[1].Reduced)

	require.Len(t, msg.Plots, 2)
	for _, id := range []dmd.ChannelID{0, 2} {
		raw, err := base64.StdEncoding.DecodeString(msg.Plots[id])
		require.NoError(t, err)
		_, err = png.Decode(bytes.NewReader(raw))
		require.NoError(t, err)
	}

	code, body = get(t, ts, "/api", url.Values{"id": {"simple"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	msg = dmdsrv.Message{}
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Len(t, msg.Info.Channels, 3)
	assert.Empty(t, msg.Plots)
}

type data struct {
	ID      string    `json:"id"`
	Format  string    `json:"format"`
	Seconds []float64 `json:"seconds"`
	Times   []string  `json:"times"`
	Columns []struct {
		Name   string          `json:"name"`
		Kind   string          `json:"kind"`
		Values json.RawMessage `json:"values"`
	} `json:"columns"`
}

func TestData(t *testing.T) {
	ts := newServer(t, newAPI())

	code, body := get(t, ts, "/api/data", url.Values{
		"id": {"simple"}, "ch": {"AI 1", "AI 2"}, "from": {"0.1"}, "to": {"0.2"},
	})
	require.Equal(t, http.StatusOK, code, "body: %s", body)

	var v data
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, "simple", v.ID)
	assert.Equal(t, "seconds", v.Format)
	require.Len(t, v.Seconds, 1001)
	assert.InDelta(t, 0.1, v.Seconds[0], 1e-9)
	require.Len(t, v.Columns, 2)
	assert.Equal(t, "AI 2", v.Columns[1].Name)
	assert.Equal(t, "float64", v.Columns[1].Kind)

	var vs []float64
	require.NoError(t, json.Unmarshal(v.Columns[1].Values, &vs))
	require.Len(t, vs, 1001)
	assert.Equal(t, 100.0+1234+1000, vs[0])

	code, body = get(t, ts, "/api/data", url.Values{
		"id": {"demo"}, "ch": {"VC 1/1"}, "from": {"0"}, "to": {"0.001"}, "format": {"utc"},
	})
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	v = data{}
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, "utc", v.Format)
	assert.Empty(t, v.Seconds)
	assert.Len(t, v.Times, 2)
	require.Len(t, v.Columns, 5)
	assert.Equal(t, "VC 1/1[2]", v.Columns[2].Name)
	assert.Equal(t, "complex128", v.Columns[2].Kind)

	var cs [][2]float64
	require.NoError(t, json.Unmarshal(v.Columns[2].Values, &cs))
	assert.Equal(t, [][2]float64{{0, 2}, {1, 2}}, cs)

	for _, tc := range []struct {
		vs   url.Values
		code int
	}{
		{vs: url.Values{"id": {"demo"}, "ch": {"AI 1/1", "VS 1/1"}}, code: http.StatusBadRequest},
		{vs: url.Values{"id": {"demo"}, "ch": {"nope"}}, code: http.StatusBadRequest},
		{vs: url.Values{"id": {"demo"}}, code: http.StatusBadRequest},
		{vs: url.Values{"id": {"demo"}, "ch": {"AI 1/1"}, "format": {"julian"}}, code: http.StatusBadRequest},
		{vs: url.Values{"ch": {"AI 1/1"}}, code: http.StatusBadRequest},
	} {
		code, _ := get(t, ts, "/api/data", tc.vs)
		assert.Equal(t, tc.code, code, "query=%s", tc.vs.Encode())
	}
}

func TestReduced(t *testing.T) {
	ts := newServer(t, newAPI())

	code, body := get(t, ts, "/api/reduced", url.Values{"id": {"demo"}, "ch": {"AI 1/2"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)

	var v data
	require.NoError(t, json.Unmarshal(body, &v))
	require.Len(t, v.Columns, 4)
	assert.Equal(t, []string{"MIN", "MAX", "AVG", "RMS"}, []string{
		v.Columns[0].Name, v.Columns[1].Name, v.Columns[2].Name, v.Columns[3].Name,
	})
	assert.Len(t, v.Seconds, 42)

	code, body = get(t, ts, "/api/reduced", url.Values{"id": {"demo"}, "ch": {"AI 1/1"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	v = data{}
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Empty(t, v.Columns)
}

func TestSameNames(t *testing.T) {
	ts := newServer(t, newAPI())

	code, body := get(t, ts, "/", url.Values{"id": {"dups"}, "cid": {"3"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	for _, want := range []string{
		`name="cid" value="2">`,
		`name="cid" value="3" checked`,
		`/plot?id=dups&cid=3&from=&to=`,
	} {
		assert.Contains(t, string(body), want)
	}

	code, body = get(t, ts, "/plot", url.Values{"id": {"dups"}, "cid": {"3"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	_, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)

	code, body = get(t, ts, "/plot", url.Values{"id": {"dups"}, "ch": {"XXX"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(body), "duplicate channel name")

	code, body = get(t, ts, "/api/data", url.Values{"id": {"dups"}, "cid": {"3", "2"}, "to": {"0.001"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	var v data
	require.NoError(t, json.Unmarshal(body, &v))
	require.Len(t, v.Columns, 2)
	assert.Equal(t, "XXX", v.Columns[0].Name)
	assert.Equal(t, "XXX", v.Columns[1].Name)

	var vs []float64
	require.NoError(t, json.Unmarshal(v.Columns[0].Values, &vs))
	assert.Equal(t, []float64{3000, 3001}, vs)
	require.NoError(t, json.Unmarshal(v.Columns[1].Values, &vs))
	assert.Equal(t, []float64{2000, 2001}, vs)

	code, body = get(t, ts, "/api", url.Values{"id": {"dups"}, "cid": {"2", "3"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	var msg dmdsrv.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Len(t, msg.Plots, 2)
	assert.NotEmpty(t, msg.Plots[2])
	assert.NotEmpty(t, msg.Plots[3])

	code, _ = get(t, ts, "/api/reduced", url.Values{"id": {"dups"}, "cid": {"2", "3"}})
	assert.Equal(t, http.StatusBadRequest, code)
	code, body = get(t, ts, "/api/reduced", url.Values{"id": {"dups"}, "cid": {"2"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)
}

func TestReducedRange(t *testing.T) {
	ts := newServer(t, newAPI())

	code, body := get(t, ts, "/api/reduced", url.Values{"id": {"demo"}, "cid": {"1"}, "from": {"5"}, "to": {"6"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)

	var v data
	require.NoError(t, json.Unmarshal(body, &v))
	require.Len(t, v.Seconds, 11)
	assert.Equal(t, 5.0, v.Seconds[0])
	assert.Equal(t, 6.0, v.Seconds[10])
}

func TestMetrics(t *testing.T) {
	ts := newServer(t, newAPI())

	code, _ := get(t, ts, "/api/data", url.Values{"id": {"simple"}, "ch": {"AI 1"}})
	require.Equal(t, http.StatusOK, code)
	code, _ = get(t, ts, "/plot", url.Values{"id": {"simple"}, "ch": {"AI 1"}})
	require.Equal(t, http.StatusOK, code)
	code, _ = get(t, ts, "/api/data", url.Values{"id": {"simple"}, "ch": {"nope"}})
	require.Equal(t, http.StatusBadRequest, code)

	code, body := get(t, ts, "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	for _, want := range []string{
		`dmd_http_requests_total{code="200",handler="data"} 1`,
		`dmd_http_requests_total{code="400",handler="data"} 1`,
		`dmd_http_requests_total{code="200",handler="plot"} 1`,
		`dmd_samples_read_total{recording="simple"} 12662`,
		`dmd_plots_total 1`,
		`dmd_http_request_duration_seconds_count{handler="data"} 2`,
	} {
		assert.Contains(t, string(body), want)
	}
}

func TestOpen(t *testing.T) {
	cfg, err := config.Parse([]byte(`
server:
  root: /dmd/
recordings:
  - {id: demo, path: demo.dmd}
  - {id: simple, path: simple.dmd}
`))
	require.NoError(t, err)

	api := newAPI()
	srv, err := dmdsrv.Open(cfg, api, discard)
	require.NoError(t, err)
	assert.Equal(t, 2, api.Open())

	ts := httptest.NewServer(srv)
	defer ts.Close()

	code, body := get(t, ts, "/dmd/api", url.Values{"id": {"simple"}})
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	var msg dmdsrv.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "/dmd/", msg.Root)

	code, _ = get(t, ts, "/api", url.Values{"id": {"simple"}})
	assert.Equal(t, http.StatusNotFound, code)

	require.NoError(t, srv.Close())
	assert.Equal(t, 0, api.Open())

	cfg.Recordings = append(cfg.Recordings, config.Recording{ID: "missing", Path: "missing.dmd"})
	_, err = dmdsrv.Open(cfg, api, discard)
	require.Error(t, err)
	assert.Equal(t, 0, api.Open())
}
