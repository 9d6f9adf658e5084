// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmdsrv // import "sbinet.org/x/dmd/dmdsrv"

import (
	"bytes"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot/vg"
	"sbinet.org/x/dmd"
	"sbinet.org/x/dmd/dmdplot"
)

type plotOptions struct {
	width, height vg.Length
	maxPoints     int
}

func (mgr *manager) series(chans []*dmd.Channel, abs bool, opts ...dmd.ReadOption) ([]dmdplot.Series, error) {
	sers := make([]dmdplot.Series, 0, len(chans))
	for _, ch := range chans {
		ser, err := dmdplot.Read(mgr.r, ch, abs, opts...)
		if err != nil {
			return nil, fmt.Errorf("could not read series of recording=%q: %w", mgr.id, err)
		}
		ser.Title = fmt.Sprintf("%s: %s", mgr.id, ch.Name)
		sers = append(sers, ser)
	}
	return sers, nil
}

// plot renders each series concurrently.
func plot(sers []dmdplot.Series, opts plotOptions) ([]bytes.Buffer, error) {
	var (
		grp  errgroup.Group
		bufs = make([]bytes.Buffer, len(sers))
	)
	for i := range sers {
		grp.Go(func() error {
			ser := sers[i].Decimate(opts.maxPoints)
			err := dmdplot.Draw(&bufs[i], ser, opts.width, opts.height, dmdplot.Color(i))
			if err != nil {
				return fmt.Errorf("could not create plot %q: %w", ser.Title, err)
			}
			return nil
		})
	}

	err := grp.Wait()
	if err != nil {
		return nil, fmt.Errorf("could not create plots: %w", err)
	}
	return bufs, nil
}

const page = `
<html>
	<head>
		<title>DMD recordings</title>
	</head>

	<body>
{{- if .Recordings}}
		<h2>Recordings</h2>
		<ul>
{{- with $ctx := .}}
{{- range .Recordings}}
			<li><a href="{{$ctx.Root}}?id={{.}}&from={{$ctx.From}}&to={{$ctx.To}}">{{.}}</a></li>
{{- end}}
{{- end}}
		</ul>
{{- end}}
		<pre>
Recording:   {{.Info.ID}}
File:        {{.Info.File}}
Start:       {{.Info.Start}}
Duration:    {{printf "%.3f" .Info.Duration}} s
{{- range .Info.Headers}}
{{.Name}}: {{.Value}}
{{- end}}
		</pre>

		<form action="{{.Root}}" method="get">
			<input type="hidden" name="id" value="{{.Info.ID}}">
			<table>
				<tr><th></th><th>ID</th><th>Channel</th><th>Unit</th><th>Rate [Hz]</th><th>Kind</th><th>Samples</th></tr>
{{- with $ctx := .}}
{{- range .Info.Channels}}
				<tr>
					<td><input type="checkbox" name="cid" value="{{.ID}}"{{if $ctx.IsSelected .ID}} checked{{end}}></td>
					<td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Unit}}</td><td>{{.SampleRate}}</td><td>{{.Kind}}</td><td>{{.Samples}}</td>
				</tr>
{{- end}}
{{- end}}
			</table>
			from: <input type="text" name="from" value="{{.From}}"> s
			to: <input type="text" name="to" value="{{.To}}"> s
			<input type="submit" value="plot">
		</form>

{{- if .Info.Markers}}
		<h3>Markers</h3>
		<ul>
{{- range .Info.Markers}}
			<li>{{printf "%.4f" .Time}} s [{{.Source}}/{{.Type}}] {{.Text}}</li>
{{- end}}
		</ul>
{{- end}}

{{- with $ctx := .}}
{{- range .Selected}}
		<hr>
		<div class="row align-items-center justify-content-center">
			<img src="{{$ctx.Root}}plot?id={{$ctx.Info.ID}}&cid={{.}}&from={{$ctx.From}}&to={{$ctx.To}}"/>
		</div>
{{- end}}
{{- end}}
	</body>
</html>
`
