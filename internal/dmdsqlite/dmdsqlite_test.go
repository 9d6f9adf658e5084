// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmdsqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sbinet.org/x/dmd"
	"sbinet.org/x/dmd/internal/dmdfake"
)

func collect(t *testing.T, db *DB, key string, beg, end float64) []dmd.Sample {
	t.Helper()
	var vs []dmd.Sample
	for v, err := range db.Samples(key, beg, end) {
		require.NoError(t, err)
		vs = append(vs, v)
	}
	return vs
}

func TestDB(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "samples.sqlite")
	db, err := Open(fname)
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2021, time.August, 5, 10, 21, 27, 270800000, time.UTC)
	for _, meta := range []dmd.ChannelMeta{
		{Key: "run#1", Name: "AI 1/2", Unit: "V", SampleRate: 10, Start: start},
		{Key: "run#0", Name: "AI 1/1", Unit: "V", SampleRate: 10, Start: start},
	} {
		require.NoError(t, db.AddChannel(meta))
	}
	err = db.AddChannel(dmd.ChannelMeta{Key: "run#0"})
	assert.ErrorIs(t, err, dmd.ErrDupChannel)

	chans, err := db.Channels()
	require.NoError(t, err)
	require.Len(t, chans, 2)
	assert.Equal(t, "run#0", chans[0].Key)
	assert.Equal(t, "run#1", chans[1].Key)

	_, err = db.Last("run#0")
	assert.ErrorIs(t, err, dmd.ErrNoData)

	vs := []dmd.Sample{{Time: 0.3, Value: 3}, {Time: 0.1, Value: 1}, {Time: 0.2, Value: 2}}
	require.NoError(t, db.PutSamples("run#0", vs))
	require.NoError(t, db.PutSamples("run#0", []dmd.Sample{{Time: 0.2, Value: -2}, {Time: 0.4, Value: 4}}))
	assert.Error(t, db.PutSamples("nope", vs))

	got := collect(t, db, "run#0", 0, -1)
	assert.Equal(t, []dmd.Sample{{Time: 0.1, Value: 1}, {Time: 0.2, Value: 2}, {Time: 0.3, Value: 3}, {Time: 0.4, Value: 4}}, got)
	assert.Equal(t, []dmd.Sample{{Time: 0.2, Value: 2}, {Time: 0.3, Value: 3}}, collect(t, db, "run#0", 0.2, 0.3))
	assert.Empty(t, collect(t, db, "run#1", 0, -1))

	for _, err := range db.Samples("nope", 0, -1) {
		assert.Error(t, err)
	}

	require.NoError(t, db.Close())

	db, err = Open(fname)
	require.NoError(t, err)
	defer db.Close()

	chans, err = db.Channels()
	require.NoError(t, err)
	require.Len(t, chans, 2)
	assert.Equal(t, "AI 1/1", chans[0].Name)
	assert.True(t, start.Equal(chans[0].Start))

	last, err := db.Last("run#0")
	require.NoError(t, err)
	assert.Equal(t, dmd.Sample{Time: 0.4, Value: 4}, last)

	_, err = db.Last("run#1")
	assert.ErrorIs(t, err, dmd.ErrNoData)
}

func TestDBSameTime(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "samples.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.AddChannel(dmd.ChannelMeta{Key: "run#4", Name: "Async 1"}))

	require.NoError(t, db.PutSamples("run#4", []dmd.Sample{{Time: 0.1, Value: 1}, {Time: 0.1, Value: 2}, {Time: 0.2, Value: 3}}))
	require.NoError(t, db.PutSamples("run#4", []dmd.Sample{{Time: 0.2, Value: 4}, {Time: 0.3, Value: 5}}))
	require.NoError(t, db.PutSamples("run#4", []dmd.Sample{{Time: 0.1, Value: -1}}))

	want := []dmd.Sample{{Time: 0.1, Value: 1}, {Time: 0.1, Value: 2}, {Time: 0.2, Value: 3}, {Time: 0.2, Value: 4}, {Time: 0.3, Value: 5}}
	assert.Equal(t, want, collect(t, db, "run#4", 0, -1))
	assert.Equal(t, want[2:4], collect(t, db, "run#4", 0.2, 0.2))

	last, err := db.Last("run#4")
	require.NoError(t, err)
	assert.Equal(t, dmd.Sample{Time: 0.3, Value: 5}, last)
}

func TestTable(t *testing.T) {
	db := &DB{}
	tbl := db.table("run#0")
	assert.True(t, strings.HasPrefix(tbl, "ch_"))
	assert.Len(t, tbl, 3+2*28)
	assert.Equal(t, tbl, db.table("run#0"))
	assert.NotEqual(t, tbl, db.table("run#1"))
}

func TestExport(t *testing.T) {
	api := dmdfake.New(map[string]*dmdfake.File{"run.dmd": dmdfake.Simple()})
	r, err := dmd.OpenWith(api, "run.dmd")
	require.NoError(t, err)
	defer r.Close()

	db, err := Open(filepath.Join(t.TempDir(), "samples.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, dmd.Export(context.Background(), r, db, r.Channels()))
	require.NoError(t, dmd.Export(context.Background(), r, db, r.Channels()))

	chans, err := db.Channels()
	require.NoError(t, err)
	require.Len(t, chans, 3)
	assert.Equal(t, "AI 3", chans[2].Name)

	got := collect(t, db, "run#2", 0, -1)
	require.Len(t, got, 6331)
	assert.Equal(t, 0.0, got[0].Time)
	assert.Equal(t, 200.0+1234, got[0].Value)

	last, err := db.Last("run#2")
	require.NoError(t, err)
	assert.Equal(t, 200.0+1234+6330, last.Value)
}
