// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmd // import "sbinet.org/x/dmd"

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrDupChannel = errors.New("dmd: duplicate channel key")
)

// ChannelMeta describes a channel exported to a DB.
type ChannelMeta struct {
	Key        string    `json:"key"` // unique key, see ChannelKey
	Name       string    `json:"name"`
	Unit       string    `json:"unit"`
	SampleRate float64   `json:"rate"`
	Start      time.Time `json:"start"` // measurement start time, UTC
}

// ChannelKey returns the DB key of a channel of the named recording.
func ChannelKey(fname string, id ChannelID) string {
	base := filepath.Base(fname)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s#%d", base, id)
}

// DB stores scalar channel samples.
type DB interface {
	// AddChannel declares a new channel.
	// It returns ErrDupChannel if the key is already known.
	AddChannel(meta ChannelMeta) error

	// Channels returns the known channels, sorted by key.
	Channels() ([]ChannelMeta, error)

	// PutSamples appends samples to the channel with the provided key.
	// Samples older than the last stored sample are ignored. Samples sharing
	// a timestamp are all kept, in order.
	PutSamples(key string, vs []Sample) error

	// Samples iterates over the samples of a channel within [beg, end]
	// seconds. A negative end selects all samples from beg.
	Samples(key string, beg, end float64) iter.Seq2[Sample, error]

	// Last returns the last stored sample of a channel.
	// It returns ErrNoData when the channel holds no sample.
	Last(key string) (Sample, error)

	Close() error
}

// ExportBatch is the number of samples written to a DB at once by Export.
const ExportBatch = 16 * 1024

// Export copies the samples of the provided scalar channels of r into db.
// Channels are declared on first export. Exporting twice the same
// recording only appends the samples missing from the DB: samples up to
// the last stored one, including those stored with the same timestamp,
// are skipped.
func Export(ctx context.Context, r *Reader, db DB, chans []*Channel) error {
	known, err := db.Channels()
	if err != nil {
		return fmt.Errorf("could not retrieve DB channels: %w", err)
	}
	keys := make(map[string]struct{}, len(known))
	for _, meta := range known {
		keys[meta.Key] = struct{}{}
	}

	for _, ch := range chans {
		if !ch.IsScalar() {
			return fmt.Errorf("could not export channel %q (%v): %w",
				ch.Name, ch.RawType, ErrUnsupportedSampleType,
			)
		}

		key := ChannelKey(r.Name(), ch.ID)
		if _, ok := keys[key]; !ok {
			err = db.AddChannel(ChannelMeta{
				Key:        key,
				Name:       ch.Name,
				Unit:       ch.Unit,
				SampleRate: ch.SampleRate,
				Start:      r.StartUTC().UTC(),
			})
			if err != nil {
				return fmt.Errorf("could not add channel %q: %w", key, err)
			}
			keys[key] = struct{}{}
		}

		err = export(ctx, r, db, key, ch)
		if err != nil {
			return fmt.Errorf("could not export channel %q: %w", key, err)
		}
	}
	return nil
}

func export(ctx context.Context, r *Reader, db DB, key string, ch *Channel) error {
	cur, err := resume(db, key)
	if err != nil {
		return err
	}

	buf := make([]Sample, 0, ExportBatch)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		err := db.PutSamples(key, buf)
		buf = buf[:0]
		return err
	}

	for v, err := range r.Samples(ch) {
		if err != nil {
			return err
		}
		if cur.skip(v) {
			continue
		}
		buf = append(buf, v)
		if len(buf) < cap(buf) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		err = flush()
		if err != nil {
			return err
		}
	}
	return flush()
}

// cursor tracks the samples already stored by a previous export.
type cursor struct {
	active bool
	last   float64 // timestamp of the last stored sample
	n      int     // number of stored samples at last
}

func resume(db DB, key string) (cursor, error) {
	last, err := db.Last(key)
	switch {
	case errors.Is(err, ErrNoData):
		return cursor{}, nil
	case err != nil:
		return cursor{}, fmt.Errorf("could not retrieve last sample: %w", err)
	}

	cur := cursor{active: true, last: last.Time}
	for v, err := range db.Samples(key, last.Time, -1) {
		if err != nil {
			return cursor{}, fmt.Errorf("could not count samples at t=%v: %w", last.Time, err)
		}
		if v.Time == last.Time {
			cur.n++
		}
	}
	return cur, nil
}

// skip reports whether v was already stored.
func (cur *cursor) skip(v Sample) bool {
	if !cur.active {
		return false
	}
	switch {
	case v.Time < cur.last:
		return true
	case v.Time == cur.last && cur.n > 0:
		cur.n--
		return true
	}
	cur.active = false
	return false
}
