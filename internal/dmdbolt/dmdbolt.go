// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dmdbolt provides an implementation of a DMD samples database, backed by bbolt.
//
// Samples are stored in compressed blocks, keyed by the timestamp of their
// first sample followed by a per-channel sequence number, so that blocks
// starting at the same time never overwrite each other.
package dmdbolt // import "sbinet.org/x/dmd/internal/dmdbolt"

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"sbinet.org/x/dmd"
	"sbinet.org/x/dmd/internal/codec"
)

var (
	bucketRoot = []byte("dmd")
	bucketMeta = []byte("channels")
)

// BlockLen is the maximum number of samples per stored block.
const BlockLen = 4096

type DB struct {
	db  *bbolt.DB
	enc codec.Kind

	meta map[string]dmd.ChannelMeta
	last map[string]dmd.Sample
}

var _ dmd.DB = (*DB)(nil)

// Option configures a bbolt-backed database.
type Option func(db *DB)

// WithCompression sets the compression of newly written blocks.
func WithCompression(kind codec.Kind) Option {
	return func(db *DB) {
		db.enc = kind
	}
}

// Open opens and initializes a boltdb-backed DMD database.
func Open(fname string, opts ...Option) (*DB, error) {
	db, err := bbolt.Open(fname, 0644, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open dmd db: %w", err)
	}

	store := &DB{
		db:   db,
		enc:  codec.Zstd,
		meta: make(map[string]dmd.ChannelMeta),
		last: make(map[string]dmd.Sample),
	}
	for _, opt := range opts {
		opt(store)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(bucketRoot)
		if err != nil {
			return fmt.Errorf("could not create %q bucket: %w", bucketRoot, err)
		}

		meta, err := root.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("could not create %q bucket: %w", bucketMeta, err)
		}
		return meta.ForEach(func(k, v []byte) error {
			var m dmd.ChannelMeta
			err := json.Unmarshal(v, &m)
			if err != nil {
				return fmt.Errorf("could not decode metadata of channel %q: %w", k, err)
			}
			store.meta[m.Key] = m
			return nil
		})
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not setup dmd db buckets: %w", err)
	}

	for key := range store.meta {
		err = db.View(func(tx *bbolt.Tx) error {
			bkt, err := store.bucket(tx, key)
			if err != nil {
				return err
			}
			_, v := bkt.Cursor().Last()
			if v == nil {
				return nil
			}
			vs, err := decode(v)
			if err != nil {
				return err
			}
			store.last[key] = vs[len(vs)-1]
			return nil
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("could not find last sample of %q: %w", key, err)
		}
	}

	return store, nil
}

// Close closes a DMD database.
func (db *DB) Close() error {
	if db.db != nil {
		err := db.db.Close()
		if err != nil {
			return fmt.Errorf("could not close boltdb: %w", err)
		}
		db.db = nil
	}

	return nil
}

func (db *DB) bucket(tx *bbolt.Tx, key string) (*bbolt.Bucket, error) {
	root := tx.Bucket(bucketRoot)
	if root == nil {
		return nil, fmt.Errorf("could not find %q bucket", bucketRoot)
	}

	bkt := root.Bucket([]byte(key))
	if bkt == nil {
		return nil, fmt.Errorf("could not find data bucket for channel %q", key)
	}
	return bkt, nil
}

// AddChannel declares a new channel.
func (db *DB) AddChannel(meta dmd.ChannelMeta) error {
	if _, dup := db.meta[meta.Key]; dup {
		return fmt.Errorf("could not add channel %q: %w", meta.Key, dmd.ErrDupChannel)
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("could not encode metadata of channel %q: %w", meta.Key, err)
	}

	err = db.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRoot)
		if root == nil {
			return fmt.Errorf("could not access %q bucket", bucketRoot)
		}

		chans := root.Bucket(bucketMeta)
		if chans == nil {
			return fmt.Errorf("could not access %q bucket", bucketMeta)
		}
		err := chans.Put([]byte(meta.Key), raw)
		if err != nil {
			return fmt.Errorf("could not store channel %q: %w", meta.Key, err)
		}

		_, err = root.CreateBucketIfNotExists([]byte(meta.Key))
		if err != nil {
			return fmt.Errorf("could not create data bucket for channel %q: %w", meta.Key, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not add channel %q: %w", meta.Key, err)
	}
	db.meta[meta.Key] = meta
	return nil
}

// Channels returns the channels list.
func (db *DB) Channels() ([]dmd.ChannelMeta, error) {
	chans := make([]dmd.ChannelMeta, 0, len(db.meta))
	for _, meta := range db.meta {
		chans = append(chans, meta)
	}
	sort.Slice(chans, func(i, j int) bool {
		return chans[i].Key < chans[j].Key
	})
	return chans, nil
}

// PutSamples puts the provided samples for the channel key into the underlying store.
// Samples older than the last stored one are ignored.
func (db *DB) PutSamples(key string, vs []dmd.Sample) error {
	if _, ok := db.meta[key]; !ok {
		return fmt.Errorf("no such channel %q", key)
	}
	sort.SliceStable(vs, func(i, j int) bool {
		return vs[i].Time < vs[j].Time
	})

	last, err := db.Last(key)
	switch {
	case err == nil:
		idx := sort.Search(len(vs), func(i int) bool {
			return vs[i].Time >= last.Time
		})
		vs = vs[idx:]
	case errors.Is(err, dmd.ErrNoData):
		// ok.
	default:
		return err
	}
	if len(vs) == 0 {
		return nil
	}

	err = db.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := db.bucket(tx, key)
		if err != nil {
			return err
		}

		for blk := range slices.Chunk(vs, BlockLen) {
			buf, err := codec.Encode(db.enc, encode(blk))
			if err != nil {
				return fmt.Errorf("could not compress block: %w", err)
			}
			seq, err := bkt.NextSequence()
			if err != nil {
				return fmt.Errorf("could not generate block sequence: %w", err)
			}
			err = bkt.Put(blockKey(blk[0].Time, seq), buf)
			if err != nil {
				return fmt.Errorf("could not store block at t=%v: %w", blk[0].Time, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not write samples to db: %w", err)
	}
	db.last[key] = vs[len(vs)-1]
	return nil
}

// Samples iterates over samples of the channel key within [beg, end] seconds.
func (db *DB) Samples(key string, beg, end float64) iter.Seq2[dmd.Sample, error] {
	return func(yield func(v dmd.Sample, err error) bool) {
		var rows []dmd.Sample
		err := db.db.View(func(tx *bbolt.Tx) error {
			bkt, err := db.bucket(tx, key)
			if err != nil {
				return err
			}

			return bkt.ForEach(func(k, v []byte) error {
				if end >= 0 && keyTime(k) > end {
					return nil
				}
				blk, err := decode(v)
				if err != nil {
					return fmt.Errorf("could not decode block at t=%v: %w", keyTime(k), err)
				}
				for _, row := range blk {
					if row.Time < beg {
						continue
					}
					if end >= 0 && row.Time > end {
						break
					}
					rows = append(rows, row)
				}
				return nil
			})
		})
		if err != nil {
			_ = yield(dmd.Sample{}, fmt.Errorf("could not read rows: %w", err))
			return
		}

		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Last returns the last sample for the provided channel key.
func (db *DB) Last(key string) (dmd.Sample, error) {
	if _, ok := db.meta[key]; !ok {
		return dmd.Sample{}, fmt.Errorf("no such channel %q", key)
	}
	last, ok := db.last[key]
	if !ok {
		return dmd.Sample{}, dmd.ErrNoData
	}
	return last, nil
}

const sampleSize = 16

func encode(vs []dmd.Sample) []byte {
	buf := make([]byte, len(vs)*sampleSize)
	for i, v := range vs {
		p := buf[i*sampleSize:]
		binary.LittleEndian.PutUint64(p[0:8], math.Float64bits(v.Time))
		binary.LittleEndian.PutUint64(p[8:16], math.Float64bits(v.Value))
	}
	return buf
}

func decode(blk []byte) ([]dmd.Sample, error) {
	raw, err := codec.Decode(blk)
	if err != nil {
		return nil, err
	}
	if len(raw)%sampleSize != 0 || len(raw) == 0 {
		return nil, fmt.Errorf("invalid block size %d", len(raw))
	}
	vs := make([]dmd.Sample, len(raw)/sampleSize)
	for i := range vs {
		p := raw[i*sampleSize:]
		vs[i].Time = math.Float64frombits(binary.LittleEndian.Uint64(p[0:8]))
		vs[i].Value = math.Float64frombits(binary.LittleEndian.Uint64(p[8:16]))
	}
	return vs, nil
}

// timeKey encodes a timestamp so that byte order matches numeric order.
func timeKey(t float64) []byte {
	bits := math.Float64bits(t)
	switch {
	case bits>>63 == 0:
		bits |= 1 << 63
	default:
		bits = ^bits
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, bits)
	return key
}

// blockKey returns the key of a block starting at t.
func blockKey(t float64, seq uint64) []byte {
	key := make([]byte, 16)
	copy(key, timeKey(t))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

func keyTime(key []byte) float64 {
	bits := binary.BigEndian.Uint64(key)
	switch {
	case bits>>63 == 1:
		bits &^= 1 << 63
	default:
		bits = ^bits
	}
	return math.Float64frombits(bits)
}
