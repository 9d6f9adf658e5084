// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dmdsqlite provides an implementation of a DMD samples database, backed by SQlite3.
package dmdsqlite // import "sbinet.org/x/dmd/internal/dmdsqlite"

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
	"sbinet.org/x/dmd"
)

type DB struct {
	db *sql.DB

	meta map[string]dmd.ChannelMeta
	last map[string]dmd.Sample
}

var _ dmd.DB = (*DB)(nil)

// Open opens and initializes a sqlite3-backed DMD database.
func Open(fname string) (*DB, error) {
	if _, err := os.Stat(fname); errors.Is(err, fs.ErrNotExist) {
		err = createDB(context.Background(), fname)
		if err != nil {
			return nil, fmt.Errorf("could not create dmd db: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fname)
	if err != nil {
		return nil, fmt.Errorf("could not open dmd db %q: %w", fname, err)
	}

	store := &DB{
		db:   db,
		meta: make(map[string]dmd.ChannelMeta),
		last: make(map[string]dmd.Sample),
	}
	err = store.init()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not setup dmd db %q: %w", fname, err)
	}

	return store, nil
}

func createDB(ctx context.Context, fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create dmd db %q: %w", fname, err)
	}
	defer f.Close()

	db, err := sql.Open("sqlite", fname)
	if err != nil {
		return fmt.Errorf("could not open dmd db %q: %w", fname, err)
	}
	defer db.Close()

	{
		stmt := `CREATE TABLE channels (
        key   TEXT NOT NULL PRIMARY KEY, -- channel key (<recording>#<id>)
        tbl   TEXT NOT NULL,             -- table name for this channel
        name  TEXT NOT NULL,             -- channel name
        unit  TEXT NOT NULL,             -- physical unit
        rate  DOUBLE,                    -- sample rate (in Hz)
        start INTEGER                    -- measurement start (nanoseconds since epoch UTC)
)
`
		_, err = db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("could not create channels table %q: %w", fname, err)
		}
	}

	// Use Write Ahead Logging which improves SQLite concurrency.
	// Requires SQLite >= 3.7.0
	_, err = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	if err != nil {
		return fmt.Errorf("could not set WAL mode: %w", err)
	}

	var journalMode string
	if err = db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("could not determine sqlite3 journal_mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("could not set sqlite WAL mode")
	}

	return nil
}

func (db *DB) init() error {
	{
		const stmt = `SELECT key, name, unit, rate, start FROM channels`
		rows, err := db.db.Query(stmt)
		if err != nil {
			return fmt.Errorf("could not retrieve channels list: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				meta  dmd.ChannelMeta
				start int64
				err   = rows.Scan(&meta.Key, &meta.Name, &meta.Unit, &meta.SampleRate, &start)
			)
			if err != nil {
				return fmt.Errorf("could not scan channel row: %w", err)
			}
			meta.Start = time.Unix(0, start).UTC()
			db.meta[meta.Key] = meta
		}
		err = rows.Err()
		if err != nil {
			return fmt.Errorf("could not iterate over channels: %w", err)
		}
	}

	for key := range db.meta {
		err := func(key string) error {
			tbl := db.table(key)
			rows, err := db.db.Query(`SELECT time, value FROM ` + tbl + ` ORDER BY time DESC, rowid DESC LIMIT 1`)
			if err != nil {
				return fmt.Errorf("could not issue query: %w", err)
			}
			defer rows.Close()

			if !rows.Next() {
				// no data.
				return nil
			}

			var row dmd.Sample
			err = rows.Scan(&row.Time, &row.Value)
			if err != nil {
				return fmt.Errorf("could not scan row: %w", err)
			}
			db.last[key] = row
			return nil
		}(key)
		if err != nil {
			return fmt.Errorf("could not fetch last sample for channel %q: %w", key, err)
		}
	}

	return nil
}

func (db *DB) table(key string) string {
	sha := sha256.New224()
	_, err := io.Copy(sha, strings.NewReader(key))
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("ch_%x", sha.Sum(nil))
}

// Close closes a DMD database.
func (db *DB) Close() error {
	if db.db != nil {
		err := db.db.Close()
		if err != nil {
			return fmt.Errorf("could not close sqlite db: %w", err)
		}
		db.db = nil
	}

	return nil
}

// AddChannel declares a new channel.
func (db *DB) AddChannel(meta dmd.ChannelMeta) (err error) {
	if _, dup := db.meta[meta.Key]; dup {
		return fmt.Errorf("could not add channel %q: %w", meta.Key, dmd.ErrDupChannel)
	}

	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("could not create sqlite transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	name := db.table(meta.Key)
	{
		const q = `INSERT INTO channels (key, tbl, name, unit, rate, start) VALUES (?1, ?2, ?3, ?4, ?5, ?6)`
		_, err = tx.Exec(q, meta.Key, name, meta.Name, meta.Unit, meta.SampleRate, meta.Start.UnixNano())
		if err != nil {
			return fmt.Errorf("could not add channel %q to channels table: %w", meta.Key, err)
		}
	}
	{
		// timestamps may repeat: rows are ordered by (time, rowid).
		stmt := `CREATE TABLE ` + name + ` (
			time  DOUBLE NOT NULL, -- timestamp (seconds since measurement start)
			value DOUBLE           -- sample value (in the channel unit)
)
`
		_, err = tx.Exec(stmt)
		if err != nil {
			return fmt.Errorf("could not create channel table for %q: %w", meta.Key, err)
		}

		_, err = tx.Exec(`CREATE INDEX ` + name + `_time ON ` + name + ` (time)`)
		if err != nil {
			return fmt.Errorf("could not create time index for %q: %w", meta.Key, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("could not commit sqlite transaction for channel %q: %w", meta.Key, err)
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
func (db *DB) PutSamples(key string, vs []dmd.Sample) (err error) {
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
		err = nil
	default:
		return err
	}
	if len(vs) == 0 {
		return nil
	}

	tbl := db.table(key)
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("could not create sqlite transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	stmt, err := tx.Prepare(`INSERT INTO ` + tbl + ` (time, value) VALUES (?1, ?2)`)
	if err != nil {
		return fmt.Errorf("could not prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, v := range vs {
		_, err = stmt.Exec(v.Time, v.Value)
		if err != nil {
			return fmt.Errorf("could not insert sample t=%v: %w", v.Time, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("could not commit sqlite transaction: %w", err)
	}
	db.last[key] = vs[len(vs)-1]

	return nil
}

// Samples iterates over samples of the channel key within [beg, end] seconds.
func (db *DB) Samples(key string, beg, end float64) iter.Seq2[dmd.Sample, error] {
	return func(yield func(v dmd.Sample, err error) bool) {
		if _, ok := db.meta[key]; !ok {
			_ = yield(dmd.Sample{}, fmt.Errorf("no such channel %q", key))
			return
		}

		var (
			q    = "SELECT time, value FROM " + db.table(key) + " WHERE ?1 <= time"
			args = []any{beg}
		)
		if end >= 0 {
			q += " AND time <= ?2"
			args = append(args, end)
		}
		q += " ORDER BY time ASC, rowid ASC"

		rows, err := db.db.Query(q, args...)
		if err != nil {
			_ = yield(dmd.Sample{}, fmt.Errorf("could not issue query: %w", err))
			return
		}
		defer rows.Close()

		for i := 0; rows.Next(); i++ {
			var row dmd.Sample
			err = rows.Scan(&row.Time, &row.Value)
			if err != nil {
				_ = yield(row, fmt.Errorf("could not scan row %d: %w", i, err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
		err = rows.Err()
		if err != nil {
			_ = yield(dmd.Sample{}, fmt.Errorf("could not iterate over rows: %w", err))
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
		return last, dmd.ErrNoData
	}
	return last, nil
}
