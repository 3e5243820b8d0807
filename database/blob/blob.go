// Copyright 2025 OpenCertify Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

var ErrKeyNotFound = errors.New("blob key not found")

// Store holds raw certificate documents in badger, keyed by their content
// hash. Data is kept in memory when no data directory is configured.
type Store struct {
	db       *badger.DB
	logger   *slog.Logger
	gcTicker *time.Ticker
	gcStopCh chan struct{}
	dataDir  string
	gcWg     sync.WaitGroup
}

// New creates a new document blob store
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	db := &Store{
		dataDir: dataDir,
		logger:  logger,
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var blobDb *badger.DB
	var err error
	if dataDir == "" {
		badgerOpts := badger.DefaultOptions("").
			WithLogger(newBadgerLogger(db.logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true)
		blobDb, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		blobDir := filepath.Join(
			dataDir,
			"blob",
		)
		badgerOpts := badger.DefaultOptions(blobDir).
			WithLogger(newBadgerLogger(db.logger)).
			WithLoggingLevel(badger.WARNING).
			WithCompression(options.Snappy)
		blobDb, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
		// Value log GC only applies to disk-backed stores
		db.gcTicker = time.NewTicker(5 * time.Minute)
		db.gcStopCh = make(chan struct{})
		db.gcWg.Add(1)
		go db.blobGc(db.gcTicker, db.gcStopCh)
	}
	db.db = blobDb
	return db, nil
}

func (d *Store) blobGc(t *time.Ticker, stop <-chan struct{}) {
	defer d.gcWg.Done()
	for {
		select {
		case <-t.C:
		again:
			err := d.DB().RunValueLogGC(0.5)
			if err != nil {
				// Log any actual errors
				if !errors.Is(err, badger.ErrNoRewrite) {
					d.logger.Warn(
						fmt.Sprintf("blob DB: GC failure: %s", err),
						"component", "database",
					)
				}
			} else {
				// Run it again if it just ran successfully
				goto again
			}
		case <-stop:
			return
		}
	}
}

// DB returns the database handle
func (d *Store) DB() *badger.DB {
	return d.db
}

// Close stops the GC goroutine and closes the database handle
func (d *Store) Close() error {
	if d.gcTicker != nil {
		d.gcTicker.Stop()
		if d.gcStopCh != nil {
			close(d.gcStopCh)
			d.gcStopCh = nil
		}
		d.gcWg.Wait()
		d.gcTicker = nil
	}
	return d.DB().Close()
}

// Set stores a document under its content hash
func (d *Store) Set(key, val []byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// Get retrieves a document by content hash
func (d *Store) Get(key []byte) ([]byte, error) {
	var ret []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		ret, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Delete removes a document by content hash. Used only to undo a blob write
// when the accompanying metadata commit fails; registered records are never
// deleted.
func (d *Store) Delete(key []byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}
