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

package database

import (
	"errors"
	"io"
	"log/slog"

	"github.com/opencertify/certledger/database/blob"
	"github.com/opencertify/certledger/database/metadata"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	DataDir      string
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// Database combines the SQLite metadata store (certificate records,
// registry state) with the badger blob store (raw certificate documents).
type Database struct {
	logger   *slog.Logger
	blob     *blob.Store
	metadata *metadata.Store
	dataDir  string
}

// New creates a new database instance with optional persistence using the
// provided data directory. An empty data directory keeps everything in
// memory.
func New(cfg *Config) (*Database, error) {
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	metadataDb, err := metadata.New(cfg.DataDir, logger, cfg.PromRegistry)
	if err != nil {
		return nil, err
	}
	blobDb, err := blob.New(cfg.DataDir, logger)
	if err != nil {
		return nil, err
	}
	db := &Database{
		logger:   logger,
		blob:     blobDb,
		metadata: metadataDb,
		dataDir:  cfg.DataDir,
	}
	return db, nil
}

// Blob returns the underlying blob store instance
func (d *Database) Blob() *blob.Store {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() *metadata.Store {
	return d.metadata
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	metadataErr := d.Metadata().Close()
	err = errors.Join(err, metadataErr)
	blobErr := d.Blob().Close()
	err = errors.Join(err, blobErr)
	return err
}
