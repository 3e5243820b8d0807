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

package metadata

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/opencertify/certledger/database/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Store is a SQLite-backed metadata store holding certificate records and
// singleton registry state.
type Store struct {
	promRegistry prometheus.Registerer
	db           *gorm.DB
	logger       *slog.Logger
	dataDir      string
}

// New creates a SQLite metadata store. Uses an in-memory database if dataDir
// is empty, useful for testing.
func New(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Store, error) {
	var metadataDb *gorm.DB
	var err error
	if dataDir == "" {
		// cache=shared allows multiple connections to share the same
		// in-memory database
		metadataDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		metadataDbPath := filepath.Join(
			dataDir,
			"metadata.sqlite",
		)
		// WAL journal mode, disable sync on write
		metadataConnOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)"
		metadataDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", metadataDbPath, metadataConnOpts),
			),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	}
	db := &Store{
		db:           metadataDb,
		dataDir:      dataDir,
		logger:       logger,
		promRegistry: promRegistry,
	}
	if err := db.init(); err != nil {
		return db, err
	}
	// Create table schemas
	for _, model := range models.MigrateModels {
		db.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := db.db.AutoMigrate(model); err != nil {
			return db, err
		}
	}
	db.registerMetrics()
	return db, nil
}

// registerMetrics exposes the certificate row count as a gauge sampled from
// the store at scrape time.
func (d *Store) registerMetrics() {
	if d.promRegistry == nil {
		return
	}
	promauto.With(d.promRegistry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "certledger_metadata_certificate_rows",
			Help: "certificate rows in the metadata store",
		},
		func() float64 {
			count, err := d.CertificateCount(nil)
			if err != nil {
				return 0
			}
			return float64(count)
		},
	)
}

func (d *Store) init() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure tracing for GORM
	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	return nil
}

// DB returns the underlying GORM database handle.
func (d *Store) DB() *gorm.DB {
	return d.db
}

// Transaction creates a new database transaction.
func (d *Store) Transaction() *gorm.DB {
	return d.DB().Begin()
}

// Close shuts down the database connection.
func (d *Store) Close() error {
	db, err := d.DB().DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return db.Close()
}

// AddCertificate inserts a certificate record. The unique indexes on hash
// and position enforce the registry's append-only invariants at the storage
// layer as well.
func (d *Store) AddCertificate(
	cert *models.Certificate,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	if result := txn.Create(cert); result.Error != nil {
		return result.Error
	}
	return nil
}

// CertificateByHash returns the certificate record for a hash.
func (d *Store) CertificateByHash(
	hash string,
	txn *gorm.DB,
) (*models.Certificate, error) {
	if txn == nil {
		txn = d.DB()
	}
	var ret models.Certificate
	result := txn.Where("hash = ?", hash).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrCertificateNotFound
		}
		return nil, result.Error
	}
	return &ret, nil
}

// CertificateByPosition returns the certificate record at an insertion-order
// position.
func (d *Store) CertificateByPosition(
	position int,
	txn *gorm.DB,
) (*models.Certificate, error) {
	if txn == nil {
		txn = d.DB()
	}
	var ret models.Certificate
	result := txn.Where("position = ?", position).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrCertificateNotFound
		}
		return nil, result.Error
	}
	return &ret, nil
}

// CertificateCount returns the number of stored certificate records.
func (d *Store) CertificateCount(txn *gorm.DB) (int64, error) {
	if txn == nil {
		txn = d.DB()
	}
	var count int64
	result := txn.Model(&models.Certificate{}).Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}

// Certificates returns all certificate records in insertion order.
func (d *Store) Certificates(txn *gorm.DB) ([]models.Certificate, error) {
	if txn == nil {
		txn = d.DB()
	}
	var ret []models.Certificate
	result := txn.Order("position").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// RegistryOwner returns the stored owner principal, or empty string when no
// owner has been recorded yet.
func (d *Store) RegistryOwner(txn *gorm.DB) (string, error) {
	if txn == nil {
		txn = d.DB()
	}
	var ret models.RegistryState
	result := txn.Where("key = ?", models.RegistryStateKeyOwner).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", result.Error
	}
	return ret.Value, nil
}

// SetRegistryOwner records the owner principal, overwriting any previous
// value. No history of past owners is retained.
func (d *Store) SetRegistryOwner(owner string, txn *gorm.DB) error {
	if txn == nil {
		txn = d.DB()
	}
	var existing models.RegistryState
	result := txn.Where("key = ?", models.RegistryStateKeyOwner).
		First(&existing)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if result := txn.Create(&models.RegistryState{
			Key:   models.RegistryStateKeyOwner,
			Value: owner,
		}); result.Error != nil {
			return result.Error
		}
		return nil
	}
	existing.Value = owner
	if result := txn.Save(&existing); result.Error != nil {
		return result.Error
	}
	return nil
}
