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
	"fmt"

	"github.com/opencertify/certledger/database/models"
)

// AddCertificate inserts a certificate record, together with the raw
// certificate document when one was supplied. The record insert runs inside
// a metadata transaction; the document write is undone if the record insert
// fails, so the operation is all-or-nothing.
func (d *Database) AddCertificate(
	cert *models.Certificate,
	document []byte,
) error {
	// Write the document blob first. It is content-addressed by the
	// certificate hash, so a retried write is idempotent.
	if document != nil {
		if err := d.blob.Set([]byte(cert.Hash), document); err != nil {
			return fmt.Errorf("blob write failed: %w", err)
		}
	}
	txn := d.metadata.Transaction()
	if err := d.metadata.AddCertificate(cert, txn); err != nil {
		txn.Rollback()
		d.undoDocument(cert.Hash, document)
		return err
	}
	if result := txn.Commit(); result.Error != nil {
		d.undoDocument(cert.Hash, document)
		return fmt.Errorf("metadata commit failed: %w", result.Error)
	}
	return nil
}

func (d *Database) undoDocument(hash string, document []byte) {
	if document == nil {
		return
	}
	if err := d.blob.Delete([]byte(hash)); err != nil {
		d.logger.Error(
			"failed to undo document write after metadata failure",
			"component", "database",
			"certificate_hash", hash,
			"error", err,
		)
	}
}

// CertificateByHash returns the certificate record for a hash
func (d *Database) CertificateByHash(
	hash string,
) (*models.Certificate, error) {
	return d.metadata.CertificateByHash(hash, nil)
}

// CertificateByPosition returns the certificate record at an
// insertion-order position
func (d *Database) CertificateByPosition(
	position int,
) (*models.Certificate, error) {
	return d.metadata.CertificateByPosition(position, nil)
}

// CertificateCount returns the number of stored certificate records
func (d *Database) CertificateCount() (int64, error) {
	return d.metadata.CertificateCount(nil)
}

// Certificates returns all certificate records in insertion order
func (d *Database) Certificates() ([]models.Certificate, error) {
	return d.metadata.Certificates(nil)
}

// RegistryOwner returns the stored owner principal, or empty string when no
// owner has been recorded yet
func (d *Database) RegistryOwner() (string, error) {
	return d.metadata.RegistryOwner(nil)
}

// SetRegistryOwner records the owner principal
func (d *Database) SetRegistryOwner(owner string) error {
	return d.metadata.SetRegistryOwner(owner, nil)
}

// Document returns the raw certificate document stored for a hash
func (d *Database) Document(hash string) ([]byte, error) {
	return d.blob.Get([]byte(hash))
}
