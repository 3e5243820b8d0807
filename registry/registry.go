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

package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/opencertify/certledger/database/models"
	"github.com/opencertify/certledger/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	CertificateStoredEventType event.EventType = "registry.certificate_stored"
	OwnershipTransferEventType event.EventType = "registry.ownership_transfer"
)

// Identity is an opaque principal name used for write authorization. The
// empty identity is never a valid owner.
type Identity string

// IdentityNone is the zero identity
const IdentityNone Identity = ""

// CertificateStoredEvent is published after a certificate record has been
// committed. It is advisory only and carries no authority.
type CertificateStoredEvent struct {
	Hash         string
	MatricNumber string
	Timestamp    int64
}

// OwnershipTransferEvent is published after the registry owner has been
// reassigned.
type OwnershipTransferEvent struct {
	PreviousOwner Identity
	NewOwner      Identity
}

// Record is a single certificate registration. Exists distinguishes "never
// written" from a stored record; the zero Record is the canonical answer for
// an unknown hash.
type Record struct {
	Hash         string
	MatricNumber string
	Timestamp    int64
	Exists       bool
}

// Store is the persistence interface needed by the registry. A nil Store
// yields an ephemeral in-memory registry, useful for testing.
type Store interface {
	AddCertificate(cert *models.Certificate, document []byte) error
	Certificates() ([]models.Certificate, error)
	RegistryOwner() (string, error)
	SetRegistryOwner(owner string) error
}

type RegistryConfig struct {
	Store        Store
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Owner        Identity
}

// Registry is the append-only mapping from certificate content hash to
// student record. All mutations are serialized behind a single write lock so
// the duplicate check and insert are indivisible; reads share the read lock
// and observe a consistent snapshot.
type Registry struct {
	config  RegistryConfig
	metrics struct {
		storedNum       prometheus.Counter
		registeredCerts prometheus.Gauge
		verifications   *prometheus.CounterVec
		unauthorizedNum prometheus.Counter
	}
	logger         *slog.Logger
	eventBus       *event.EventBus
	store          Store
	owner          Identity
	records        map[string]Record
	insertionOrder []string
	sync.RWMutex
}

// HashDocument returns the hex-encoded SHA-256 digest of a certificate
// document. The registry itself never inspects document contents.
func HashDocument(document []byte) string {
	digest := sha256.Sum256(document)
	return hex.EncodeToString(digest[:])
}

// NewRegistry creates a registry owned by the configured identity. When a
// store is provided, previously committed records and any transferred owner
// are loaded from it, so the registry survives process restarts.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	r := &Registry{
		config:   config,
		eventBus: config.EventBus,
		store:    config.Store,
		owner:    config.Owner,
		records:  make(map[string]Record),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		r.logger = config.Logger
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	if r.owner == IdentityNone {
		return nil, errors.New("registry owner not configured")
	}
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	r.metrics.storedNum = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "certledger_certificates_stored_total",
			Help: "total certificate records accepted",
		},
	)
	r.metrics.registeredCerts = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "certledger_certificates_registered",
		Help: "current count of registered certificates",
	})
	r.metrics.verifications = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certledger_verifications_total",
			Help: "total verification lookups by result",
		},
		[]string{"result"},
	)
	r.metrics.unauthorizedNum = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "certledger_unauthorized_total",
			Help: "total writes rejected for lack of ownership",
		},
	)
	r.metrics.registeredCerts.Set(float64(len(r.insertionOrder)))
	return r, nil
}

// load restores registry state from the store
func (r *Registry) load() error {
	if r.store == nil {
		return nil
	}
	storedOwner, err := r.store.RegistryOwner()
	if err != nil {
		return fmt.Errorf("failed to load registry owner: %w", err)
	}
	if storedOwner != "" {
		// A previously transferred owner takes precedence over the
		// configured initial owner
		r.owner = Identity(storedOwner)
	} else if r.owner != IdentityNone {
		if err := r.store.SetRegistryOwner(string(r.owner)); err != nil {
			return fmt.Errorf("failed to persist registry owner: %w", err)
		}
	}
	certs, err := r.store.Certificates()
	if err != nil {
		return fmt.Errorf("failed to load certificates: %w", err)
	}
	for _, cert := range certs {
		r.records[cert.Hash] = Record{
			Hash:         cert.Hash,
			MatricNumber: cert.MatricNumber,
			Timestamp:    cert.Timestamp,
			Exists:       true,
		}
		r.insertionOrder = append(r.insertionOrder, cert.Hash)
	}
	r.logger.Info(
		"loaded registry state",
		"component", "registry",
		"certificates", len(r.insertionOrder),
		"owner", string(r.owner),
	)
	return nil
}

// StoreCertificate records a pre-computed certificate hash for a student.
// Only the current owner may write. The timestamp is assigned at call time
// and the hash can never be overwritten or removed afterward.
func (r *Registry) StoreCertificate(
	caller Identity,
	certHash string,
	matricNumber string,
) (Record, error) {
	return r.storeCertificate(caller, certHash, matricNumber, nil)
}

// RegisterDocument hashes a raw certificate document with SHA-256, stores
// the document bytes alongside the record, and registers the digest. It
// returns the stored record, whose Hash field holds the computed digest.
func (r *Registry) RegisterDocument(
	caller Identity,
	document []byte,
	matricNumber string,
) (Record, error) {
	return r.storeCertificate(
		caller,
		HashDocument(document),
		matricNumber,
		document,
	)
}

func (r *Registry) storeCertificate(
	caller Identity,
	certHash string,
	matricNumber string,
	document []byte,
) (Record, error) {
	record, err := r.commitCertificate(caller, certHash, matricNumber, document)
	if err != nil {
		return Record{}, err
	}
	// Notify outside the write lock; delivery is fire-and-forget and must
	// never hold up registry operations
	if r.eventBus != nil {
		r.eventBus.Publish(
			CertificateStoredEventType,
			event.NewEvent(
				CertificateStoredEventType,
				CertificateStoredEvent{
					Hash:         record.Hash,
					MatricNumber: record.MatricNumber,
					Timestamp:    record.Timestamp,
				},
			),
		)
	}
	return record, nil
}

func (r *Registry) commitCertificate(
	caller Identity,
	certHash string,
	matricNumber string,
	document []byte,
) (Record, error) {
	r.Lock()
	defer r.Unlock()
	if caller != r.owner {
		r.metrics.unauthorizedNum.Inc()
		r.logger.Debug(
			"rejected unauthorized store",
			"component", "registry",
			"caller", string(caller),
		)
		return Record{}, ErrUnauthorized
	}
	if existing, ok := r.records[certHash]; ok && existing.Exists {
		return Record{}, &DuplicateKeyError{Hash: certHash}
	}
	record := Record{
		Hash:         certHash,
		MatricNumber: matricNumber,
		Timestamp:    time.Now().Unix(),
		Exists:       true,
	}
	// Commit to the store before updating in-memory state so a failed write
	// leaves no partial effect
	if r.store != nil {
		err := r.store.AddCertificate(
			&models.Certificate{
				Hash:         record.Hash,
				MatricNumber: record.MatricNumber,
				Timestamp:    record.Timestamp,
				Position:     len(r.insertionOrder),
			},
			document,
		)
		if err != nil {
			return Record{}, fmt.Errorf(
				"failed to store certificate: %w",
				err,
			)
		}
	}
	r.records[certHash] = record
	r.insertionOrder = append(r.insertionOrder, certHash)
	r.logger.Info(
		"stored certificate",
		"component", "registry",
		"certificate_hash", record.Hash,
		"matric_number", record.MatricNumber,
	)
	r.metrics.storedNum.Inc()
	r.metrics.registeredCerts.Inc()
	return record, nil
}

// VerifyCertificate looks up a certificate hash. An unknown hash yields the
// zero Record rather than an error; verification of a hash that was never
// stored is a normal outcome.
func (r *Registry) VerifyCertificate(certHash string) Record {
	r.RLock()
	defer r.RUnlock()
	record, ok := r.records[certHash]
	if !ok {
		r.metrics.verifications.WithLabelValues("not_found").Inc()
		return Record{}
	}
	r.metrics.verifications.WithLabelValues("found").Inc()
	return record
}

// VerifyDocument hashes a raw document and verifies the resulting digest.
func (r *Registry) VerifyDocument(document []byte) Record {
	return r.VerifyCertificate(HashDocument(document))
}

// TotalCertificates returns the number of distinct hashes ever accepted. It
// never decreases.
func (r *Registry) TotalCertificates() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.insertionOrder)
}

// CertificateHashes returns up to limit hashes starting at offset, in
// first-accepted order. Pagination past the end yields an empty page rather
// than an error.
func (r *Registry) CertificateHashes(offset, limit int) []string {
	r.RLock()
	defer r.RUnlock()
	if offset < 0 || limit <= 0 || offset >= len(r.insertionOrder) {
		return []string{}
	}
	end := min(offset+limit, len(r.insertionOrder))
	return slices.Clone(r.insertionOrder[offset:end])
}

// CertificateHashByIndex returns the i-th distinct hash ever accepted, in
// first-accepted order.
func (r *Registry) CertificateHashByIndex(index int) (string, error) {
	r.RLock()
	defer r.RUnlock()
	if index < 0 || index >= len(r.insertionOrder) {
		return "", &OutOfRangeError{
			Index: index,
			Total: len(r.insertionOrder),
		}
	}
	return r.insertionOrder[index], nil
}

// Owner returns the identity currently authorized to write
func (r *Registry) Owner() Identity {
	r.RLock()
	defer r.RUnlock()
	return r.owner
}

// TransferOwnership reassigns the registry owner. Only the current owner may
// transfer, and the new owner must not be the empty identity. No history of
// past owners is retained.
func (r *Registry) TransferOwnership(
	caller Identity,
	newOwner Identity,
) error {
	previousOwner, err := r.commitOwner(caller, newOwner)
	if err != nil {
		return err
	}
	if r.eventBus != nil {
		r.eventBus.Publish(
			OwnershipTransferEventType,
			event.NewEvent(
				OwnershipTransferEventType,
				OwnershipTransferEvent{
					PreviousOwner: previousOwner,
					NewOwner:      newOwner,
				},
			),
		)
	}
	return nil
}

func (r *Registry) commitOwner(
	caller Identity,
	newOwner Identity,
) (Identity, error) {
	r.Lock()
	defer r.Unlock()
	if caller != r.owner {
		r.metrics.unauthorizedNum.Inc()
		return IdentityNone, ErrUnauthorized
	}
	if newOwner == IdentityNone {
		return IdentityNone, ErrInvalidOwner
	}
	if r.store != nil {
		if err := r.store.SetRegistryOwner(string(newOwner)); err != nil {
			return IdentityNone, fmt.Errorf(
				"failed to persist registry owner: %w",
				err,
			)
		}
	}
	previousOwner := r.owner
	r.owner = newOwner
	r.logger.Info(
		"transferred registry ownership",
		"component", "registry",
		"previous_owner", string(previousOwner),
		"new_owner", string(newOwner),
	)
	return previousOwner, nil
}
