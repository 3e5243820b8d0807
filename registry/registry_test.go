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

package registry_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opencertify/certledger/database"
	"github.com/opencertify/certledger/event"
	"github.com/opencertify/certledger/registry"
	"github.com/stretchr/testify/require"
)

const testOwner = registry.Identity("registrar")

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.NewRegistry(registry.RegistryConfig{
		Owner: testOwner,
	})
	require.NoError(t, err)
	return r
}

func TestNewRegistryRequiresOwner(t *testing.T) {
	_, err := registry.NewRegistry(registry.RegistryConfig{})
	require.Error(t, err)
}

func TestStoreCertificate(t *testing.T) {
	r := newTestRegistry(t)
	before := time.Now().Unix()
	record, err := r.StoreCertificate(testOwner, "cert-hash-1", "MAT/2025/001")
	require.NoError(t, err)
	after := time.Now().Unix()
	require.True(t, record.Exists)
	require.Equal(t, "cert-hash-1", record.Hash)
	require.Equal(t, "MAT/2025/001", record.MatricNumber)
	require.GreaterOrEqual(t, record.Timestamp, before)
	require.LessOrEqual(t, record.Timestamp, after)
	require.Equal(t, 1, r.TotalCertificates())
}

func TestStoreCertificateUnauthorized(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.StoreCertificate("intruder", "cert-hash-1", "MAT/2025/001")
	require.ErrorIs(t, err, registry.ErrUnauthorized)
	// A rejected write must leave no trace
	require.Equal(t, 0, r.TotalCertificates())
	require.False(t, r.VerifyCertificate("cert-hash-1").Exists)
}

func TestStoreCertificateEmptyIdentityNeverOwner(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.StoreCertificate(
		registry.IdentityNone,
		"cert-hash-1",
		"MAT/2025/001",
	)
	require.ErrorIs(t, err, registry.ErrUnauthorized)
}

func TestStoreCertificateDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	first, err := r.StoreCertificate(testOwner, "cert-hash-1", "MAT/2025/001")
	require.NoError(t, err)
	_, err = r.StoreCertificate(testOwner, "cert-hash-1", "MAT/2025/999")
	var dupErr *registry.DuplicateKeyError
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "cert-hash-1", dupErr.Hash)
	// Original record is untouched
	record := r.VerifyCertificate("cert-hash-1")
	require.Equal(t, first, record)
	require.Equal(t, 1, r.TotalCertificates())
}

// TestStoreCertificateDuplicateByNonOwner pins the check ordering: the
// owner check runs before the duplicate check, so a non-owner re-storing an
// existing hash is told it lacks authority, not that the hash is taken.
func TestStoreCertificateDuplicateByNonOwner(t *testing.T) {
	r := newTestRegistry(t)
	first, err := r.StoreCertificate(testOwner, "cert-hash-1", "MAT/2025/001")
	require.NoError(t, err)
	_, err = r.StoreCertificate("intruder", "cert-hash-1", "MAT/2025/999")
	require.ErrorIs(t, err, registry.ErrUnauthorized)
	// Either way the stored record is untouched
	require.Equal(t, first, r.VerifyCertificate("cert-hash-1"))
	require.Equal(t, 1, r.TotalCertificates())
}

func TestVerifyCertificateUnknown(t *testing.T) {
	r := newTestRegistry(t)
	record := r.VerifyCertificate("never-stored")
	require.False(t, record.Exists)
	require.Empty(t, record.Hash)
	require.Empty(t, record.MatricNumber)
	require.Zero(t, record.Timestamp)
}

func TestVerifyDocumentRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	document := []byte("certificate of graduation")
	record, err := r.RegisterDocument(testOwner, document, "MAT/2025/042")
	require.NoError(t, err)
	require.Equal(t, registry.HashDocument(document), record.Hash)
	verified := r.VerifyDocument(document)
	require.True(t, verified.Exists)
	require.Equal(t, record, verified)
	// A tampered document must not verify
	require.False(t, r.VerifyDocument([]byte("certificate of graduatiom")).Exists)
}

func TestCertificateHashByIndex(t *testing.T) {
	r := newTestRegistry(t)
	hashes := []string{"cert-a", "cert-b", "cert-c"}
	for i, h := range hashes {
		_, err := r.StoreCertificate(testOwner, h, "MAT/2025/00"+string(rune('1'+i)))
		require.NoError(t, err)
	}
	for i, want := range hashes {
		got, err := r.CertificateHashByIndex(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	var rangeErr *registry.OutOfRangeError
	_, err := r.CertificateHashByIndex(len(hashes))
	require.ErrorAs(t, err, &rangeErr)
	require.Equal(t, len(hashes), rangeErr.Index)
	require.Equal(t, len(hashes), rangeErr.Total)
	_, err = r.CertificateHashByIndex(-1)
	require.ErrorAs(t, err, &rangeErr)
}

func TestCertificateHashes(t *testing.T) {
	r := newTestRegistry(t)
	hashes := []string{"cert-a", "cert-b", "cert-c"}
	for _, h := range hashes {
		_, err := r.StoreCertificate(testOwner, h, "MAT/2025/001")
		require.NoError(t, err)
	}
	require.Equal(t, hashes, r.CertificateHashes(0, 10))
	require.Equal(t, []string{"cert-b"}, r.CertificateHashes(1, 1))
	require.Equal(t, []string{"cert-b", "cert-c"}, r.CertificateHashes(1, 10))
	require.Empty(t, r.CertificateHashes(3, 10))
	require.Empty(t, r.CertificateHashes(-1, 10))
	require.Empty(t, r.CertificateHashes(0, 0))
}

func TestCertificateHashByIndexEmpty(t *testing.T) {
	r := newTestRegistry(t)
	var rangeErr *registry.OutOfRangeError
	_, err := r.CertificateHashByIndex(0)
	require.ErrorAs(t, err, &rangeErr)
}

func TestTransferOwnership(t *testing.T) {
	r := newTestRegistry(t)
	newOwner := registry.Identity("successor")
	require.NoError(t, r.TransferOwnership(testOwner, newOwner))
	require.Equal(t, newOwner, r.Owner())
	// Former owner loses write access immediately
	_, err := r.StoreCertificate(testOwner, "cert-hash-1", "MAT/2025/001")
	require.ErrorIs(t, err, registry.ErrUnauthorized)
	// New owner can write
	_, err = r.StoreCertificate(newOwner, "cert-hash-1", "MAT/2025/001")
	require.NoError(t, err)
}

func TestTransferOwnershipUnauthorized(t *testing.T) {
	r := newTestRegistry(t)
	err := r.TransferOwnership("intruder", "successor")
	require.ErrorIs(t, err, registry.ErrUnauthorized)
	require.Equal(t, testOwner, r.Owner())
}

func TestTransferOwnershipEmptyIdentity(t *testing.T) {
	r := newTestRegistry(t)
	err := r.TransferOwnership(testOwner, registry.IdentityNone)
	require.ErrorIs(t, err, registry.ErrInvalidOwner)
	require.Equal(t, testOwner, r.Owner())
}

func TestStoreCertificateEvent(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	r, err := registry.NewRegistry(registry.RegistryConfig{
		Owner:    testOwner,
		EventBus: eb,
	})
	require.NoError(t, err)
	_, evtCh := eb.Subscribe(registry.CertificateStoredEventType)
	record, err := r.StoreCertificate(testOwner, "cert-hash-1", "MAT/2025/001")
	require.NoError(t, err)
	select {
	case evt := <-evtCh:
		data, ok := evt.Data.(registry.CertificateStoredEvent)
		require.True(t, ok, "unexpected event data type %T", evt.Data)
		require.Equal(t, record.Hash, data.Hash)
		require.Equal(t, record.MatricNumber, data.MatricNumber)
		require.Equal(t, record.Timestamp, data.Timestamp)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for certificate stored event")
	}
}

func TestOwnershipTransferEvent(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	r, err := registry.NewRegistry(registry.RegistryConfig{
		Owner:    testOwner,
		EventBus: eb,
	})
	require.NoError(t, err)
	_, evtCh := eb.Subscribe(registry.OwnershipTransferEventType)
	require.NoError(t, r.TransferOwnership(testOwner, "successor"))
	select {
	case evt := <-evtCh:
		data, ok := evt.Data.(registry.OwnershipTransferEvent)
		require.True(t, ok, "unexpected event data type %T", evt.Data)
		require.Equal(t, testOwner, data.PreviousOwner)
		require.Equal(t, registry.Identity("successor"), data.NewOwner)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for ownership transfer event")
	}
}

// TestStoreCertificateWithLaggingSubscriber verifies that a subscriber that
// stops draining its event channel cannot stall registry writes or reads.
func TestStoreCertificateWithLaggingSubscriber(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	r, err := registry.NewRegistry(registry.RegistryConfig{
		Owner:    testOwner,
		EventBus: eb,
	})
	require.NoError(t, err)

	// Subscribe but never read from the channel
	_, _ = eb.Subscribe(registry.CertificateStoredEventType)

	total := event.EventQueueSize + 5
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range total {
			hash := registry.HashDocument([]byte{byte(i)})
			if _, err := r.StoreCertificate(testOwner, hash, "MAT/2025/001"); err != nil {
				t.Errorf("unexpected store error: %v", err)
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stores blocked behind a subscriber that stopped draining")
	}

	// Reads must not be wedged either
	readDone := make(chan int, 1)
	go func() {
		readDone <- r.TotalCertificates()
	}()
	select {
	case got := <-readDone:
		require.Equal(t, total, got)
	case <-time.After(1 * time.Second):
		t.Fatal("TotalCertificates blocked behind a lagging subscriber")
	}
}

func TestConcurrentStores(t *testing.T) {
	r := newTestRegistry(t)
	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range perWriter {
				hash := registry.HashDocument(
					[]byte{byte(w), byte(i)},
				)
				_, err := r.StoreCertificate(testOwner, hash, "MAT/2025/001")
				if err != nil {
					var dupErr *registry.DuplicateKeyError
					if !errors.As(err, &dupErr) {
						t.Errorf("unexpected store error: %v", err)
					}
				}
			}
		}(w)
	}
	wg.Wait()
	require.Equal(t, writers*perWriter, r.TotalCertificates())
	// Insertion order must cover every index without gaps
	seen := make(map[string]bool)
	for i := range r.TotalCertificates() {
		hash, err := r.CertificateHashByIndex(i)
		require.NoError(t, err)
		require.False(t, seen[hash], "hash %s appears twice in order", hash)
		seen[hash] = true
	}
}

// TestRegistryPersistence verifies that records and a transferred owner
// survive a restart when backed by an on-disk store.
func TestRegistryPersistence(t *testing.T) {
	dataDir := t.TempDir()

	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	r, err := registry.NewRegistry(registry.RegistryConfig{
		Store: db,
		Owner: testOwner,
	})
	require.NoError(t, err)
	document := []byte("certificate of graduation")
	stored, err := r.RegisterDocument(testOwner, document, "MAT/2025/042")
	require.NoError(t, err)
	_, err = r.StoreCertificate(testOwner, "cert-hash-2", "MAT/2025/043")
	require.NoError(t, err)
	require.NoError(t, r.TransferOwnership(testOwner, "successor"))
	require.NoError(t, db.Close())

	// Reopen with the same data directory and a different configured owner
	db, err = database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck
	r, err = registry.NewRegistry(registry.RegistryConfig{
		Store: db,
		Owner: testOwner,
	})
	require.NoError(t, err)

	// The transferred owner wins over the configured one
	require.Equal(t, registry.Identity("successor"), r.Owner())
	require.Equal(t, 2, r.TotalCertificates())
	record := r.VerifyDocument(document)
	require.True(t, record.Exists)
	require.Equal(t, stored, record)
	first, err := r.CertificateHashByIndex(0)
	require.NoError(t, err)
	require.Equal(t, stored.Hash, first)
	second, err := r.CertificateHashByIndex(1)
	require.NoError(t, err)
	require.Equal(t, "cert-hash-2", second)

	// The document blob is still there too
	got, err := db.Document(stored.Hash)
	require.NoError(t, err)
	require.Equal(t, document, got)
}

// TestRegistryLifecycle walks the complete ownership and registration flow
// through a single registry instance.
func TestRegistryLifecycle(t *testing.T) {
	ownerA := registry.Identity("registrar-a")
	ownerB := registry.Identity("registrar-b")
	r, err := registry.NewRegistry(registry.RegistryConfig{
		Owner: ownerA,
	})
	require.NoError(t, err)

	// A stores the first certificate
	_, err = r.StoreCertificate(ownerA, "cert-1", "MAT/2025/001")
	require.NoError(t, err)
	require.Equal(t, 1, r.TotalCertificates())

	// B is not the owner yet and cannot write
	_, err = r.StoreCertificate(ownerB, "cert-2", "MAT/2025/002")
	require.ErrorIs(t, err, registry.ErrUnauthorized)
	require.Equal(t, 1, r.TotalCertificates())

	_, err = r.StoreCertificate(ownerA, "cert-2", "MAT/2025/002")
	require.NoError(t, err)
	require.Equal(t, 2, r.TotalCertificates())

	// A hands the registry to B
	require.NoError(t, r.TransferOwnership(ownerA, ownerB))

	// A can no longer write
	_, err = r.StoreCertificate(ownerA, "cert-3", "MAT/2025/003")
	require.ErrorIs(t, err, registry.ErrUnauthorized)

	// B can
	_, err = r.StoreCertificate(ownerB, "cert-3", "MAT/2025/003")
	require.NoError(t, err)
	require.Equal(t, 3, r.TotalCertificates())

	// Insertion order spans both ownership eras
	for i, want := range []string{"cert-1", "cert-2", "cert-3"} {
		got, err := r.CertificateHashByIndex(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	// Every stored certificate verifies
	for _, hash := range []string{"cert-1", "cert-2", "cert-3"} {
		require.True(t, r.VerifyCertificate(hash).Exists)
	}
	require.False(t, r.VerifyCertificate("cert-4").Exists)
}
