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

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/opencertify/certledger/database/blob"
	"github.com/opencertify/certledger/registry"
)

const apiVersion = "0.1.0"

// maxDocumentSize caps uploaded certificate documents at 16MB
const maxDocumentSize = 16 << 20

// Page size bounds for certificate list pagination
const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response.
func writeError(
	w http.ResponseWriter,
	status int,
	errStr string,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      errStr,
		Message:    message,
	})
}

// writeRegistryError maps registry errors onto HTTP statuses.
func writeRegistryError(w http.ResponseWriter, err error) {
	var dupErr *registry.DuplicateKeyError
	var rangeErr *registry.OutOfRangeError
	switch {
	case errors.Is(err, registry.ErrUnauthorized):
		writeError(
			w,
			http.StatusForbidden,
			"Forbidden",
			err.Error(),
		)
	case errors.Is(err, registry.ErrInvalidOwner):
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			err.Error(),
		)
	case errors.As(err, &dupErr):
		writeError(
			w,
			http.StatusConflict,
			"Conflict",
			err.Error(),
		)
	case errors.As(err, &rangeErr):
		writeError(
			w,
			http.StatusNotFound,
			"Not Found",
			err.Error(),
		)
	default:
		writeError(
			w,
			http.StatusInternalServerError,
			"Internal Server Error",
			"request failed",
		)
	}
}

// requireIdentity resolves the caller identity or writes a 401. The empty
// identity never matches the registry owner, but rejecting unknown tokens
// up front gives callers a clearer signal than a Forbidden from the
// registry.
func (a *Api) requireIdentity(
	w http.ResponseWriter,
	r *http.Request,
) (registry.Identity, bool) {
	caller, ok := a.callerIdentity(r)
	if !ok {
		writeError(
			w,
			http.StatusUnauthorized,
			"Unauthorized",
			"missing or unrecognized access token",
		)
		return registry.IdentityNone, false
	}
	return caller, true
}

// handleRoot handles GET / and returns API metadata.
func (a *Api) handleRoot(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, RootResponse{
		Service: "certledger",
		Version: apiVersion,
	})
}

// handleHealth handles GET /health.
func (a *Api) handleHealth(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
	})
}

// handleStoreCertificate handles POST /api/v1/certificates and registers a
// pre-computed certificate hash.
func (a *Api) handleStoreCertificate(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	var req StoreCertificateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"invalid JSON body",
		)
		return
	}
	record, err := a.registry.StoreCertificate(
		caller,
		req.CertificateHash,
		req.MatricNumber,
	)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CertificateResponse{
		CertificateHash: record.Hash,
		MatricNumber:    record.MatricNumber,
		Timestamp:       record.Timestamp,
	})
}

// handleVerifyCertificate handles GET /api/v1/certificates/{hash}. An
// unknown hash is a normal outcome and returns exists=false, not an error.
func (a *Api) handleVerifyCertificate(
	w http.ResponseWriter,
	r *http.Request,
) {
	certHash := r.PathValue("hash")
	record := a.registry.VerifyCertificate(certHash)
	writeJSON(w, http.StatusOK, VerificationResponse{
		Exists:          record.Exists,
		CertificateHash: record.Hash,
		MatricNumber:    record.MatricNumber,
		Timestamp:       record.Timestamp,
	})
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// handleListCertificates handles GET /api/v1/certificates and returns the
// total count plus a page of hashes in insertion order.
func (a *Api) handleListCertificates(
	w http.ResponseWriter,
	r *http.Request,
) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"offset must be a non-negative integer",
		)
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"limit must be a positive integer",
		)
		return
	}
	limit = min(limit, maxPageSize)
	writeJSON(w, http.StatusOK, CertificateListResponse{
		TotalCertificates: a.registry.TotalCertificates(),
		Offset:            offset,
		Hashes:            a.registry.CertificateHashes(offset, limit),
	})
}

// handleCertificateByIndex handles
// GET /api/v1/certificates/index/{index}.
func (a *Api) handleCertificateByIndex(
	w http.ResponseWriter,
	r *http.Request,
) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"index must be an integer",
		)
		return
	}
	certHash, err := a.registry.CertificateHashByIndex(index)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CertificateIndexResponse{
		Index:           index,
		CertificateHash: certHash,
	})
}

// readDocument extracts the uploaded document from a multipart form.
func readDocument(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		return nil, err
	}
	file, _, err := r.FormFile("document")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, maxDocumentSize))
}

// handleRegisterDocument handles POST /api/v1/documents. The server hashes
// the uploaded document with SHA-256, stores the document bytes, and
// registers the digest.
func (a *Api) handleRegisterDocument(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	document, err := readDocument(r)
	if err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"expected multipart form with a 'document' file",
		)
		return
	}
	record, err := a.registry.RegisterDocument(
		caller,
		document,
		r.FormValue("matric_number"),
	)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CertificateResponse{
		CertificateHash: record.Hash,
		MatricNumber:    record.MatricNumber,
		Timestamp:       record.Timestamp,
	})
}

// handleVerifyDocument handles POST /api/v1/documents/verify. The uploaded
// document is hashed and the digest verified against the registry.
func (a *Api) handleVerifyDocument(
	w http.ResponseWriter,
	r *http.Request,
) {
	document, err := readDocument(r)
	if err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"expected multipart form with a 'document' file",
		)
		return
	}
	record := a.registry.VerifyDocument(document)
	writeJSON(w, http.StatusOK, VerificationResponse{
		Exists:          record.Exists,
		CertificateHash: record.Hash,
		MatricNumber:    record.MatricNumber,
		Timestamp:       record.Timestamp,
	})
}

// handleGetDocument handles GET /api/v1/certificates/{hash}/document and
// returns the stored raw document.
func (a *Api) handleGetDocument(
	w http.ResponseWriter,
	r *http.Request,
) {
	if a.documents == nil {
		writeError(
			w,
			http.StatusNotFound,
			"Not Found",
			"document storage not configured",
		)
		return
	}
	certHash := r.PathValue("hash")
	document, err := a.documents.Document(certHash)
	if err != nil {
		if errors.Is(err, blob.ErrKeyNotFound) {
			writeError(
				w,
				http.StatusNotFound,
				"Not Found",
				"no document stored for certificate hash",
			)
			return
		}
		a.logger.Error(
			"failed to fetch document",
			"certificate_hash", certHash,
			"error", err,
		)
		writeError(
			w,
			http.StatusInternalServerError,
			"Internal Server Error",
			"failed to retrieve document",
		)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write(document)
}

// handleGetOwner handles GET /api/v1/owner. The owner principal is part of
// the externally readable state surface.
func (a *Api) handleGetOwner(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, OwnerResponse{
		Owner: string(a.registry.Owner()),
	})
}

// handleTransferOwnership handles POST /api/v1/owner.
func (a *Api) handleTransferOwnership(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	var req TransferOwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"invalid JSON body",
		)
		return
	}
	err := a.registry.TransferOwnership(
		caller,
		registry.Identity(req.NewOwner),
	)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OwnerResponse{
		Owner: string(a.registry.Owner()),
	})
}
