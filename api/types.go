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

// RootResponse is returned by GET /.
type RootResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// StoreCertificateRequest is the body for POST /api/v1/certificates.
type StoreCertificateRequest struct {
	CertificateHash string `json:"certificate_hash"`
	MatricNumber    string `json:"matric_number"`
}

// CertificateResponse describes a stored certificate record.
type CertificateResponse struct {
	CertificateHash string `json:"certificate_hash"`
	MatricNumber    string `json:"matric_number"`
	Timestamp       int64  `json:"timestamp"`
}

// VerificationResponse is returned by verification endpoints. A hash that
// was never stored yields exists=false with zero-value fields, not an error.
type VerificationResponse struct {
	Exists          bool   `json:"exists"`
	CertificateHash string `json:"certificate_hash"`
	MatricNumber    string `json:"matric_number"`
	Timestamp       int64  `json:"timestamp"`
}

// CertificateListResponse is returned by GET /api/v1/certificates: the
// total count plus a page of hashes in insertion order.
type CertificateListResponse struct {
	TotalCertificates int      `json:"total_certificates"`
	Offset            int      `json:"offset"`
	Hashes            []string `json:"hashes"`
}

// CertificateIndexResponse is returned by
// GET /api/v1/certificates/index/{index}.
type CertificateIndexResponse struct {
	Index           int    `json:"index"`
	CertificateHash string `json:"certificate_hash"`
}

// OwnerResponse is returned by owner endpoints.
type OwnerResponse struct {
	Owner string `json:"owner"`
}

// TransferOwnershipRequest is the body for POST /api/v1/owner.
type TransferOwnershipRequest struct {
	NewOwner string `json:"new_owner"`
}
