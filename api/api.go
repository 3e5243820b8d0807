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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/opencertify/certledger/registry"
)

// RegistryService is the registry surface needed by the API server.
type RegistryService interface {
	StoreCertificate(
		caller registry.Identity,
		certHash string,
		matricNumber string,
	) (registry.Record, error)
	RegisterDocument(
		caller registry.Identity,
		document []byte,
		matricNumber string,
	) (registry.Record, error)
	VerifyCertificate(certHash string) registry.Record
	VerifyDocument(document []byte) registry.Record
	TotalCertificates() int
	CertificateHashes(offset int, limit int) []string
	CertificateHashByIndex(index int) (string, error)
	Owner() registry.Identity
	TransferOwnership(
		caller registry.Identity,
		newOwner registry.Identity,
	) error
}

// DocumentStore provides read access to stored certificate documents.
type DocumentStore interface {
	Document(hash string) ([]byte, error)
}

type ApiConfig struct {
	ListenAddress string
	// AccessTokens maps bearer tokens to caller principals
	AccessTokens map[string]string
}

// Api is the REST API server for the certificate registry.
type Api struct {
	config     ApiConfig
	logger     *slog.Logger
	registry   RegistryService
	documents  DocumentStore
	httpServer *http.Server
	mu         sync.Mutex
}

// New creates a new API server instance.
func New(
	cfg ApiConfig,
	registryService RegistryService,
	documents DocumentStore,
	logger *slog.Logger,
) *Api {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	return &Api{
		config:    cfg,
		logger:    logger,
		registry:  registryService,
		documents: documents,
	}
}

// Start starts the HTTP server in a background goroutine.
func (a *Api) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.httpServer != nil {
		a.mu.Unlock()
		return errors.New("server already started")
	}

	server := &http.Server{
		Addr:              a.config.ListenAddress,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	a.httpServer = server
	a.mu.Unlock()

	// Start the server with deterministic error detection
	if err := a.startServer(server); err != nil {
		a.mu.Lock()
		a.httpServer = nil
		a.mu.Unlock()
		return err
	}

	a.logger.Info(
		"registry API listener started on " + a.config.ListenAddress,
	)

	// Monitor context for cancellation
	go func() {
		<-ctx.Done()
		a.mu.Lock()
		srv := a.httpServer
		a.httpServer = nil
		a.mu.Unlock()

		if srv != nil {
			a.logger.Debug(
				"context cancelled, shutting down registry API server",
			)
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				30*time.Second,
			)
			defer cancel()
			//nolint:contextcheck
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error(
					"failed to shutdown registry API server on context cancellation",
					"error", err,
				)
			}
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (a *Api) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()

	if srv != nil {
		a.logger.Debug("shutting down registry API server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf(
				"failed to shutdown registry API server: %w",
				err,
			)
		}
	}
	return nil
}

// Handler returns the route mux, also used directly in tests.
func (a *Api) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", a.handleRoot)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc(
		"POST /api/v1/certificates",
		a.handleStoreCertificate,
	)
	mux.HandleFunc(
		"GET /api/v1/certificates",
		a.handleListCertificates,
	)
	mux.HandleFunc(
		"GET /api/v1/certificates/{hash}",
		a.handleVerifyCertificate,
	)
	mux.HandleFunc(
		"GET /api/v1/certificates/{hash}/document",
		a.handleGetDocument,
	)
	mux.HandleFunc(
		"GET /api/v1/certificates/index/{index}",
		a.handleCertificateByIndex,
	)
	mux.HandleFunc(
		"POST /api/v1/documents",
		a.handleRegisterDocument,
	)
	mux.HandleFunc(
		"POST /api/v1/documents/verify",
		a.handleVerifyDocument,
	)
	mux.HandleFunc("GET /api/v1/owner", a.handleGetOwner)
	mux.HandleFunc("POST /api/v1/owner", a.handleTransferOwnership)
	return mux
}

// startServer starts the HTTP server with deterministic error detection. It
// binds the listening socket first so port conflicts are detected
// immediately, then serves in a background goroutine.
func (a *Api) startServer(server *http.Server) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf(
			"failed to listen for registry API server: %w",
			err,
		)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(
				"registry API server error",
				"error", err,
			)
		}
	}()
	return nil
}
