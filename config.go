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

package certledger

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	accessTokens     map[string]string
	dataDir          string
	owner            string
	apiListenAddress string
	shutdownTimeout  time.Duration
	tracing          bool
	tracingStdout    bool
}

type ConfigOptionFunc func(*Config)

func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		apiListenAddress: ":8080",
		shutdownTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the persistent data directory. An empty value keeps all state in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithOwner specifies the initial registry owner principal. A previously
// transferred owner loaded from storage takes precedence
func WithOwner(owner string) ConfigOptionFunc {
	return func(c *Config) {
		c.owner = owner
	}
}

// WithAccessTokens specifies the bearer token to caller principal mapping
// used by the API to establish caller identity
func WithAccessTokens(accessTokens map[string]string) ConfigOptionFunc {
	return func(c *Config) {
		c.accessTokens = accessTokens
	}
}

// WithApiListenAddress specifies the listen address for the REST API. This defaults to ":8080"
func WithApiListenAddress(listenAddress string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = listenAddress
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegisterer would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to be enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
