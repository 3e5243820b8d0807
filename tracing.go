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
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func (n *Node) setupTracing() error {
	tracerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName("certledger"),
			),
		),
	}
	// Exporter configuration comes from the OTEL_EXPORTER_OTLP_* env vars
	otlpExporter, err := otlptracehttp.New(context.Background())
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	tracerOpts = append(tracerOpts, sdktrace.WithBatcher(otlpExporter))
	if n.config.tracingStdout {
		stdoutExporter, err := stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return fmt.Errorf(
				"failed to create stdout trace exporter: %w",
				err,
			)
		}
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(stdoutExporter))
	}
	tracerProvider := sdktrace.NewTracerProvider(tracerOpts...)
	otel.SetTracerProvider(tracerProvider)
	n.shutdownFuncs = append(n.shutdownFuncs, tracerProvider.Shutdown)
	return nil
}
