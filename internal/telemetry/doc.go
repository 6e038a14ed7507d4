// Package telemetry installs the OpenTelemetry SDK behind the otel globals
// for sheetctx.
//
// Context builds, retrieval, the vector store, embeddings and both servers
// record spans and metrics through otel.Tracer and otel.Meter. New points
// those globals at OTLP exporters (gRPC or HTTP/protobuf) when
// telemetry.enabled is set, and leaves them no-op otherwise:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc          # or http/protobuf
//	  sampling:
//	    rate: 0.1
//	  metrics:
//	    export_interval: "15s"
//
// Plaintext export is refused unless the collector is on loopback; ca_file
// adds a private CA for remote collectors.
//
// A failed exporter does not fail the command. Health reports the first
// failure and /health and the health command surface it.
//
// NewTestTelemetry swaps the exporters for in-memory ones so tests can read
// back what the globals recorded.
package telemetry
