// Package oteladapters implements the eventstore observability interfaces on top of OpenTelemetry.
//
// The engine only knows the dependency-free interfaces declared in package eventstore.
// This package maps them onto OTel instruments, spans, and log records:
//
//	tracer := otel.Tracer("eventstore")
//	meter := otel.Meter("eventstore")
//
//	es, err := sqlengine.NewEventStoreFromSQLite(
//		db,
//		sqlengine.WithTracing(oteladapters.NewTracingCollector(tracer)),
//		sqlengine.WithMetrics(oteladapters.NewMetricsCollector(meter)),
//		sqlengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("eventstore")),
//	)
package oteladapters
