// Package instrumentation provides OpenTelemetry metrics and tracing for the
// IPC engine.
//
// When disabled, no-op providers are used so instrumented code paths carry
// zero overhead. All helpers are nil-safe: components hold an optional
// *Instrumentation and the engine works identically without one.
package instrumentation
