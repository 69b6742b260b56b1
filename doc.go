// Package telemetry provides a durable, at-least-once error reporting queue
// for the Whagons client.
//
// Typical flow:
//  1. Construct a Queue over a Store (sqlite package for the durable backend)
//     and a Transport (the realtime channel to the collector).
//  2. Call Init to start the periodic flush and stale-eviction timers and to
//     subscribe to transport acknowledgment and connectivity events.
//  3. Report failures through CaptureError and its adapters; records are
//     persisted first and delivered best-effort, surviving restarts until the
//     collector acknowledges them by id.
//
// Nothing in this package propagates failures to the host application:
// capturing an error must never itself become a source of crashes. The
// collector deduplicates by record id, so duplicate delivery after a process
// restart is acceptable by design.
package telemetry
