// Package wstransport is the reference websocket transport for the telemetry
// queue. It maintains a single long-lived connection to the collector,
// authenticates with a bearer token after dialing, and redials with capped
// exponential backoff when the connection drops.
//
// The queue only depends on the telemetry.Transport interface; this package
// exists so the module is usable end to end without writing a transport.
package wstransport
