// Package sqlite provides the SQLite-backed durable store for the telemetry
// queue. The database file is separate from any application storage so queued
// errors survive a corrupted or wiped application database.
//
// Opening is lazy: the first operation (or an explicit Init) opens the pool
// and creates the schema, and concurrent callers share the single open
// attempt. A failed open is sticky; every later operation reports it.
package sqlite
