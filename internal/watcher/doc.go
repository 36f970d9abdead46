// Package watcher drives the automated ingestion pipeline.
//
// A filesystem watcher observes the drop folder; creation events flow
// through a bounded channel into a pool of workers, each applying the
// classify -> ensure item -> move -> register pipeline to one file.
// Assembly hierarchy exports additionally schedule a BOM extraction job on
// a supervised background runner with retry and per-item serialization, so
// the event loop never waits on extraction.
//
// Failure containment is the package's core contract: one file's failure is
// logged and abandoned, and the watch loop keeps listening indefinitely.
package watcher
