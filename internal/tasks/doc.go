// Package tasks runs download and conversion jobs over a collection of tracks with real-time progress
// reporting.
//
// # Download runs
//
// [Orchestrator.Run] freezes the collection and drains it through a bounded pool of workers. Each worker
// takes the next index, resolves the track against the preferred source, downloads it and optionally
// converts and tags the result. When a step fails the worker walks the fallback chain:
//
//  1. preferred source at the requested quality
//  2. secondary source
//  3. preferred source at the degraded quality (only after a quality restriction)
//  4. video host search, ranked by [resolver.SelectVideo]
//
// A file that already exists, or a source without a downloader, fails the step. The walk then moves on
// to the next step.
//
// # Reporting
//
// Every item that is not cancelled produces exactly one [models.Update] on the run's [models.StatusSink].
// Sinks may additionally implement [AttemptObserver] to see each fallback step and [CompletionObserver] to
// be told when the last item finishes. Completion is detected by a shared atomic counter. The worker that
// brings it to N calls the observer.
//
// [ProgressUpdate] values are sent on an optional channel using select with default, so a slow reader
// drops updates instead of stalling workers.
//
// # Persistence
//
// An optional [QueueSaver] receives every finished item as JSON, keyed by the track hash. Saves are
// best-effort.
//
// # Conversion runs
//
// [Converter.Run] re-encodes local files with its own pool size and carries their tags over.
package tasks
