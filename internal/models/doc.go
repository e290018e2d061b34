// Package models defines the records exchanged between catalog clients, the resolver and the download orchestrator.
//
// # Records
//
//   - [Track] : one recording on one [Source], identified by (Source, ID) only
//   - [Album] : an album or playlist with its ordered child tracks
//   - [Metadata] : the canonical tag record fetched from an origin catalog after a download
//   - [WorkItem] : a track at a stable index in a run, with its target source and [OutputFormat]
//
// # Outcomes
//
// [Severity] is a closed three-state tag: [Success] for an ISRC match, [Warning] for fuzzy or degraded
// results, [Error] when nothing usable was found. Cancellation is not a severity.
//
// # Collections
//
// [Collection] is the ordered list shown to the user and mutated by workers. A run freezes it so indices stay
// stable; only in-place [Collection.Set] is allowed until the run thaws it.
package models
