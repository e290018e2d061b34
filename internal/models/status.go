package models

import "time"

// Update is a terminal status report for one item, or an error report from the router.
type Update struct {
	Severity Severity
	Track    Track
	// Message is the output location on success, otherwise a human-readable reason.
	Message  string
	Duration time.Duration
	Attempts int
}

// StatusSink receives updates. Implementations may be called from any worker goroutine and must be safe for
// concurrent use.
type StatusSink interface {
	OnUpdate(Update)
}

// SinkFunc adapts a function to [StatusSink].
type SinkFunc func(Update)

func (f SinkFunc) OnUpdate(u Update) { f(u) }

// DiscardSink drops every update.
var DiscardSink StatusSink = SinkFunc(func(Update) {})
