// Package ui implements an interactive terminal run monitor using bubbletea's Elm architecture.
//
// The TUI walks through one download run:
//  1. [LoadingView] : Expand the requested URL into tracks
//  2. [TrackListView] : Preview tracks before downloading
//  3. [ConfirmView] : Confirm the run and its target format
//  4. [RunView] : Monitor per-item progress, a spinner and an overall progress bar
//  5. [ResultView] : Display counts and every warned or failed item
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the orchestrator, which never blocks on a slow terminal.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
// Pressing q during a run cancels it; items already finished stay finished.
package ui
