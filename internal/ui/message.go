package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTracksLoaded MsgKind = iota
	MsgProgressUpdate
	MsgRunComplete
)

type tracksLoaded struct {
	title  string
	tracks []models.Track
	err    error
}

type runComplete struct {
	summary *tasks.Summary
	err     error
}

// tracksLoadedMsg is the constructor for [MsgTracksLoaded]
func tracksLoadedMsg(title string, tracks []models.Track, err error) Msg {
	return Msg{kind: MsgTracksLoaded, data: tracksLoaded{title, tracks, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// runCompleteMsg is the constructor for [MsgRunComplete]
func runCompleteMsg(summary *tasks.Summary, err error) Msg {
	return Msg{kind: MsgRunComplete, data: runComplete{summary, err}}
}
