package tasks

import (
	"fmt"

	"github.com/desertthunder/tunedl/internal/models"
)

// ProgressUpdate represents a progress event during a run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Items finished so far
	Total   int    // Items in the run
	Index   int    // Collection index of the item this update is about
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	PhaseResolve Phase = iota
	PhaseDownload
	PhaseConvert
	PhaseTag
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseResolve:
		return "resolve"
	case PhaseDownload:
		return "download"
	case PhaseConvert:
		return "convert"
	case PhaseTag:
		return "tag"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return ""
	}
}

func resolveUpdate(step, total, index int, tr models.Track, src models.Source) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseResolve,
		Step:    step,
		Total:   total,
		Index:   index,
		Message: fmt.Sprintf("Resolving %s - %s on %s...", tr.Artist(), tr.Title, src),
	}
}

func downloadUpdate(step, total, index int, tr models.Track, src models.Source, quality string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDownload,
		Step:    step,
		Total:   total,
		Index:   index,
		Message: fmt.Sprintf("Downloading %s - %s from %s (%s)...", tr.Artist(), tr.Title, src, quality),
	}
}

func convertUpdate(step, total, index int, path, codec string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseConvert,
		Step:    step,
		Total:   total,
		Index:   index,
		Message: fmt.Sprintf("Converting %s to %s...", path, codec),
	}
}

func tagUpdate(step, total, index int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseTag,
		Step:    step,
		Total:   total,
		Index:   index,
		Message: fmt.Sprintf("Writing tags to %s...", path),
	}
}

func finishedUpdate(step, total, index int, u models.Update) ProgressUpdate {
	if u.Severity == models.Error {
		return ProgressUpdate{
			Phase:   PhaseFailed,
			Step:    step,
			Total:   total,
			Index:   index,
			Message: fmt.Sprintf("[%d/%d] ✗ %s - %s: %s", step, total, u.Track.Artist(), u.Track.Title, u.Message),
			Data:    u,
		}
	}
	return ProgressUpdate{
		Phase:   PhaseDone,
		Step:    step,
		Total:   total,
		Index:   index,
		Message: fmt.Sprintf("[%d/%d] ✓ %s - %s (%s)", step, total, u.Track.Artist(), u.Track.Title, u.Severity),
		Data:    u,
	}
}
