// package formatter renders run results as terminal tables and exports them as reports (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/repositories"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/desertthunder/tunedl/internal/tasks"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
)

// SeverityLabel renders a severity name in its color.
func SeverityLabel(s models.Severity) string {
	switch s {
	case models.Success:
		return okStyle.Render(s.String())
	case models.Warning:
		return warnStyle.Render(s.String())
	default:
		return errStyle.Render(s.String())
	}
}

// Updates returns the updates of s ordered failed, warned, succeeded.
func Updates(s tasks.Summary) []models.Update {
	out := make([]models.Update, 0, len(s.Failed)+len(s.Warned)+len(s.Succeeded))
	out = append(out, s.Failed...)
	out = append(out, s.Warned...)
	return append(out, s.Succeeded...)
}

// SummaryLine is the one-line tally of a run, e.g. "9 succeeded, 1 warned, 2 failed of 12 in 1m5s".
func SummaryLine(s tasks.Summary) string {
	ok, warned, failed := s.Counts()
	line := fmt.Sprintf("%d succeeded, %d warned, %d failed of %d in %s",
		ok, warned, failed, s.Total, s.Elapsed.Round(time.Second))
	if s.Cancelled {
		line += fmt.Sprintf(" (cancelled after %d)", s.Completed)
	}
	return line
}

// SummaryTable renders one row per finished item.
func SummaryTable(s tasks.Summary) string {
	tw := newTable("Result", "Track", "Source", "Detail", "Tries", "Time")
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 60},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	for _, u := range Updates(s) {
		tw.AppendRow(table.Row{
			SeverityLabel(u.Severity), trackLabel(u.Track), u.Track.Source.String(), u.Message,
			u.Attempts, u.Duration.Round(100 * time.Millisecond),
		})
	}
	tw.AppendFooter(table.Row{"", SummaryLine(s)})
	return tw.Render()
}

// TracksTable lists tracks with their identity and ISRC.
func TracksTable(tracks []models.Track) string {
	tw := newTable("#", "Title", "Artist", "Album", "Length", "ISRC", "Source", "ID")
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	for i, t := range tracks {
		tw.AppendRow(table.Row{
			i + 1, t.Title, t.Artist(), t.AlbumName, shared.FormatDuration(t.Duration), t.ISRC, t.Source.String(), t.ID,
		})
	}
	return tw.Render()
}

// ResolutionRow is the outcome of matching one track on one target source.
type ResolutionRow struct {
	Track    models.Track    `json:"track"`
	Target   models.Source   `json:"target"`
	Severity models.Severity `json:"severity"`
	Match    *models.Track   `json:"match,omitempty"`
	Reason   string          `json:"reason"`
}

// ResolutionTable renders one row per source track and target.
func ResolutionTable(rows []ResolutionRow) string {
	tw := newTable("Track", "Target", "Result", "Match", "ID", "Reason")
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 6, WidthMax: 50}})
	for _, row := range rows {
		match, id := "-", "-"
		if row.Match != nil {
			match, id = trackLabel(*row.Match), row.Match.ID
		}
		tw.AppendRow(table.Row{
			trackLabel(row.Track), row.Target.String(), SeverityLabel(row.Severity), match, id, row.Reason,
		})
	}
	return tw.Render()
}

// QueueTable lists persisted work items.
func QueueTable(items []models.WorkItem) string {
	tw := newTable("#", "Track", "Target", "Format", "State", "Result")
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}})
	for _, it := range items {
		result := ""
		if it.Track.Result != nil {
			result = SeverityLabel(*it.Track.Result)
		}
		state := string(it.Track.State)
		if state == "" {
			state = string(models.StatePending)
		}
		tw.AppendRow(table.Row{
			it.Index + 1, trackLabel(it.Track), it.Target.String(), it.Format.Codec + "/" + it.Format.Quality, state, result,
		})
	}
	return tw.Render()
}

// RunsTable lists run history rows.
func RunsTable(runs []*repositories.Run) string {
	tw := newTable("Run", "Kind", "Started", "Total", "OK", "Warn", "Fail", "Took")
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	for _, r := range runs {
		took := "-"
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		tw.AppendRow(table.Row{
			id, r.Kind, r.StartedAt.Local().Format(time.DateTime), r.Total, r.Succeeded, r.Warned, r.Failed, took,
		})
	}
	return tw.Render()
}

func newTable(headers ...string) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	tw.AppendHeader(row)
	return tw
}

func trackLabel(t models.Track) string {
	if a := t.Artist(); a != "" {
		return a + " - " + t.Title
	}
	return t.Title
}

// ExportToCSV converts a run summary to CSV with columns: Result, Source, ID, Title, Artist, Album, ISRC, Detail, Attempts, Seconds
func ExportToCSV(s tasks.Summary) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Result", "Source", "ID", "Title", "Artist", "Album", "ISRC", "Detail", "Attempts", "Seconds"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, u := range Updates(s) {
		record := []string{
			u.Severity.String(),
			string(u.Track.Source),
			u.Track.ID,
			u.Track.Title,
			u.Track.Artist(),
			u.Track.AlbumName,
			u.Track.ISRC,
			u.Message,
			strconv.Itoa(u.Attempts),
			strconv.FormatFloat(u.Duration.Seconds(), 'f', 1, 64),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown converts a run summary to Markdown with one section per severity
func ExportToMarkdown(s tasks.Summary, title string) ([]byte, error) {
	var buf bytes.Buffer
	if title == "" {
		title = "Run " + s.RunID
	}

	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("**Started**: %s\n", s.StartedAt.Format(time.RFC3339)))
	buf.WriteString(fmt.Sprintf("**Result**: %s\n\n", SummaryLine(s)))

	sections := []struct {
		name    string
		updates []models.Update
	}{
		{"Failed", s.Failed},
		{"Warnings", s.Warned},
		{"Succeeded", s.Succeeded},
	}
	for _, sec := range sections {
		if len(sec.updates) == 0 {
			continue
		}
		buf.WriteString(fmt.Sprintf("## %s\n\n", sec.name))
		for i, u := range sec.updates {
			albumPart := ""
			if u.Track.AlbumName != "" {
				albumPart = fmt.Sprintf(" (%s)", u.Track.AlbumName)
			}
			buf.WriteString(fmt.Sprintf("%d. %s%s: %s\n", i+1, trackLabel(u.Track), albumPart, u.Message))
		}
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// ExportToText converts a run summary to plain text format
func ExportToText(s tasks.Summary) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(SummaryLine(s) + "\n\n")
	for _, u := range Updates(s) {
		buf.WriteString(fmt.Sprintf("[%s] %s: %s\n", strings.ToUpper(u.Severity.String()), trackLabel(u.Track), u.Message))
	}
	return buf.Bytes(), nil
}

// WriteReport exports s to path, choosing the format from the extension: .csv, .md or anything else as text.
func WriteReport(s tasks.Summary, path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		data, err = ExportToCSV(s)
	case ".md", ".markdown":
		data, err = ExportToMarkdown(s, "")
	default:
		data, err = ExportToText(s)
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
