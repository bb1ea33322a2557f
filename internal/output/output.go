// Package output provides styled terminal output for the command line
// (article listings, sync summaries) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bryan-buckman/rssdash/internal/model"
)

var (
	// Styles
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	folderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	favoriteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

const dateLayout = "2006-01-02 15:04"

// JSON writes v as indented JSON.
func JSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// ArticleLine formats one article for a listing: state markers, date,
// folder, title and id.
func ArticleLine(a model.Article) string {
	read := "●"
	if a.IsRead {
		read = " "
	}
	fav := " "
	if a.IsFavorite {
		fav = favoriteStyle.Render("★")
	}
	folder := a.Folder
	if folder == "" {
		folder = "-"
	}
	return fmt.Sprintf("%s%s %s %s %s %s",
		read, fav,
		subtleStyle.Render(a.PublishDate.Local().Format(dateLayout)),
		folderStyle.Render(folder),
		titleStyle.Render(a.Title),
		subtleStyle.Render(a.ID),
	)
}

// Articles writes a listing, one article per line.
func Articles(w io.Writer, items []model.Article) {
	if len(items) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("No articles"))
		return
	}
	for _, a := range items {
		fmt.Fprintln(w, ArticleLine(a))
	}
}

// Progress reports one finished feed of a sync run.
func Progress(w io.Writer, done, total int, src model.FeedSource, err error) {
	prefix := subtleStyle.Render(fmt.Sprintf("[%d/%d]", done, total))
	if err != nil {
		fmt.Fprintf(w, "%s %s %s\n", prefix, errorStyle.Render("✗ "+src.URL), subtleStyle.Render(err.Error()))
		return
	}
	fmt.Fprintf(w, "%s %s\n", prefix, successStyle.Render("✓ "+src.URL))
}

// SyncSummary describes a sync result, telling partial failure apart from
// total failure.
func SyncSummary(w io.Writer, r model.SyncResult) {
	line := fmt.Sprintf("%d/%d feeds synced, %d articles, %d feeds removed", r.Succeeded, r.Total, r.Articles, r.Removed)
	switch {
	case r.AllFailed():
		fmt.Fprintln(w, errorStyle.Render("ERROR: every feed failed; "+line))
	case r.Partial():
		fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("Warning: %d feeds failed; already synced articles are still available. %s", r.Failed, line)))
	default:
		fmt.Fprintln(w, successStyle.Render(line))
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s %s\n", errorStyle.Render(f.URL), subtleStyle.Render(f.Error))
	}
}

// FolderStats writes per-folder article counts.
func FolderStats(w io.Writer, stats []model.FolderStat) {
	width := 0
	for _, s := range stats {
		width = max(width, len(s.Folder))
	}
	for _, s := range stats {
		name := s.Folder
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s %d\n", folderStyle.Render(name+strings.Repeat(" ", width-len(s.Folder))), s.Count)
	}
}

// Success prints a success message.
func Success(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf(format, args...)))
}
