package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rainforce/smbclient/internal/errkind"
	"github.com/rainforce/smbclient/internal/history"
	"github.com/rainforce/smbclient/internal/session"
)

// errNoProfile is returned by commands that need a saved profile.
var errNoProfile = errors.New("no saved profile; run 'smbclient login' first")

// describe returns the user-facing text for err.
func describe(err error) string {
	var kerr *errkind.Error
	if errors.As(err, &kerr) {
		return kerr.Message()
	}
	return err.Error()
}

// userError converts a categorized error into a CLI error with a readable
// message and a hint where one exists.
func userError(err error) error {
	if err == nil {
		return nil
	}
	switch errkind.KindOf(err) {
	case errkind.IncompleteProfile:
		return errNoProfile
	case errkind.None:
		return err
	}
	return fmt.Errorf("%s", describe(err))
}

// printEntries writes the listing. Entries already present in the local
// target folder are marked with '*'.
func printEntries(w io.Writer, state session.SessionState) {
	if state.LastError != nil {
		fmt.Fprintf(w, "Listing failed: %s\n", state.LastError.Message())
		return
	}
	if len(state.Entries) == 0 {
		fmt.Fprintln(w, "No files found.")
		return
	}

	fmt.Fprintf(w, "Found %d file(s):\n\n", len(state.Entries))
	fmt.Fprintf(w, "  %-40s %12s  %s\n", "NAME", "SIZE", "MODIFIED")
	for _, e := range state.Entries {
		marker := " "
		if state.IsPresent(e) {
			marker = "*"
		}
		modified := "-"
		if !e.ModTime.IsZero() {
			modified = e.ModTime.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s %-40s %12s  %s\n", marker, e.Path, formatBytes(e.Size), modified)
	}
	if state.LocalTarget != "" {
		fmt.Fprintf(w, "\n* present in %s\n", state.LocalTarget)
	}
}

// printStatus writes a summary of the session state.
func printStatus(w io.Writer, state session.SessionState) {
	fmt.Fprintf(w, "Phase:        %s\n", state.Phase)
	if state.Profile.ServerURL != "" {
		fmt.Fprintf(w, "Server:       %s\n", state.Profile.ServerURL)
		fmt.Fprintf(w, "User:         %s\n", state.Profile.Username)
	} else {
		fmt.Fprintln(w, "Server:       (not configured)")
	}
	target := state.LocalTarget
	if target == "" {
		target = "(none)"
	}
	fmt.Fprintf(w, "Local folder: %s\n", target)
	fmt.Fprintf(w, "Entries:      %d\n", len(state.Entries))
	if state.LocalTarget != "" {
		fmt.Fprintf(w, "Present:      %d\n", len(state.LocalPresence))
	}
	fmt.Fprintf(w, "Busy:         %t\n", state.Busy)
	if state.LastError != nil {
		fmt.Fprintf(w, "Last error:   %s (%s)\n", state.LastError.Message(), state.LastError.Kind)
	}
}

// printHistory writes journal records, newest first.
func printHistory(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No transfers recorded.")
		return
	}
	fmt.Fprintf(w, "%-19s  %-8s  %-32s %12s  %s\n", "FINISHED", "DIR", "NAME", "BYTES", "OUTCOME")
	for _, r := range records {
		outcome := r.Outcome
		if !r.Succeeded() && r.Error != "" {
			outcome = r.Outcome + ": " + r.Error
		}
		fmt.Fprintf(w, "%-19s  %-8s  %-32s %12s  %s\n",
			r.FinishedAt.Local().Format(time.DateTime), r.Direction, truncate(r.Name, 32), formatBytes(r.Bytes), outcome)
	}
}

// formatBytes formats a byte count using binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, max int) string {
	if len([]rune(s)) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}

// findEntry looks name up in the listing. An exact match wins over a
// case-insensitive one.
func findEntry(state session.SessionState, name string) (int, bool) {
	for i, e := range state.Entries {
		if e.Path == name {
			return i, true
		}
	}
	for i, e := range state.Entries {
		if strings.EqualFold(e.Path, name) {
			return i, true
		}
	}
	return -1, false
}
