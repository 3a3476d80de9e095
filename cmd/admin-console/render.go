package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schoolbooks/admin-console/internal/adminapi"
	"github.com/schoolbooks/admin-console/internal/audit"
	"github.com/schoolbooks/admin-console/internal/history"
)

const descriptionWidth = 60

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// renderPage prints the rows of snap as a table followed by a paging line.
func renderPage(w io.Writer, snap history.Snapshot) {
	if snap.AuthRequired() {
		fmt.Fprintln(w, "Authentication required. Sign in again to view audit history.")
		return
	}
	if snap.State == history.StateError && snap.Err != nil {
		fmt.Fprintf(w, "Error: %s\n", adminapi.Message(snap.Err))
		if !snap.Loaded {
			return
		}
	}
	if snap.Page.Empty() {
		if snap.Filter.Active() {
			fmt.Fprintf(w, "No audit records match %s.\n", snap.Filter)
		} else {
			fmt.Fprintln(w, "No audit records yet.")
		}
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tWHEN\tUSER\tACTION\tENTITY\tDESCRIPTION\tUNDO")
	for _, row := range snap.Rows {
		r := row.Record
		undo := ""
		switch {
		case row.Undoing:
			undo = "undoing…"
		case row.UndoEligible:
			undo = "yes"
		}
		entity := string(r.EntityType)
		if id := r.Entity(); id != "" {
			entity += ":" + id
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Actor(), r.Action.Label(),
			entity, truncate(r.Description, descriptionWidth), undo)
		if row.Expanded && row.HasChanges {
			for _, line := range audit.FormatChanges(row.Changes) {
				fmt.Fprintf(tw, "\t\t\t\t\t  %s\t\n", line)
			}
		}
	}
	_ = tw.Flush()

	p := snap.Page
	fmt.Fprintf(w, "\nPage %d of %d (%d records)", p.Page, max(p.TotalPages, 1), p.Total)
	if !snap.UpdatedAt.IsZero() {
		fmt.Fprintf(w, ", updated %s", snap.UpdatedAt.Local().Format(time.TimeOnly))
	}
	fmt.Fprintln(w)
}

// renderRecord prints every field of one record and its change list.
func renderRecord(w io.Writer, row history.Row) {
	r := row.Record
	tw := newTable(w)
	fmt.Fprintf(tw, "ID:\t%s\n", r.ID)
	fmt.Fprintf(tw, "Date:\t%s\n", r.CreatedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(tw, "User:\t%s\n", r.Actor())
	fmt.Fprintf(tw, "Action:\t%s\n", r.Action.Label())
	fmt.Fprintf(tw, "Entity:\t%s %s\n", r.EntityType.Label(), r.Entity())
	fmt.Fprintf(tw, "Description:\t%s\n", r.Description)
	if r.IPAddress != "" {
		fmt.Fprintf(tw, "IP Address:\t%s\n", r.IPAddress)
	}
	if r.UserAgent != "" {
		fmt.Fprintf(tw, "User Agent:\t%s\n", r.UserAgent)
	}
	fmt.Fprintf(tw, "Undo:\t%s\n", yesNo(row.UndoEligible))
	_ = tw.Flush()

	if !row.HasChanges {
		return
	}
	fmt.Fprintln(w, "\nChanges:")
	for _, line := range audit.FormatChanges(row.Changes) {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func renderKeys(w io.Writer, keys []adminapi.RegistrationKey) {
	if len(keys) == 0 {
		fmt.Fprintln(w, "No registration keys.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tKEY\tSCHOOL\tROLE\tUSES\tSTUDENT\tCREATED")
	for _, k := range keys {
		student := ""
		if k.StudentID != nil {
			student = string(*k.StudentID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			k.ID, k.Key, k.SchoolID, k.Role, k.UsedCount, k.MaxUses, student,
			k.CreatedAt.Local().Format(time.DateOnly))
	}
	_ = tw.Flush()
}

func renderExport(w io.Writer, res *history.ExportResult) {
	rows := "all matching records"
	if res.Rows >= 0 {
		rows = fmt.Sprintf("%d records", res.Rows)
	}
	fmt.Fprintf(w, "Exported %s to %s (%d bytes, sha256 %s)\n", rows, res.Location, res.Size, res.Checksum)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
