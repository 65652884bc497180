package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/vekaria04/hospital-management-system/internal/platform/db"
	"github.com/vekaria04/hospital-management-system/pkg/intake"
	"github.com/vekaria04/hospital-management-system/pkg/offline"
)

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

func renderMigrations(w io.Writer, statuses []db.MigrationStatus) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Version", "Name", "Status", "Applied At"})
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		tw.AppendRow(table.Row{s.Version, s.Name, status, appliedAt})
	}
	tw.Render()
}

func renderQuestions(w io.Writer, questions []intake.Question) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Category", "Field", "Question", "Options", "Shown When"})
	for _, g := range intake.GroupByCategory(questions) {
		for _, q := range g.Questions {
			shown := ""
			if q.HasParent() {
				trigger := ""
				if q.TriggerValue != nil {
					trigger = *q.TriggerValue
				}
				shown = fmt.Sprintf("#%d = %s", *q.ParentQuestionID, trigger)
			}
			field := q.FieldName
			if !q.Required() {
				field += " (optional)"
			}
			tw.AppendRow(table.Row{q.ID, g.Category, field, q.Question, strings.Join(q.Options, " / "), shown})
		}
	}
	tw.AppendFooter(table.Row{"", "", "", "", "Total", strconv.Itoa(len(questions))})
	tw.Render()
}

func renderRecords(w io.Writer, records []offline.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "Queue is empty.")
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "ID", "Method", "URL", "Enqueued", "Attempts", "Bytes"})
	for i, r := range records {
		tw.AppendRow(table.Row{i + 1, r.ID, r.Method, r.URL, r.EnqueuedAt.Local().Format("2006-01-02 15:04:05"), r.Attempts, len(r.Body)})
	}
	tw.Render()
}

func renderSyncResult(w io.Writer, res offline.SyncResult, err error) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Attempted", "Succeeded", "Failed", "Rejected", "Remaining"})
	tw.AppendRow(table.Row{res.Attempted, res.Succeeded, res.Failed, res.Rejected, res.Remaining})
	tw.Render()

	var partial *offline.SyncPartialFailure
	if !errors.As(err, &partial) {
		return
	}
	ft := newTable(w)
	ft.SetTitle(fmt.Sprintf("Failed requests (policy: %s)", partial.Policy))
	ft.AppendHeader(table.Row{"ID", "URL", "Kept", "Error"})
	for _, f := range partial.Failed {
		kept := "yes"
		if f.Dropped {
			kept = "no"
		}
		ft.AppendRow(table.Row{f.Record.ID, f.Record.URL, kept, f.Err.Error()})
	}
	ft.Render()
}
