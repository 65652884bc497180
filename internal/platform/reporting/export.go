package reporting

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Submissions"

var exportFixedColumns = []string{"Submission ID", "Patient", "Name", "Email", "Pain Level", "Language", "Submitted At"}

// WriteSubmissionsXLSX writes rows as a workbook with one sheet. Answer
// columns follow the fixed columns: current prompts first in schema order,
// then any other answer keys alphabetically.
func WriteSubmissionsXLSX(w io.Writer, rows []*ExportRow, prompts []Prompt) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return err
	}

	keys, headers := answerColumns(rows, prompts)
	header := make([]interface{}, 0, len(exportFixedColumns)+len(headers))
	for _, h := range exportFixedColumns {
		header = append(header, h)
	}
	for _, h := range headers {
		header = append(header, h)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(exportSheet, "A1", lastCol+"1", bold); err != nil {
		return err
	}
	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	for i, r := range rows {
		line := []interface{}{
			r.SubmissionID.String(), r.PatientRef, r.PatientName, r.Email,
			nil, r.Lang, r.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if r.PainLevel != nil {
			line[4] = *r.PainLevel
		}
		for _, k := range keys {
			if v := r.Answers[k]; v != nil {
				line = append(line, *v)
			} else {
				line = append(line, nil)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheet, cell, &line); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_, err = f.WriteTo(w)
	return err
}

// answerColumns returns the answer keys to export and their column headers.
func answerColumns(rows []*ExportRow, prompts []Prompt) (keys, headers []string) {
	known := make(map[string]bool, len(prompts))
	for _, p := range prompts {
		known[p.FieldName] = true
		keys = append(keys, p.FieldName)
		headers = append(headers, p.Question)
	}
	var extra []string
	seen := make(map[string]bool)
	for _, r := range rows {
		for k := range r.Answers {
			if !known[k] && !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)
	headers = append(headers, extra...)
	return keys, headers
}
