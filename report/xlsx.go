// Package report writes check results as an XLSX workbook with a
// "Summary" sheet and an "Errors" sheet.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/workwise/aikor/rules"
)

const (
	SummarySheet = "Summary"
	ErrorsSheet  = "Errors"
)

var errorHeader = []any{"#", "Page", "Rule code", "Rule", "Severity", "Message", "X0", "Y0", "X1", "Y1", "Block"}

// Input is one document's check outcome.
type Input struct {
	Document  string
	CheckedAt time.Time
	Report    rules.Report
}

// Build assembles the workbook. The caller closes it.
func Build(in Input) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(ErrorsSheet); err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := writeSummary(f, in, bold); err != nil {
		f.Close()
		return nil, fmt.Errorf("report: summary sheet: %w", err)
	}
	if err := writeErrors(f, rules.Number(in.Report.Results), bold); err != nil {
		f.Close()
		return nil, fmt.Errorf("report: errors sheet: %w", err)
	}
	return f, nil
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, in Input) error {
	f, err := Build(in)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

// Save builds the workbook and stores it at path.
func Save(path string, in Input) error {
	f, err := Build(in)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

func writeSummary(f *excelize.File, in Input, bold int) error {
	counts := rules.SeverityCounts(in.Report.Results)
	checked := ""
	if !in.CheckedAt.IsZero() {
		checked = in.CheckedAt.UTC().Format(time.RFC3339)
	}
	rows := [][]any{
		{"Document", in.Document},
		{"Checked at", checked},
		{"Success", in.Report.Success},
		{"Rating", in.Report.Rating},
		{"Total errors", in.Report.TotalErrors},
		{"Errors", counts[rules.SeverityError]},
		{"Warnings", counts[rules.SeverityWarning]},
		{"Info", counts[rules.SeverityInfo]},
	}
	if in.Report.Error != "" {
		rows = append(rows, []any{"Failure", in.Report.Error})
	}
	rows = append(rows, nil, []any{"Rule code", "Rule", "Passed", "Errors"})
	ruleHeader := len(rows)
	for _, res := range in.Report.Results {
		rows = append(rows, []any{res.RuleCode, res.RuleName, res.Passed, res.ErrorCount()})
	}

	for i, row := range rows {
		if row == nil {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", ruleHeader-2), bold); err != nil {
		return err
	}
	if err := f.SetCellStyle(SummarySheet, fmt.Sprintf("A%d", ruleHeader), fmt.Sprintf("D%d", ruleHeader), bold); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "B", 24)
}

func writeErrors(f *excelize.File, errs []rules.NumberedError, bold int) error {
	if err := f.SetSheetRow(ErrorsSheet, "A1", &errorHeader); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(errorHeader), 1)
	if err := f.SetCellStyle(ErrorsSheet, "A1", last, bold); err != nil {
		return err
	}

	for i, e := range errs {
		row := []any{e.Number, e.PageNumber, e.RuleCode, e.RuleName, string(e.Severity), e.Message}
		if e.BBox != nil {
			row = append(row, e.BBox.X0, e.BBox.Y0, e.BBox.X1, e.BBox.Y1)
		} else {
			row = append(row, nil, nil, nil, nil)
		}
		row = append(row, e.BlockID)
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ErrorsSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(ErrorsSheet, "F", "F", 60); err != nil {
		return err
	}
	return f.SetPanes(ErrorsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}
