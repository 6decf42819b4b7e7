// Package export renders Z-Reports into downloadable files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"gympro/backend/internal/domain"
)

const dateLayout = "2006-01-02"

// Rows flattens a report into ordered metric/value pairs. Consumers rely on
// this order staying stable across formats.
func Rows(report domain.ZReport) [][2]string {
	return [][2]string{
		{"period", report.Period},
		{"start", report.Start.Format(dateLayout)},
		{"end", report.End.Format(dateLayout)},
		{"pos_gross", report.POSGross.String()},
		{"sub_gross", report.SubGross.String()},
		{"refunds", report.Refunds.String()},
		{"net", report.Net.String()},
		{"cash", report.Cash.String()},
		{"card", report.Card.String()},
		{"transfer", report.Transfer.String()},
		{"count", strconv.FormatInt(report.Count, 10)},
	}
}

func WriteCSV(w io.Writer, report domain.ZReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"metric", "value"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range Rows(report) {
		if err := cw.Write([]string{row[0], row[1]}); err != nil {
			return fmt.Errorf("write csv row %s: %w", row[0], err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, report domain.ZReport) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Z-Report"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := setRow(f, sheet, 1, "metric", "value"); err != nil {
		return err
	}
	for i, row := range Rows(report) {
		if err := setRow(f, sheet, i+2, row[0], row[1]); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, metric, value string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &[]string{metric, value}); err != nil {
		return fmt.Errorf("write sheet row %d: %w", row, err)
	}
	return nil
}
