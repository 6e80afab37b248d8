package csvexport

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"docxingest/internal/domain"
)

const sheetName = "Invoices"

// RenderXLSX builds a workbook with one row per payload outcome.
func RenderXLSX(summary *domain.BatchSummary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("csvexport.RenderXLSX: %w", err)
	}

	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	for r := range summary.Outcomes {
		o := &summary.Outcomes[r]
		row := OutcomeToRow(o)
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			// Keep the total numeric so spreadsheets can sum it.
			if c == 10 && o.Fields != nil && o.Fields.Total != nil {
				_ = f.SetCellValue(sheetName, cell, *o.Fields.Total)
				continue
			}
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 24) // message id
	_ = f.SetColWidth(sheetName, "B", "B", 28) // filename
	_ = f.SetColWidth(sheetName, "C", "C", 20) // hash
	_ = f.SetColWidth(sheetName, "G", "I", 22)
	_ = f.SetColWidth(sheetName, "M", "N", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("csvexport.RenderXLSX: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderCSV builds the BOM-prefixed CSV report.
func RenderCSV(summary *domain.BatchSummary) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(BOM)
	w := NewWriter(&buf)
	if err := w.WriteHeader(); err != nil {
		return nil, err
	}
	if err := w.WriteOutcomes(summary.Outcomes); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csvexport.RenderCSV: %w", err)
	}
	return buf.Bytes(), nil
}
