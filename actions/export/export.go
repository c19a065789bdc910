// Package export provides an action.Def that writes a table's valid rows to
// an XLSX file — the concrete example SPEC_FULL.md names for exercising
// pkg/action's (ctx, input) -> (output, error) shape with a real-world
// side effect.
//
// Grounded on kasuganosora-sqlexec's pkg/resource/excel ExcelAdapter.Write:
// NewSheet + SetCellValue(sheet, cell, value) + SaveAs, using
// excelize.CoordinatesToCellName to address cells by (column, row) instead
// of hand-built "A1"-style strings.
package export

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Leftium/epicenter/pkg/action"
	"github.com/Leftium/epicenter/pkg/table"
)

// Input is ExportTableToXLSX's expected action input.
type Input struct {
	OutputPath string
	SheetName  string
}

// Output reports where the file was written and how many rows it holds.
type Output struct {
	Path string
	Rows int
}

// ExportTableToXLSX returns an action.Def bound to t, writing its valid
// rows to the xlsx file named in Input.OutputPath.
func ExportTableToXLSX(t *table.Table) action.Def {
	return action.Def{
		Name:        "export_table_to_xlsx",
		Description: fmt.Sprintf("Export all valid rows of table %q to an XLSX file", t.Definition().ID),
		Fn: func(ctx context.Context, raw any) (any, error) {
			input, ok := raw.(Input)
			if !ok {
				return nil, fmt.Errorf("export: expected export.Input, got %T", raw)
			}
			sheet := input.SheetName
			if sheet == "" {
				sheet = "Sheet1"
			}
			return writeXLSX(t, input.OutputPath, sheet)
		},
	}
}

func writeXLSX(t *table.Table, outputPath, sheet string) (Output, error) {
	def := t.Definition()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		if _, err := f.NewSheet(sheet); err != nil {
			return Output{}, err
		}
		f.SetActiveSheet(0)
		_ = f.DeleteSheet("Sheet1")
	}

	for i, field := range def.Fields {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, field.Name); err != nil {
			return Output{}, err
		}
	}

	rows := t.GetAllValid()
	for r, row := range rows {
		rowNum := r + 2
		for c, field := range def.Fields {
			cell, err := excelize.CoordinatesToCellName(c+1, rowNum)
			if err != nil {
				return Output{}, err
			}
			if val, ok := row[field.ID]; ok {
				if err := f.SetCellValue(sheet, cell, val); err != nil {
					return Output{}, err
				}
			}
		}
	}

	if err := f.SaveAs(outputPath); err != nil {
		return Output{}, err
	}
	return Output{Path: outputPath, Rows: len(rows)}, nil
}
