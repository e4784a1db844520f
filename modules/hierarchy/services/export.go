package services

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
)

const exportSheet = "Hierarchy"

var exportHeader = []any{"Name", "Email", "Title", "Department", "Manager", "Depth", "Direct reports", "Employee count"}

// ExportForest writes the forest as one row per employee in depth-first order.
// The caller owns the returned workbook and must close it.
func ExportForest(forest []*hierarchy.Node) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		_ = f.Close()
		return nil, err
	}

	names := map[*hierarchy.Node]string{}
	parents := map[*hierarchy.Node]*hierarchy.Node{}
	Walk(forest, func(n *hierarchy.Node, _ int) {
		names[n] = n.Name
		for _, child := range n.Children {
			parents[child] = n
		}
	})

	row := 2
	var rowErr error
	Walk(forest, func(n *hierarchy.Node, depth int) {
		if rowErr != nil {
			return
		}
		manager := ""
		if p, ok := parents[n]; ok {
			manager = names[p]
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			rowErr = err
			return
		}
		values := []any{n.Name, n.Email, n.Title, n.Department, manager, depth, len(n.Children), n.EmployeeCount}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			rowErr = fmt.Errorf("row %d: %w", row, err)
			return
		}
		row++
	})
	if rowErr != nil {
		_ = f.Close()
		return nil, rowErr
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}
