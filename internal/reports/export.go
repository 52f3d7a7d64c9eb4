package reports

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
)

const (
	summarySheet  = "Report"
	incidentSheet = "Incidents"
)

var incidentHeaders = []string{
	"Rack Number", "Part Type", "Part Identifier", "Severity", "Status", "U-Height", "Description", "Created At",
}

// Export renders the report and its incidents as an xlsx workbook and
// returns it with a suggested file name.
func (s *Service) Export(ctx context.Context, id string) ([]byte, string, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	incidents, err := s.IncidentsForReport(ctx, report)
	if err != nil {
		return nil, "", err
	}
	data, err := Workbook(report, incidents)
	if err != nil {
		return nil, "", fmt.Errorf("render workbook: %w", err)
	}
	return data, fmt.Sprintf("walkthrough-%d-%s.xlsx", report.WalkthroughID, report.ID[:8]), nil
}

// Workbook builds the xlsx bytes for report.
func Workbook(report *model.AuditReport, incidents []model.Incident) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(incidentSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	created := ""
	if report.CreatedAt != nil {
		created = report.CreatedAt.UTC().Format(time.RFC3339)
	}
	summary := [][]any{
		{"Report ID", report.ID},
		{"Walkthrough", report.WalkthroughID},
		{"Datacenter", report.Datacenter},
		{"Data Hall", report.DataHall},
		{"State", string(report.State)},
		{"Issues Reported", report.IssuesReported},
		{"Generated By", report.GeneratedBy},
		{"Technician", report.UserFullName},
		{"Created At", created},
	}
	for i, row := range summary {
		if err := setRow(f, summarySheet, 1, i+1, row); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 18); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(summarySheet, "B", "B", 40); err != nil {
		return nil, err
	}

	header := make([]any, len(incidentHeaders))
	for i, h := range incidentHeaders {
		header[i] = h
	}
	if err := setRow(f, incidentSheet, 1, 1, header); err != nil {
		return nil, err
	}
	last, err := excelize.CoordinatesToCellName(len(incidentHeaders), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(incidentSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	for i, inc := range incidents {
		createdAt := ""
		if inc.CreatedAt != nil {
			createdAt = inc.CreatedAt.UTC().Format(time.RFC3339)
		}
		row := []any{
			inc.RackNumber, string(inc.PartType), inc.PartIdentifier, string(inc.Severity),
			string(inc.Status), inc.UHeight, inc.Description, createdAt,
		}
		if err := setRow(f, incidentSheet, 1, i+2, row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(incidentSheet, "G", "G", 60); err != nil {
		return nil, err
	}
	if err := f.SetPanes(incidentSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, col, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
	}
	return nil
}
