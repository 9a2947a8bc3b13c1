package services

import (
	"bytes"
	"fmt"
	"log"

	"github.com/xuri/excelize/v2"

	"backend_tablets/models"
)

// ReportService builds spreadsheet exports of the fleet.
type ReportService struct {
	Fleet *FleetService
}

// NewReportService creates a new ReportService.
func NewReportService(fleet *FleetService) *ReportService {
	return &ReportService{Fleet: fleet}
}

var inventoryHeaders = []string{
	"Tombamento", "Serial", "Modelo", "Status", "Reserva",
	"Município", "Profissional", "CPF", "Atendente", "Dias em manutenção",
}

// ExportInventory renders the full fleet listing as an .xlsx workbook.
func (rs *ReportService) ExportInventory() (*bytes.Buffer, error) {
	views, err := rs.Fleet.ListTablets()
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close Excel file: %v", err)
		}
	}()

	sheetName := "Inventário"
	f.SetSheetName("Sheet1", sheetName)

	for i, header := range inventoryHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, view := range views {
		values := []interface{}{
			view.Tombamento,
			view.SerialNumber,
			view.Model,
			view.Status,
			boolLabel(view.IsReserve),
			view.Municipio,
			strOrEmpty(view.ProfessionalName),
			strOrEmpty(view.ProfessionalCPF),
			strOrEmpty(view.CurrentAttendant),
			intOrEmpty(view.MaintenanceDays),
		}
		for colIdx, value := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	endCell, _ := excelize.CoordinatesToCellName(len(inventoryHeaders), len(views)+1)
	if err := f.AutoFilter(sheetName, "A1:"+endCell, []excelize.AutoFilterOptions{}); err != nil {
		log.Printf("Failed to set autofilter: %v", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("could not render workbook: %w", err)
	}
	return buf, nil
}

// ExportFileName names the export with the current date.
func ExportFileName() string {
	return fmt.Sprintf("tablets_%s.xlsx", models.TodayISO())
}

func boolLabel(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrEmpty(i *int) interface{} {
	if i == nil {
		return ""
	}
	return *i
}
