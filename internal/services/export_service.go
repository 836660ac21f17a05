// internal/services/export_service.go
package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/javajoker/healthfirst-backend/internal/i18n"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

const exportNoData = "No data found"

var exportColumns = []string{
	i18n.KeyExportLicenseID,
	i18n.KeyExportUsername,
	i18n.KeyExportFullName,
	i18n.KeyExportType,
	i18n.KeyExportStartDate,
	i18n.KeyExportEndDate,
	i18n.KeyExportDays,
	i18n.KeyExportStatus,
	i18n.KeyExportInformation,
	i18n.KeyExportEvaluator,
}

// Translator resolves message keys for a language.
type Translator interface {
	T(lang, key string, args ...interface{}) string
}

// ExportService renders license listings as CSV or XLSX.
type ExportService struct {
	translator Translator
}

func NewExportService(translator Translator) *ExportService {
	return &ExportService{translator: translator}
}

func (s *ExportService) WriteCSV(w io.Writer, lang string, licenses []models.License) error {
	writer := csv.NewWriter(w)

	if len(licenses) == 0 {
		if err := writer.Write([]string{exportNoData}); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
	} else {
		if err := writer.Write(s.headers(lang)); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		for i := range licenses {
			if err := writer.Write(exportRow(&licenses[i])); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func (s *ExportService) WriteXLSX(w io.Writer, lang string, licenses []models.License) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := s.translator.T(lang, i18n.KeyExportSheet)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if len(licenses) == 0 {
		if err := f.SetCellValue(sheet, "A1", exportNoData); err != nil {
			return fmt.Errorf("failed to write cell: %w", err)
		}
		return f.Write(w)
	}

	headers := s.headers(lang)
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	for i := range licenses {
		row := exportRow(&licenses[i])
		values := make([]interface{}, len(row))
		for j, value := range row {
			values[j] = value
		}
		// days as a number so spreadsheets can sum it
		values[6] = licenses[i].RequiredDays

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	return f.Write(w)
}

func (s *ExportService) headers(lang string) []string {
	headers := make([]string, len(exportColumns))
	for i, key := range exportColumns {
		headers[i] = s.translator.T(lang, key)
	}
	return headers
}

func exportRow(license *models.License) []string {
	status := ""
	if license.Status != nil {
		status = string(license.Status.Name)
	}
	evaluator := ""
	if license.Evaluator != nil {
		evaluator = license.Evaluator.FullName()
	}

	return []string{
		license.ID.String(),
		license.User.Username,
		license.User.FullName(),
		license.Type.Name,
		license.StartDate.Format(utils.DateLayout),
		license.EndDate.Format(utils.DateLayout),
		strconv.Itoa(license.RequiredDays),
		status,
		license.Information,
		evaluator,
	}
}
