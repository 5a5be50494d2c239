package admin

import (
	"fmt"
	"io"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/entitlements"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/xuri/excelize/v2"
)

const usageSheet = "Usage"

var usageHeader = []any{"Profile ID", "Email", "Full name", "Role", "Tier", "Action", "Used", "Limit"}

// WriteUsageWorkbook renders rows as an xlsx workbook with one line per
// profile and action.
func WriteUsageWorkbook(w io.Writer, period time.Time, rows []model.UsageReportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", usageSheet); err != nil {
		return err
	}
	if err := f.SetCellValue(usageSheet, "A1", "Usage for "+period.Format("January 2006")); err != nil {
		return err
	}
	if err := f.SetSheetRow(usageSheet, "A3", &usageHeader); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(usageSheet, "A1", "H3", bold); err != nil {
		return err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+4)
		if err != nil {
			return err
		}
		limitCell := any(r.Limit)
		if r.Limit == entitlements.Unlimited {
			limitCell = "unlimited"
		}
		line := []any{r.ProfileID, r.Email, r.FullName, string(r.Role), string(r.Tier), r.Action, r.Used, limitCell}
		if err := f.SetSheetRow(usageSheet, cell, &line); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(usageSheet, "A", "C", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(usageSheet, "D", "H", 14); err != nil {
		return err
	}
	if err := f.SetPanes(usageSheet, &excelize.Panes{Freeze: true, YSplit: 3, TopLeftCell: "A4", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func UsageFilename(period time.Time) string {
	return "usage-" + period.Format("2006-01") + ".xlsx"
}
