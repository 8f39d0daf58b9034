package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"staybook/internal/domain"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Occupancy"

// WriteOccupancyReport renders a unit-per-row, date-per-column occupancy grid
// into an .xlsx file under dir and returns the file path. A cell carries the
// status of the booking occupying that unit on that night; cancelled and
// rejected bookings do not occupy anything.
func WriteOccupancyReport(dir string, start, end time.Time, units []*domain.Unit, bookings []*domain.Booking) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	start = domain.TruncateToDate(start)
	end = domain.TruncateToDate(end)
	if end.Before(start) {
		return "", fmt.Errorf("report range end %s before start %s",
			end.Format(domain.DateLayout), start.Format(domain.DateLayout))
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Occupancy %s - %s",
		start.Format(domain.DateLayout), end.Format(domain.DateLayout)))

	days := writeDateHeaders(f, start, end)
	writeUnitRows(f, units)
	fillOccupancy(f, units, bookings, start, days)

	_ = f.SetColWidth(sheetName, "A", "A", 25)

	lastCol, _ := excelize.ColumnNumberToName(days + 1)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", style)

	_ = f.DeleteSheet("Sheet1")

	name := fmt.Sprintf("occupancy_%s_to_%s.xlsx",
		start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	path := filepath.Join(dir, name)

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}

func writeDateHeaders(f *excelize.File, start, end time.Time) int {
	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(days+2, 2)
		_ = f.SetCellValue(sheetName, cell, d.Format(domain.DateLayout))
		days++
	}
	return days
}

func writeUnitRows(f *excelize.File, units []*domain.Unit) {
	for i, unit := range units {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(sheetName, cell, unit.Name)
	}
}

func fillOccupancy(f *excelize.File, units []*domain.Unit, bookings []*domain.Booking, start time.Time, days int) {
	rowByUnit := make(map[string]int, len(units))
	for i, unit := range units {
		rowByUnit[unit.ID.String()] = i + 3
	}

	for _, booking := range bookings {
		status := booking.Status()
		if status == domain.StatusCancelled || status == domain.StatusRejected {
			continue
		}
		row, ok := rowByUnit[booking.UnitID().String()]
		if !ok {
			continue
		}

		period := booking.Period()
		// Occupied nights run from check-in up to, not including, check-out.
		for d := period.Start; d.Before(period.End); d = d.AddDate(0, 0, 1) {
			offset := int(d.Sub(start).Hours() / 24)
			if offset < 0 || offset >= days {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(offset+2, row)
			_ = f.SetCellValue(sheetName, cell, status)
		}
	}
}
