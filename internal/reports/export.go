package reports

import (
	"bytes"
	"fmt"

	"vending-backend/internal/clock"
	"vending-backend/internal/database"

	"github.com/gocarina/gocsv"
	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

const sessionsSheet = "Sessions"

type sessionExportRow struct {
	ID                uint   `csv:"session_id"`
	CustomerID        string `csv:"customer_id"`
	Timestamp         string `csv:"timestamp"`
	PurchaseCount     int    `csv:"purchase_count"`
	FinalTotal        string `csv:"final_total"`
	DepositedAmount   string `csv:"deposited_amount"`
	ReturnedChange    string `csv:"returned_change"`
	UndispensedChange string `csv:"undispensed_change"`
	IsCompleted       bool   `csv:"is_completed"`
}

var exportHeader = []any{
	"Session", "Customer", "Time", "Items", "Total", "Deposited", "Change", "Undispensed", "Completed",
}

func exportRows(rows []SessionRow) []*sessionExportRow {
	out := make([]*sessionExportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, &sessionExportRow{
			ID:                r.ID,
			CustomerID:        r.CustomerID,
			Timestamp:         r.SessionStart.Format(clock.ReportLayout),
			PurchaseCount:     r.PurchaseCount,
			FinalTotal:        r.FinalTotal.StringFixed(2),
			DepositedAmount:   r.DepositedAmount.StringFixed(2),
			ReturnedChange:    r.ReturnedChange.StringFixed(2),
			UndispensedChange: r.UndispensedChange.StringFixed(2),
			IsCompleted:       r.IsCompleted,
		})
	}
	return out
}

func sessionsCSV(rows []SessionRow) ([]byte, error) {
	return gocsv.MarshalBytes(exportRows(rows))
}

func sessionsXLSX(rows []SessionRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sessionsSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sessionsSheet, "A1", &exportHeader); err != nil {
		return nil, err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{
			r.ID,
			r.CustomerID,
			r.SessionStart.Format(clock.ReportLayout),
			r.PurchaseCount,
			r.FinalTotal.InexactFloat64(),
			r.DepositedAmount.InexactFloat64(),
			r.ReturnedChange.InexactFloat64(),
			r.UndispensedChange.InexactFloat64(),
			r.IsCompleted,
		}
		if err := f.SetSheetRow(sessionsSheet, cell, &values); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sessionsSheet, "B", "C", 20); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GET /api/admin/sessions/export?format=xlsx|csv&customer=
func ExportSessionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		format := c.Query("format", "xlsx")
		if format != "xlsx" && format != "csv" {
			return fiber.NewError(fiber.StatusBadRequest, "format must be xlsx or csv")
		}

		rows, err := listSessions(database.DB, c.Query("customer"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load sessions")
		}

		var (
			data        []byte
			contentType string
		)
		switch format {
		case "csv":
			data, err = sessionsCSV(rows)
			contentType = "text/csv; charset=utf-8"
		default:
			data, err = sessionsXLSX(rows)
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		}
		if err != nil {
			return fmt.Errorf("export sessions as %s: %w", format, err)
		}

		filename := fmt.Sprintf("sessions-%s.%s", clock.Now().Format("20060102-150405"), format)
		c.Set(fiber.HeaderContentType, contentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
		return c.Send(data)
	}
}
