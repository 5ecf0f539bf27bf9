package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/Dilip0552/PresenSync/internal/docstore"
)

// Exporter renders attendance records as spreadsheets for teachers.
type Exporter struct {
	store docstore.Store
	appID string
}

// NewExporter creates an exporter over the document store.
func NewExporter(store docstore.Store, appID string) *Exporter {
	return &Exporter{store: store, appID: appID}
}

var header = []string{"Roll No", "Student Name", "Student ID", "Marked At", "Status", "Distance (m)", "Face Confidence", "IP Address"}

// SessionXLSX exports every attendance record of one session as an .xlsx
// workbook, ordered by roll number.
func (e *Exporter) SessionXLSX(ctx context.Context, sessionID string) ([]byte, error) {
	docs, err := e.store.Query(ctx, docstore.AttendanceCollection(e.appID), map[string]any{
		"sessionId": sessionID,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("query attendance for session %s: %w", sessionID, err)
	}
	sort.Slice(docs, func(i, j int) bool {
		return str(docs[i].Data["studentRollNo"]) < str(docs[j].Data["studentRollNo"])
	})

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Attendance"
	f.SetSheetName("Sheet1", sheet)

	for col, title := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, title)
	}
	for row, doc := range docs {
		values := []any{
			str(doc.Data["studentRollNo"]),
			str(doc.Data["studentName"]),
			str(doc.Data["studentId"]),
			str(doc.Data["timestamp"]),
			str(doc.Data["status"]),
			doc.Data["distanceMeters"],
			doc.Data["faceMatchConfidence"],
			str(doc.Data["ipAddress"]),
		}
		for col, v := range values {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
