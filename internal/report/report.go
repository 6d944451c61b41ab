// Package report exports sync diagnostics to Excel so a household admin can
// inspect what never made it to the backend.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"domovik/internal/models"
	"domovik/internal/queue"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

type Exporter struct {
	queue  *queue.Manager
	dir    string
	logger *zerolog.Logger
}

func NewExporter(q *queue.Manager, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{queue: q, dir: dir, logger: logger}
}

const failuresSheet = "Sync Failures"

// ExportFailed writes every failed mutation into an xlsx file and returns
// its path.
func (e *Exporter) ExportFailed(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	failed, err := e.queue.FailedMutations(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting failed mutations: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(failuresSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Entity", "Payload", "Retries", "Last Error", "Enqueued", "Resolved",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(failuresSheet, cell, header)
		_ = f.SetCellStyle(failuresSheet, cell, cell, headerStyle)
	}

	for i, m := range failed {
		row := i + 2
		_ = f.SetCellValue(failuresSheet, fmt.Sprintf("A%d", row), m.ID)
		_ = f.SetCellValue(failuresSheet, fmt.Sprintf("B%d", row), m.EntityType)
		_ = f.SetCellValue(failuresSheet, fmt.Sprintf("C%d", row), m.Payload)
		_ = f.SetCellValue(failuresSheet, fmt.Sprintf("D%d", row), m.RetryCount)
		_ = f.SetCellValue(failuresSheet, fmt.Sprintf("E%d", row), lastErrorText(&m))
		_ = f.SetCellValue(failuresSheet, fmt.Sprintf("F%d", row), m.EnqueuedAt.Format("02.01.2006 15:04"))
		if m.ProcessedAt != nil {
			_ = f.SetCellValue(failuresSheet, fmt.Sprintf("G%d", row), m.ProcessedAt.Format("02.01.2006 15:04"))
		}
	}

	_ = f.SetColWidth(failuresSheet, "A", "A", 38)
	_ = f.SetColWidth(failuresSheet, "B", "B", 12)
	_ = f.SetColWidth(failuresSheet, "C", "C", 50)
	_ = f.SetColWidth(failuresSheet, "D", "D", 10)
	_ = f.SetColWidth(failuresSheet, "E", "E", 40)
	_ = f.SetColWidth(failuresSheet, "F", "G", 20)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("sync_failures_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.dir, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("failed", len(failed)).Msg("sync failures exported")
	return filePath, nil
}

func lastErrorText(m *models.PendingMutation) string {
	if m.LastError == nil {
		return ""
	}
	return *m.LastError
}
