package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/sign"
)

const exportPageSize = MaxLimit

// SubmissionExporter writes the submissions of a sender as CSV.
type SubmissionExporter struct {
	db *gorm.DB
}

func NewSubmissionExporter(db *gorm.DB) *SubmissionExporter {
	return &SubmissionExporter{db: db}
}

// ExportToCSV writes every submission of sender, newest first.
func (e *SubmissionExporter) ExportToCSV(writer io.Writer, sender string) error {
	csvWriter := csv.NewWriter(writer)
	defer csvWriter.Flush()

	header := []string{"ID", "Method", "Call", "Schema", "Status", "TxHash", "Event", "Error", "Params", "CreatedAt", "UpdatedAt"}
	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write header to CSV: %w", err)
	}

	for offset := uint32(0); ; offset += exportPageSize {
		subs, err := ListSubmissions(e.db, sender, "", &ListOptions{Offset: offset, Limit: exportPageSize})
		if err != nil {
			return fmt.Errorf("failed to get submissions: %w", err)
		}

		for _, sub := range subs {
			row := []string{
				sub.ID,
				sub.Method,
				sub.Call,
				sub.Schema,
				string(sub.Status),
				sub.TxHash,
				sub.Event,
				sub.Error,
				sub.Params,
				sub.CreatedAt.UTC().Format(time.RFC3339),
				sub.UpdatedAt.UTC().Format(time.RFC3339),
			}
			if err := csvWriter.Write(row); err != nil {
				return fmt.Errorf("failed to write row to CSV: %w", err)
			}
		}
		if len(subs) < exportPageSize {
			return nil
		}
	}
}

// ExportToFile writes the CSV into outputDir and returns the file name.
func (e *SubmissionExporter) ExportToFile(sender, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", outputDir, err)
	}

	fileName := filepath.Join(outputDir, fmt.Sprintf("submissions_%s.csv", sender))
	file, err := os.Create(fileName)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file %s: %w", fileName, err)
	}
	defer file.Close()

	if err := e.ExportToCSV(file, sender); err != nil {
		return "", fmt.Errorf("failed to export to CSV: %w", err)
	}

	return fileName, nil
}

func runExportSubmissionsCli(logger log.Logger) {
	logger = logger.WithName("export-submissions")
	if len(os.Args) < 3 || len(os.Args) > 4 {
		logger.Fatal("Usage: ledgergate export-submissions <sender> [outputDir]")
	}

	sender, err := sign.ParseAccountID(os.Args[2])
	if err != nil {
		logger.Fatal("invalid sender", "sender", os.Args[2], "error", err)
	}

	outputDir := "."
	if len(os.Args) == 4 {
		outputDir = os.Args[3]
	}

	config, err := LoadConfig(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	db, err := ConnectToDB(config.Database, logger)
	if err != nil {
		logger.Fatal("failed to setup database", "error", err)
	}

	fileName, err := NewSubmissionExporter(db).ExportToFile(sender.String(), outputDir)
	if err != nil {
		logger.Fatal("failed to export submissions", "error", err)
	}

	logger.Info("submissions exported", "file", fileName)
}
