package bootstrap

import (
	"context"
	"fmt"
	"strings"

	appconfig "github.com/consultia/clinic-agent/internal/config"
	"github.com/consultia/clinic-agent/internal/export"
	"github.com/consultia/clinic-agent/pkg/logging"
)

// BuildSheetsExporter wires the optional spreadsheet mirror. It returns nil
// when no spreadsheet is configured.
func BuildSheetsExporter(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*export.SheetsExporter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if strings.TrimSpace(cfg.SheetsSpreadsheetID) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.GoogleCredentialsFile) == "" {
		logger.Warn("spreadsheet configured without GOOGLE_CREDENTIALS_FILE; disabling export")
		return nil, nil
	}

	exporter, err := export.NewSheetsExporter(ctx, cfg.SheetsSpreadsheetID, cfg.SheetsName, cfg.GoogleCredentialsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: sheets exporter: %w", err)
	}
	if err := exporter.EnsureHeader(ctx); err != nil {
		logger.Warn("failed to initialise spreadsheet header", "error", err)
	}
	return exporter, nil
}
