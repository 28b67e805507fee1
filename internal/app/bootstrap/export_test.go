package bootstrap

import (
	"context"
	"testing"

	appconfig "github.com/consultia/clinic-agent/internal/config"
	"github.com/consultia/clinic-agent/pkg/logging"
)

func TestBuildSheetsExporterRequiresConfig(t *testing.T) {
	if _, err := BuildSheetsExporter(context.Background(), nil, logging.New("error")); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildSheetsExporterDisabledReturnsNil(t *testing.T) {
	exporter, err := BuildSheetsExporter(context.Background(), &appconfig.Config{}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exporter != nil {
		t.Fatalf("expected nil exporter when no spreadsheet is configured")
	}
}

func TestBuildSheetsExporterNoCredentialsReturnsNil(t *testing.T) {
	cfg := &appconfig.Config{SheetsSpreadsheetID: "sheet-123"}

	exporter, err := BuildSheetsExporter(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exporter != nil {
		t.Fatalf("expected nil exporter without credentials")
	}
}
