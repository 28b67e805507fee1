// Package export mirrors booked appointments into a Google Sheets spreadsheet.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/consultia/clinic-agent/internal/events"
	"github.com/consultia/clinic-agent/pkg/logging"
)

var exportTracer = otel.Tracer("clinicagent.internal.export")

// Header is the first row of the mirror sheet.
var Header = []any{"ID", "Consultorio", "Paciente", "Teléfono", "Obra Social", "Horario", "Estado", "Fecha registro"}

const registeredLayout = "2/1/2006, 15:04:05"

// SheetsExporter appends one row per appointment event. It is a
// DeliveryHandler for the outbox deliverer.
type SheetsExporter struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
	logger        *logging.Logger
}

// NewSheetsExporter builds an exporter from service-account credentials.
// Extra client options (endpoint, http client) are passed through.
func NewSheetsExporter(ctx context.Context, spreadsheetID, sheetName, credentialsFile string, logger *logging.Logger, opts ...option.ClientOption) (*SheetsExporter, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("export: spreadsheet id is required")
	}
	if credentialsFile != "" {
		opts = append([]option.ClientOption{option.WithCredentialsFile(credentialsFile)}, opts...)
	}
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("export: sheets client: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	if sheetName == "" {
		sheetName = "Hoja 1"
	}
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	if err != nil {
		loc = time.FixedZone("ART", -3*60*60)
	}
	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		loc:           loc,
		logger:        logger,
	}, nil
}

// EnsureHeader writes Header into the first row when the sheet is empty.
func (e *SheetsExporter) EnsureHeader(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:H1", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Get(e.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("export: read header: %w", err)
	}
	if len(resp.Values) > 0 {
		return nil
	}
	_, err = e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]any{Header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	e.logger.Info("sheets header initialised", "spreadsheet_id", e.spreadsheetID)
	return nil
}

// Handle implements events.DeliveryHandler. Non-appointment events are skipped.
func (e *SheetsExporter) Handle(ctx context.Context, entry events.OutboxEntry) error {
	ctx, span := exportTracer.Start(ctx, "export.sheets_append")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicagent.tenant_id", entry.TenantID),
		attribute.String("clinicagent.event_type", entry.Type),
	)

	env, err := entry.Envelope()
	if err != nil {
		return err
	}
	appt, err := events.DecodeAppointment(env)
	if err != nil {
		e.logger.Debug("skipping non-appointment event", "event_id", entry.ID, "type", entry.Type)
		return nil
	}

	_, err = e.svc.Spreadsheets.Values.Append(e.spreadsheetID, fmt.Sprintf("%s!A:H", e.sheetName), &sheets.ValueRange{
		Values: [][]any{e.row(appt, env.EventType)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("export: append appointment %s: %w", appt.AppointmentID, err)
	}
	e.logger.Info("appointment exported", "tenant_id", appt.TenantID, "appointment_id", appt.AppointmentID, "type", env.EventType)
	return nil
}

func (e *SheetsExporter) row(appt events.AppointmentV1, eventType string) []any {
	status := appt.Status
	if eventType == events.TypeAppointmentCancelled {
		status = "cancelled"
	}
	return []any{
		appt.AppointmentID,
		appt.TenantID,
		appt.PatientName,
		appt.PatientPhone,
		appt.Payer,
		appt.Slot,
		status,
		appt.CreatedAt.In(e.loc).Format(registeredLayout),
	}
}
