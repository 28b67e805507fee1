package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

type badEvent struct{}

func (badEvent) EventType() string { return "" }

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	env, err := newEnvelope("demo", AppointmentBookedV1{AppointmentV1: AppointmentV1{
		AppointmentID: "a-1",
		TenantID:      "demo",
		PatientName:   "Ana",
		Slot:          "10:00",
		Status:        "pending",
		Origin:        "agent",
	}}, WithEventID(id))
	if err != nil {
		t.Fatalf("newEnvelope failed: %v", err)
	}
	if env.EventID != id {
		t.Fatalf("expected event id override, got %s", env.EventID)
	}
	if env.TimestampMicros != fixedNow.UnixMicro() {
		t.Fatalf("unexpected timestamp: %d", env.TimestampMicros)
	}
	if env.EventType != TypeAppointmentBooked {
		t.Fatalf("unexpected type: %s", env.EventType)
	}

	appt, err := DecodeAppointment(env)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if appt.PatientName != "Ana" || appt.Slot != "10:00" {
		t.Fatalf("unexpected appointment: %#v", appt)
	}
}

func TestNewEnvelopeValidation(t *testing.T) {
	if _, err := newEnvelope("", AppointmentBookedV1{}); err != errMissingTenant {
		t.Fatalf("expected missing tenant error, got %v", err)
	}
	if _, err := newEnvelope("demo", nil); err != errNilEvent {
		t.Fatalf("expected nil event error, got %v", err)
	}
	if _, err := newEnvelope("demo", badEvent{}); err == nil {
		t.Fatal("expected error for empty event type")
	}
}

func TestDecodeAppointmentRejectsOtherTypes(t *testing.T) {
	if _, err := DecodeAppointment(Envelope{EventType: "something.else.v1", Payload: []byte(`{}`)}); err == nil {
		t.Fatal("expected error for unrelated event type")
	}
}
