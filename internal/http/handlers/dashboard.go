// Package handlers serves the clinic staff dashboard API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/consultia/clinic-agent/internal/appointments"
	"github.com/consultia/clinic-agent/internal/clinic"
	httpmiddleware "github.com/consultia/clinic-agent/internal/http/middleware"
	"github.com/consultia/clinic-agent/internal/staff"
	"github.com/consultia/clinic-agent/internal/tenancy"
	"github.com/consultia/clinic-agent/pkg/logging"
)

const particularPayer = "Particular"

// StaffAuth is the account side of the dashboard.
type StaffAuth interface {
	Login(ctx context.Context, email, password string) (string, *staff.User, error)
	CreateUser(ctx context.Context, in staff.NewUser) (*staff.User, error)
}

// AppointmentBook is the slot engine as seen by staff.
type AppointmentBook interface {
	BookManual(ctx context.Context, tenantID string, req appointments.Request) (*appointments.Appointment, error)
	Cancel(ctx context.Context, tenantID string, id uuid.UUID) (*appointments.Appointment, error)
	List(ctx context.Context, tenantID string, filter appointments.Filter) ([]appointments.Appointment, error)
}

// TenantSource loads tenant configuration.
type TenantSource interface {
	Get(ctx context.Context, id string) (*clinic.Tenant, error)
}

// AppointmentEvents publishes staff-made changes for export.
type AppointmentEvents interface {
	RecordBooked(ctx context.Context, appt *appointments.Appointment) error
	RecordCancelled(ctx context.Context, appt *appointments.Appointment) error
}

// DashboardHandler serves /api/dashboard.
type DashboardHandler struct {
	auth    StaffAuth
	book    AppointmentBook
	tenants TenantSource
	events  AppointmentEvents
	logger  *logging.Logger
}

func NewDashboardHandler(auth StaffAuth, book AppointmentBook, tenants TenantSource, events AppointmentEvents, logger *logging.Logger) *DashboardHandler {
	if auth == nil || book == nil || tenants == nil {
		panic("handlers: dashboard requires auth, appointment book and tenant source")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DashboardHandler{auth: auth, book: book, tenants: tenants, events: events, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID    int64      `json:"id"`
	Name  string     `json:"nombre"`
	Email string     `json:"email"`
	Role  staff.Role `json:"rol"`
}

// LoginResponse carries the bearer token for later dashboard calls.
type LoginResponse struct {
	Token string   `json:"token"`
	User  userView `json:"usuario"`
}

// Login handles POST /api/dashboard/login.
func (h *DashboardHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email y contraseña requeridos")
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, staff.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Credenciales incorrectas")
		return
	case err != nil:
		h.logger.Error("dashboard login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Error interno")
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Token: token,
		User:  userView{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role},
	})
}

// ConfigResponse feeds the dashboard's payer and slot selects.
type ConfigResponse struct {
	Name   string   `json:"nombre"`
	Payers []string `json:"obrasSociales"`
	Slots  []string `json:"horarios"`
}

// Config handles GET /api/dashboard/config.
func (h *DashboardHandler) Config(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "Token inválido o expirado")
		return
	}
	tenant, err := h.tenants.Get(r.Context(), tenantID)
	if errors.Is(err, clinic.ErrTenantNotFound) {
		writeError(w, http.StatusNotFound, "Configuración del cliente no encontrada")
		return
	}
	if err != nil {
		h.logger.Error("dashboard config lookup failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error interno")
		return
	}
	slots, err := tenant.Slots()
	if err != nil {
		h.logger.Error("tenant slot configuration invalid", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error interno")
		return
	}
	payers := make([]string, 0, len(tenant.Payers)+1)
	payers = append(payers, tenant.Payers...)
	payers = append(payers, particularPayer)
	writeJSON(w, http.StatusOK, ConfigResponse{Name: tenant.Name, Payers: payers, Slots: slots})
}

// ListAppointments handles GET /api/dashboard/turnos. A fecha filter wins
// over semanaInicio/semanaFin; without either everything is listed.
func (h *DashboardHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "Token inválido o expirado")
		return
	}
	q := r.URL.Query()
	filter := appointments.Filter{Date: strings.TrimSpace(q.Get("fecha"))}
	if filter.Date == "" {
		start, end := strings.TrimSpace(q.Get("semanaInicio")), strings.TrimSpace(q.Get("semanaFin"))
		if start != "" && end != "" {
			filter.WeekStart, filter.WeekEnd = start, end
		}
	}

	list, err := h.book.List(r.Context(), tenantID, filter)
	if err != nil {
		h.logger.Error("listing appointments failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error interno")
		return
	}
	if list == nil {
		list = []appointments.Appointment{}
	}
	writeJSON(w, http.StatusOK, list)
}

type manualBookingRequest struct {
	Name            string `json:"nombre"`
	DNI             string `json:"dni"`
	Payer           string `json:"obraSocial"`
	AffiliateNumber string `json:"afiliado"`
	Reason          string `json:"motivo"`
	Date            string `json:"fecha"`
	Slot            string `json:"horario"`
	Phone           string `json:"telefono"`
}

func (m manualBookingRequest) complete() bool {
	for _, v := range []string{m.Name, m.DNI, m.Payer, m.Date, m.Slot} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// CreateAppointment handles POST /api/dashboard/turnos.
func (h *DashboardHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpmiddleware.StaffClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "Token inválido o expirado")
		return
	}
	var req manualBookingRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if !req.complete() {
		writeError(w, http.StatusBadRequest, "Nombre, DNI, obra social, fecha y horario son requeridos")
		return
	}

	appt, err := h.book.BookManual(r.Context(), claims.TenantID, appointments.Request{
		PatientName:     strings.TrimSpace(req.Name),
		PatientPhone:    strings.TrimSpace(req.Phone),
		Payer:           strings.TrimSpace(req.Payer),
		Date:            strings.TrimSpace(req.Date),
		Slot:            strings.TrimSpace(req.Slot),
		DNI:             strings.TrimSpace(req.DNI),
		AffiliateNumber: strings.TrimSpace(req.AffiliateNumber),
		Reason:          strings.TrimSpace(req.Reason),
		CreatedBy:       claims.Name,
	})
	if conflict, ok := appointments.IsSlotConflict(err); ok {
		writeError(w, http.StatusConflict, "El horario de las "+conflict.Slot+" ya está ocupado")
		return
	}
	if err != nil {
		h.logger.Error("manual booking failed", "tenant_id", claims.TenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error interno")
		return
	}
	if h.events != nil {
		if err := h.events.RecordBooked(r.Context(), appt); err != nil {
			h.logger.Error("recording manual booking failed", "tenant_id", claims.TenantID, "appointment_id", appt.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, appt)
}

// CancelAppointment handles DELETE /api/dashboard/turnos/{id}.
func (h *DashboardHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "Token inválido o expirado")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Turno no encontrado")
		return
	}

	appt, err := h.book.Cancel(r.Context(), tenantID, id)
	if errors.Is(err, appointments.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Turno no encontrado")
		return
	}
	if err != nil {
		h.logger.Error("cancelling appointment failed", "tenant_id", tenantID, "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Error interno")
		return
	}
	if h.events != nil {
		if err := h.events.RecordCancelled(r.Context(), appt); err != nil {
			h.logger.Error("recording cancellation failed", "tenant_id", tenantID, "appointment_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "turno": appt})
}

type createUserRequest struct {
	Name     string     `json:"nombre"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     staff.Role `json:"rol"`
}

// CreateUser handles POST /api/dashboard/usuarios. Admin only; the router
// mounts it behind RequireAdmin.
func (h *DashboardHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpmiddleware.StaffClaimsFromContext(r.Context())
	if !ok || !claims.IsAdmin() {
		writeError(w, http.StatusForbidden, "Solo admins pueden crear usuarios")
		return
	}
	var req createUserRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Nombre, email y contraseña requeridos")
		return
	}
	if req.Role != "" && req.Role != staff.RoleAdmin && req.Role != staff.RoleSecretary {
		writeError(w, http.StatusBadRequest, "Rol inválido")
		return
	}

	user, err := h.auth.CreateUser(r.Context(), staff.NewUser{
		TenantID: claims.TenantID,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if errors.Is(err, staff.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "Ya existe un usuario con ese email")
		return
	}
	if err != nil {
		h.logger.Error("creating staff user failed", "tenant_id", claims.TenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error interno")
		return
	}
	writeJSON(w, http.StatusCreated, userView{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
