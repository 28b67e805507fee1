// Package webchat serves the web widget channel: a JSON request/reply endpoint
// and a WebSocket for live chat, both bound to the default web tenant.
package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/consultia/clinic-agent/internal/clinic"
	"github.com/consultia/clinic-agent/internal/conversation"
	"github.com/consultia/clinic-agent/pkg/logging"
)

const (
	msgMissingFields  = "Faltan campos: sessionId y mensaje son requeridos"
	msgTenantNotFound = "Configuración del cliente no encontrada"
	msgInternal       = "Error interno del servidor"
)

// TenantSource loads the tenant the widget talks to.
type TenantSource interface {
	Get(ctx context.Context, id string) (*clinic.Tenant, error)
}

// MessageHandler runs one dialogue cycle.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg conversation.InboundMessage, tenant *clinic.Tenant) (string, error)
}

// Handler serves web chat requests.
type Handler struct {
	tenants  TenantSource
	dialogue MessageHandler
	tenantID string
	logger   *logging.Logger
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"mensaje"`
}

// ChatResponse is the reply to POST /chat.
type ChatResponse struct {
	Reply string `json:"respuesta"`
}

// InboundFrame is what the widget sends over the socket.
type InboundFrame struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundFrame is what the widget receives over the socket.
type OutboundFrame struct {
	Type      string `json:"type"` // "session", "typing", "message", "pong", "error"
	Text      string `json:"text,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func NewHandler(tenants TenantSource, dialogue MessageHandler, tenantID string, logger *logging.Logger) *Handler {
	if tenants == nil {
		panic("webchat: tenant source cannot be nil")
	}
	if dialogue == nil {
		panic("webchat: message handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(tenantID) == "" {
		tenantID = "demo"
	}
	return &Handler{tenants: tenants, dialogue: dialogue, tenantID: tenantID, logger: logger}
}

// HandleChat answers POST /chat synchronously.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgMissingFields})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgMissingFields})
		return
	}

	tenant, err := h.tenant(r.Context())
	if err != nil {
		h.logger.Error("webchat: tenant lookup failed", "tenant_id", h.tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": tenantErrorMessage(err)})
		return
	}

	reply, err := h.dialogue.HandleMessage(r.Context(), conversation.InboundMessage{
		SessionKey: req.SessionID,
		Text:       req.Message,
		Channel:    conversation.ChannelWeb,
	}, tenant)
	if err != nil {
		h.logger.Error("webchat: failed to process message", "tenant_id", tenant.ID, "session_id", req.SessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgInternal})
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

// HandleWebSocket upgrades GET /chat/ws and runs the dialogue per frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	tenant, err := h.tenant(ctx)
	if err != nil {
		h.logger.Error("webchat: tenant lookup failed", "tenant_id", h.tenantID, "error", err)
		_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Text: tenantErrorMessage(err)})
		return
	}

	_ = websocket.JSON.Send(conn, OutboundFrame{Type: "session", SessionID: sessionID})
	h.logger.Info("webchat: connection opened", "tenant_id", tenant.ID, "session_id", sessionID)

	for {
		var frame InboundFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}

		switch {
		case frame.Type == "ping":
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "pong"})
			continue
		case frame.Type != "message" || strings.TrimSpace(frame.Text) == "":
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundFrame{Type: "typing"})
		reply, err := h.dialogue.HandleMessage(ctx, conversation.InboundMessage{
			SessionKey: sessionID,
			Text:       frame.Text,
			Channel:    conversation.ChannelWeb,
		}, tenant)
		if err != nil {
			h.logger.Error("webchat: failed to process message", "tenant_id", tenant.ID, "session_id", sessionID, "error", err)
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Text: msgInternal})
			continue
		}
		if err := websocket.JSON.Send(conn, OutboundFrame{
			Type:      "message",
			Role:      "assistant",
			Text:      reply,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}
	}
}

func (h *Handler) tenant(ctx context.Context) (*clinic.Tenant, error) {
	t, err := h.tenants.Get(ctx, h.tenantID)
	if err != nil {
		return nil, err
	}
	if t == nil || !t.Active {
		return nil, clinic.ErrTenantNotFound
	}
	if err := t.Validate(); err != nil {
		return nil, errors.Join(clinic.ErrTenantNotFound, err)
	}
	return t, nil
}

// tenantErrorMessage keeps store outages apart from a missing tenant.
func tenantErrorMessage(err error) string {
	if errors.Is(err, clinic.ErrTenantNotFound) {
		return msgTenantNotFound
	}
	return msgInternal
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
