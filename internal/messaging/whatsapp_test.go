package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultia/clinic-agent/internal/clinic"
	"github.com/consultia/clinic-agent/internal/conversation"
	"github.com/consultia/clinic-agent/pkg/logging"
)

type stubResolver struct {
	tenant *clinic.Tenant
	err    error
	addrs  []string
}

func (s *stubResolver) Resolve(_ context.Context, addr string) (*clinic.Tenant, bool, error) {
	s.addrs = append(s.addrs, addr)
	if s.err != nil {
		return nil, false, s.err
	}
	return s.tenant, s.tenant != nil, nil
}

type stubDialogue struct {
	reply string
	err   error
	msgs  []conversation.InboundMessage
}

func (s *stubDialogue) HandleMessage(_ context.Context, msg conversation.InboundMessage, _ *clinic.Tenant) (string, error) {
	s.msgs = append(s.msgs, msg)
	return s.reply, s.err
}

type memoryDeduper struct{ seen map[string]bool }

func (m *memoryDeduper) Claim(_ context.Context, provider, id string) (bool, error) {
	key := provider + "/" + id
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func inboundForm() url.Values {
	return url.Values{
		"MessageSid": {"SM123"},
		"From":       {"whatsapp:+5491155550000"},
		"To":         {"whatsapp:+14155238886"},
		"Body":       {"Hola, quiero un turno"},
	}
}

func postForm(h http.Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func demoTenant() *clinic.Tenant {
	t := clinic.DemoTenant()
	t.ID = "whatsapp_+14155238886"
	return &t
}

func TestWhatsAppHandlerRepliesWithTwiML(t *testing.T) {
	resolver := &stubResolver{tenant: demoTenant()}
	dialogue := &stubDialogue{reply: "¡Hola! ¿Para qué día querés el turno?"}
	h := NewWhatsAppHandler(resolver, dialogue, logging.Default())

	rec := postForm(h, inboundForm())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/xml")
	assert.Contains(t, rec.Body.String(), "<Message>¡Hola! ¿Para qué día querés el turno?</Message>")
	require.Len(t, dialogue.msgs, 1)
	assert.Equal(t, "whatsapp:+5491155550000", dialogue.msgs[0].SessionKey)
	assert.Equal(t, conversation.ChannelWhatsApp, dialogue.msgs[0].Channel)
	assert.Equal(t, []string{"whatsapp:+14155238886"}, resolver.addrs)
}

func TestWhatsAppHandlerUnknownTenant(t *testing.T) {
	dialogue := &stubDialogue{}
	h := NewWhatsAppHandler(&stubResolver{}, dialogue, nil)

	rec := postForm(h, inboundForm())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), NotConfiguredMessage)
	assert.Empty(t, dialogue.msgs)
}

func TestWhatsAppHandlerResolverFailure(t *testing.T) {
	h := NewWhatsAppHandler(&stubResolver{err: errors.New("db down")}, &stubDialogue{}, nil)

	rec := postForm(h, inboundForm())

	assert.Contains(t, rec.Body.String(), GenericErrorMessage)
}

func TestWhatsAppHandlerDialogueFailure(t *testing.T) {
	dialogue := &stubDialogue{err: errors.New("boom")}
	h := NewWhatsAppHandler(&stubResolver{tenant: demoTenant()}, dialogue, nil)

	rec := postForm(h, inboundForm())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), GenericErrorMessage)
}

func TestWhatsAppHandlerIgnoresEmptyBody(t *testing.T) {
	dialogue := &stubDialogue{reply: "x"}
	h := NewWhatsAppHandler(&stubResolver{tenant: demoTenant()}, dialogue, nil)

	form := inboundForm()
	form.Set("Body", "   ")
	rec := postForm(h, form)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<Message>")
	assert.Empty(t, dialogue.msgs)
}

func TestWhatsAppHandlerDropsRedelivery(t *testing.T) {
	dialogue := &stubDialogue{reply: "ok"}
	h := NewWhatsAppHandler(&stubResolver{tenant: demoTenant()}, dialogue, nil,
		WithDeduper(&memoryDeduper{seen: map[string]bool{}}))

	first := postForm(h, inboundForm())
	second := postForm(h, inboundForm())

	assert.Contains(t, first.Body.String(), "<Message>ok</Message>")
	assert.NotContains(t, second.Body.String(), "<Message>")
	assert.Len(t, dialogue.msgs, 1)
}

func TestWhatsAppHandlerSignature(t *testing.T) {
	dialogue := &stubDialogue{reply: "ok"}
	h := NewWhatsAppHandler(&stubResolver{tenant: demoTenant()}, dialogue, nil,
		WithSignatureValidation("token", "https://agent.example.com/"))

	rec := postForm(h, inboundForm())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, dialogue.msgs)

	req := signedRequest(t, "https://agent.example.com/whatsapp", "token", inboundForm())
	req.URL.Scheme, req.URL.Host = "", ""
	req.RequestURI = "/whatsapp"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Message>ok</Message>")
}

func TestNewWhatsAppHandlerPanicsWithoutDeps(t *testing.T) {
	assert.Panics(t, func() { NewWhatsAppHandler(nil, &stubDialogue{}, nil) })
	assert.Panics(t, func() { NewWhatsAppHandler(&stubResolver{}, nil, nil) })
}
