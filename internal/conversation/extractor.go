package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrProposalIncomplete means the payload parsed but lacks a name or slot.
var ErrProposalIncomplete = errors.New("conversation: proposal missing name or slot")

// Proposal is the booking request the assistant embedded in its reply.
type Proposal struct {
	Name            string
	Payer           string
	Reason          string
	Date            string
	Slot            string
	Phone           string
	DNI             string
	AffiliateNumber string
}

// Extraction is the split of a raw reply. Visible is always the trimmed text
// before the marker; Err explains why a present marker yielded no proposal.
type Extraction struct {
	Visible  string
	Proposal *Proposal
	Err      error
}

type proposalPayload struct {
	Nombre     string `json:"nombre"`
	ObraSocial string `json:"obraSocial"`
	Cobertura  string `json:"cobertura"`
	Motivo     string `json:"motivo"`
	Horario    string `json:"horario"`
	Hora       string `json:"hora"`
	Fecha      string `json:"fecha"`
	Telefono   string `json:"telefono"`
	DNI        string `json:"dni"`
	Afiliado   string `json:"afiliado"`
}

// Extract splits raw into visible text and an optional proposal. Only the
// first JSON value after the marker is read; anything trailing is ignored.
func Extract(raw string) Extraction {
	idx := strings.Index(raw, ProposalMarker)
	if idx < 0 {
		return Extraction{Visible: strings.TrimSpace(raw)}
	}
	out := Extraction{Visible: strings.TrimSpace(raw[:idx])}

	dec := json.NewDecoder(strings.NewReader(raw[idx+len(ProposalMarker):]))
	var payload proposalPayload
	if err := dec.Decode(&payload); err != nil {
		out.Err = fmt.Errorf("conversation: decode proposal: %w", err)
		return out
	}

	p := &Proposal{
		Name:            strings.TrimSpace(payload.Nombre),
		Payer:           firstNonEmpty(payload.ObraSocial, payload.Cobertura),
		Reason:          strings.TrimSpace(payload.Motivo),
		Date:            strings.TrimSpace(payload.Fecha),
		Slot:            firstNonEmpty(payload.Horario, payload.Hora),
		Phone:           strings.TrimSpace(payload.Telefono),
		DNI:             strings.TrimSpace(payload.DNI),
		AffiliateNumber: strings.TrimSpace(payload.Afiliado),
	}
	if p.Name == "" || p.Slot == "" {
		out.Err = ErrProposalIncomplete
		return out
	}
	out.Proposal = p
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
