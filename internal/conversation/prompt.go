package conversation

import (
	"fmt"
	"strings"

	"github.com/consultia/clinic-agent/internal/clinic"
)

// ProposalMarker opens the machine-readable booking payload in a reply.
const ProposalMarker = "%%TURNO%%"

const bookingScript = `## Cómo tomar un turno
Pedí los datos de a uno, nunca dos preguntas en el mismo mensaje:
1. Si es la primera vez que viene al consultorio o ya es paciente.
2. Nombre y apellido.
3. DNI.
4. Obra social o prepaga (o si consulta como particular). Si es la primera vez y tiene cobertura, pedí el número de afiliado.
5. Motivo de la consulta, en pocas palabras.
6. Día y horario preferido, ofreciendo solamente los horarios de la lista.
7. Teléfono de contacto.

Si el paciente ya te dio un dato, no lo vuelvas a pedir.
Cuando tengas todo, mandá un resumen con los datos del turno y avisá que la secretaría lo va a confirmar.`

// BuildSystemPrompt renders the per-tenant instructions: clinic facts, the
// bookable slot labels, the data-collection script and the payload format.
func BuildSystemPrompt(t *clinic.Tenant, slots []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Sos el asistente virtual de %s", t.Name)
	if t.Specialty != "" {
		fmt.Fprintf(&b, ", un consultorio de %s", t.Specialty)
	}
	if t.Address != "" {
		fmt.Fprintf(&b, " ubicado en %s", t.Address)
	}
	b.WriteString(". Atendés pacientes por WhatsApp y por la web. Hablás en español rioplatense, con calidez y sin vueltas.\n\n")

	b.WriteString("## Datos del consultorio\n")
	writeFact(&b, "Teléfono", t.Phone)
	writeFact(&b, "Lunes a viernes", t.Hours.Weekdays)
	writeFact(&b, "Sábados", t.Hours.Saturdays)
	writeFact(&b, "Domingos", t.Hours.Sundays)
	writeFact(&b, "Duración de cada turno", fmt.Sprintf("%d minutos", t.SlotMinutes))
	writeFact(&b, "Consulta particular", t.Price)
	writeFact(&b, "Formas de pago", strings.Join(t.PaymentMethods, ", "))
	writeFact(&b, "Obras sociales aceptadas", strings.Join(t.Payers, ", "))
	b.WriteString("\n")

	b.WriteString("## Horarios de turno\n")
	if len(slots) > 0 {
		fmt.Fprintf(&b, "Los turnos empiezan en estos horarios: %s.\n", strings.Join(slots, ", "))
	}
	b.WriteString("Si un horario está ocupado, decíselo al paciente y ofrecé otro de la lista.\n\n")

	b.WriteString(bookingScript)
	b.WriteString("\n\n")

	b.WriteString("## Registro del turno\n")
	b.WriteString("Después del resumen, en una línea aparte que el paciente no ve, escribí exactamente:\n")
	fmt.Fprintf(&b, `%s{"nombre":"...","obraSocial":"...","motivo":"...","horario":"HH:MM","fecha":"...","dni":"...","telefono":"...","afiliado":"..."}%%%%`, ProposalMarker)
	b.WriteString("\n`horario` tiene que ser uno de los horarios de la lista. Nunca escribas esa línea antes de tener nombre y horario confirmados.\n\n")

	b.WriteString("## Reglas\n")
	b.WriteString("- No inventes información que no está en estos datos.\n")
	fmt.Fprintf(&b, "- Si no sabés algo, decí que la secretaría se va a comunicar o que pueden llamar al %s.\n", t.Phone)
	b.WriteString("- No des indicaciones médicas.\n")
	return b.String()
}

func writeFact(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}
