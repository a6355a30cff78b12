package schedule

import (
	"fmt"

	"schedbot/internal/datetime"
)

const (
	msgMissingRecipient = "❌ Falta el número de teléfono del destinatario. Por favor, incluye un número en formato internacional (ej: +56912345678)"
	msgMissingDateTime  = "❌ Falta la fecha y hora del mensaje. Por favor, especifica cuándo enviar el mensaje (ej: mañana 15:30)"
	msgMissingMessage   = "❌ Falta el contenido del mensaje. Por favor, incluye el mensaje que quieres enviar"
	msgInvalidFormat    = "❌ La fecha/hora y el mensaje deben estar en formato $texto$. Ejemplo: /schedule +56912345678 $mañana 09:00$ $Hola$"
	msgInvalidPhone     = "❌ El número \"%s\" no es válido. Por favor, usa el formato internacional (ej: +56912345678)"
	msgContactNotFound  = "❌ No puedo buscar contactos por nombre (\"%s\"). Por favor, usa el número de teléfono con código de país (ej: +56912345678)"
	msgInvalidDateTime  = "❌ El formato de fecha/hora no es válido. Ejemplos válidos:\n" +
		"- 2024-12-25 10:30\n" +
		"- 09:30 (para hoy)\n" +
		"- mañana 15:45\n" +
		"- próximo lunes 08:00\n" +
		"- mañana 00:00 (o 24:00 para medianoche)"
	msgInvalidHour    = "❌ La hora especificada no es válida. Usa formato 24 horas (00:00 a 23:59, o 24:00 para medianoche)."
	msgPastDateTime   = "⚠️ La fecha y hora especificada ya pasó. Por favor, elige un momento en el futuro."
	msgInvalidMessage = "❌ El contenido del mensaje no es válido. El mensaje debe:\n" +
		"- No estar vacío\n" +
		"- No exceder 1000 caracteres\n" +
		"- Contener texto real (no solo espacios)"
	msgLimitReached = "🚫 Has alcanzado el límite de %d mensajes programados pendientes (%d/%d). Por favor, espera a que algunos mensajes sean enviados antes de programar más."
	msgInternal     = "🔧 Ha ocurrido un error interno. Por favor, intenta nuevamente más tarde."
	msgCreated      = "✅ Mensaje programado con éxito para %s (%s)"
	msgFollowUpDone = "¡Listo! He programado tu mensaje."

	msgNeedTime      = "Entiendo tu mensaje, pero necesito que me indiques la hora."
	msgNeedDate      = "Entiendo tu mensaje, pero necesito que me indiques el día."
	msgNeedPhone     = "Necesito que me indiques el número de teléfono con código de país para poder agendar el mensaje (ejemplo: +56912345678)."
	msgNotUnderstood = "No pude entender el mensaje. Por favor, intenta de nuevo con un mensaje que incluya la fecha y el contenido."
	msgStillNeedTime = "Aún necesito que me indiques la hora."
	msgStillNeedDate = "Aún necesito que me indiques el día."
)

// DefaultZoneLabel names the issuer zone in confirmations.
const DefaultZoneLabel = "hora de Chile"

// Catalog renders outcomes as user-facing text.
type Catalog struct {
	ZoneLabel string
}

func (c Catalog) Reply(o Outcome) string {
	switch o.Kind {
	case OutcomeCreated:
		label := c.ZoneLabel
		if label == "" {
			label = DefaultZoneLabel
		}
		when := ""
		if o.Job != nil {
			when = datetime.FormatLocal(o.Job.ScheduledAt, o.Job.UTCOffsetMinutes)
		}
		msg := fmt.Sprintf(msgCreated, when, label)
		if o.FollowUp {
			msg = msgFollowUpDone + "\n" + msg
		}
		return msg
	case OutcomeMissingRecipient:
		return msgMissingRecipient
	case OutcomeMissingDateTime:
		return msgMissingDateTime
	case OutcomeMissingMessage:
		return msgMissingMessage
	case OutcomeInvalidFormat:
		return msgInvalidFormat
	case OutcomeInvalidPhone:
		return fmt.Sprintf(msgInvalidPhone, o.Input)
	case OutcomeContactNotFound:
		return fmt.Sprintf(msgContactNotFound, o.Input)
	case OutcomeInvalidDateTime:
		return msgInvalidDateTime
	case OutcomeInvalidHour:
		return msgInvalidHour
	case OutcomePastDateTime:
		return msgPastDateTime
	case OutcomeInvalidMessage:
		return msgInvalidMessage
	case OutcomeLimitReached:
		return fmt.Sprintf(msgLimitReached, o.Max, o.Current, o.Max)
	case OutcomeNeedTime:
		if o.FollowUp {
			return msgStillNeedTime
		}
		return msgNeedTime
	case OutcomeNeedDate:
		if o.FollowUp {
			return msgStillNeedDate
		}
		return msgNeedDate
	case OutcomeNeedPhone:
		return msgNeedPhone
	case OutcomeNotUnderstood:
		return msgNotUnderstood
	default:
		if o.Err != nil {
			return msgInternal + "\nDetalle: " + o.Err.Error()
		}
		return msgInternal
	}
}
