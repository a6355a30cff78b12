package view

import (
	"fmt"
	"strings"

	"schedbot/internal/datetime"
)

const (
	msgNoMessages    = "No tienes mensajes programados pendientes."
	msgNoMore        = "No hay más mensajes programados para mostrar."
	msgInvalid       = "No pude entender tu solicitud. Puedes preguntarme 'qué mensajes tengo?' para ver tus mensajes programados."
	msgMoreAvailable = "➕ Hay %d mensajes más. Puedes decirme 'ver más' para continuar."
	msgFetchError    = "Lo siento, hubo un error al obtener tus mensajes. Por favor, intenta de nuevo más tarde."
	msgHeader        = "📬 Estos son tus mensajes programados:"
	msgMoreHeader    = "📬 Aquí tienes más mensajes:"
	msgTotalSummary  = "📊 Total de mensajes programados: %d"
)

// Reply renders r as a single chat message.
func Reply(r Result) string {
	switch r.Kind {
	case ResultNoMessages:
		return msgNoMessages
	case ResultNoMore:
		return msgNoMore
	case ResultInvalid:
		return msgInvalid
	case ResultError:
		return msgFetchError
	}

	var b strings.Builder
	if r.More {
		b.WriteString(msgMoreHeader)
	} else {
		b.WriteString(msgHeader)
		b.WriteString("\n")
		fmt.Fprintf(&b, msgTotalSummary, r.Page.Total)
	}
	b.WriteString("\n")
	for i, j := range r.Page.Items {
		fmt.Fprintf(&b, "\n%d. 📅 %s\n   📱 %s\n   💬 %s\n",
			r.Page.Offset+i+1, datetime.FormatLocal(j.ScheduledAt, j.UTCOffsetMinutes), j.Recipient, j.Content)
	}
	if r.Page.HasMore {
		b.WriteString("\n")
		fmt.Fprintf(&b, msgMoreAvailable, r.Page.Remaining())
	}
	return strings.TrimRight(b.String(), "\n")
}
