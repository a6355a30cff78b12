package router

import (
	"html"
	"strings"
)

const unknownCommandText = "Comando no reconocido. Escribe /help para ver lo que puedo hacer."

// helpText renders the command overview in Telegram HTML parse mode.
func helpText(cfg Config) string {
	kw := html.EscapeString(cfg.Keyword)
	return strings.Join([]string{
		"📚 <b>Mensajes programados</b>",
		"",
		"<b>Programar con comando</b>",
		"<code>" + kw + " +56912345678 $2024-12-25 10:30$ $Feliz Navidad$</code>",
		"Destinatario, fecha/hora y mensaje separados por <code>$</code>.",
		"",
		"<b>Programar en lenguaje natural</b>",
		"<code>envía a +56912345678 mañana a las 10:00 feliz cumpleaños</code>",
		"Si falta algún dato te lo preguntaré.",
		"",
		"<b>Fechas aceptadas</b>",
		"hoy, mañana, pasado mañana, el viernes, próximo lunes, 25/12, 2024-12-25",
		"Las horas se interpretan en " + html.EscapeString(cfg.ZoneLabel) + ".",
		"",
		"<b>Ver tus mensajes</b>",
		"<code>qué mensajes tengo?</code> y luego <code>ver más</code>",
	}, "\n")
}
