package datetime

import (
	"fmt"
	"time"
)

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

var spanishWeekdays = [...]string{
	"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado",
}

// FormatLocal renders t in the issuer's zone, e.g.
// "miércoles 25 de diciembre de 2024, 10:30".
func FormatLocal(t time.Time, offsetMinutes int) string {
	l := t.In(Zone(offsetMinutes))
	return fmt.Sprintf("%s %d de %s de %d, %02d:%02d",
		spanishWeekdays[l.Weekday()], l.Day(), spanishMonths[l.Month()-1], l.Year(), l.Hour(), l.Minute())
}
