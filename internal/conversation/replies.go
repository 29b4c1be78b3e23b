package conversation

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/internal/timeutil"
)

// FallbackMessage is sent whenever a turn cannot be processed.
const FallbackMessage = "Lo siento, hubo un error procesando tu solicitud. Por favor intenta de nuevo en un momento."

const maxAlternativeSlots = 8

var (
	weekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	months   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// longDate renders "lunes, 10 de marzo de 2025".
func longDate(d civil.Date) string {
	return shortDate(d) + " de " + fmt.Sprint(d.Year)
}

// shortDate renders "lunes, 10 de marzo".
func shortDate(d civil.Date) string {
	wd := d.In(time.UTC).Weekday()
	return fmt.Sprintf("%s, %d de %s", weekdays[wd], d.Day, months[d.Month-1])
}

// relativeDate prefers "hoy" and "mañana" over "el lunes, 10 de marzo".
func relativeDate(d, today civil.Date) string {
	switch d {
	case today:
		return "hoy"
	case today.AddDays(1):
		return "mañana"
	default:
		return "el " + shortDate(d)
	}
}

func courtNames(list []domain.Court) []string {
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Name)
	}
	return names
}

// askMissing prompts for required fields. Once the customer has given
// anything, the prompt lists each remaining item; otherwise it is a single
// friendly question.
func askMissing(missing []string, supplied bool, all []domain.Court) string {
	if supplied {
		var items []string
		for _, field := range missing {
			switch field {
			case FieldCourt:
				items = append(items, "¿En qué cancha te gustaría jugar? Tenemos: "+strings.Join(courtNames(all), ", "))
			case FieldDate:
				items = append(items, `¿Para qué día te gustaría reservar? Puedes decirme "hoy", "mañana" o una fecha específica`)
			case FieldTime:
				items = append(items, "¿A qué hora te gustaría jugar?")
			}
		}
		var b strings.Builder
		b.WriteString("¡Perfecto! Para completar tu reserva solo necesito:\n\n")
		for _, item := range items {
			b.WriteString("• " + item + "\n")
		}
		b.WriteString("\n¡Con esa información estaré listo para confirmar tu reserva! 🎾")
		return b.String()
	}

	phrases := make([]string, 0, len(missing))
	for _, field := range missing {
		switch field {
		case FieldCourt:
			phrases = append(phrases, "qué cancha te gustaría")
		case FieldDate:
			phrases = append(phrases, "para qué día")
		case FieldTime:
			phrases = append(phrases, "a qué hora")
		}
	}
	return "¡Hola! Me encantaría ayudarte a reservar una cancha 🎾\n\n" +
		"Para hacerlo, necesito saber " + strings.Join(phrases, ", ") + ".\n\n" +
		"¿Qué te parece si empezamos?"
}

func confirmationMessage(res domain.Reservation, loc *time.Location) string {
	start := res.Window.Start.In(loc)
	return "✅ ¡Reserva confirmada!\n\n" +
		fmt.Sprintf("📅 Fecha: %s\n", longDate(civil.DateOf(start))) +
		fmt.Sprintf("🕐 Hora: %s\n", start.Format("15:04")) +
		fmt.Sprintf("⏱️ Duración: %d minutos\n", int(res.Window.Duration().Minutes())) +
		fmt.Sprintf("🏸 Cancha: %s\n", res.CourtName) +
		fmt.Sprintf("👤 Cliente: %s\n\n", res.CustomerName) +
		"Tu reserva ha sido registrada exitosamente. ¡Nos vemos en la cancha! 🎾"
}

func conflictMessage(reason string, court domain.Court, date civil.Date, slots []string, freeCourts []domain.Court) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❌ Lo siento, %s.", lowerFirst(strings.TrimSuffix(reason, ".")))
	switch {
	case len(slots) > 0:
		fmt.Fprintf(&b, "\n\n✅ Horarios disponibles para %s el %s:\n", court.Name, shortDate(date))
		for _, slot := range slots {
			b.WriteString("🕐 " + slot + "\n")
		}
	case len(freeCourts) > 0:
		b.WriteString("\n\n✅ Canchas disponibles en ese horario:\n")
		for _, c := range freeCourts {
			b.WriteString("🏸 " + c.Name + "\n")
		}
	default:
		b.WriteString("\n")
	}
	b.WriteString("\n¿Te gustaría reservar en otro horario o cancha?")
	return b.String()
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func cancelledMessage(res domain.Reservation, loc *time.Location) string {
	start := res.Window.Start.In(loc)
	return "✅ Reserva cancelada exitosamente\n\n" +
		fmt.Sprintf("📅 Fecha: %s\n", longDate(civil.DateOf(start))) +
		fmt.Sprintf("🕐 Hora: %s\n", start.Format("15:04")) +
		fmt.Sprintf("🏸 Cancha: %s\n\n", res.CourtName) +
		"Tu reserva ha sido cancelada. Si cambias de opinión, estaré aquí para ayudarte a hacer una nueva reserva. 🎾"
}

func cancelChoicesMessage(list []domain.Reservation, filtered bool, loc *time.Location) string {
	var b strings.Builder
	if filtered {
		fmt.Fprintf(&b, "Encontré %d reservas que coinciden:\n\n", len(list))
	} else {
		fmt.Fprintf(&b, "Encontré %d reservas activas:\n\n", len(list))
	}
	for i, r := range list {
		start := r.Window.Start.In(loc)
		fmt.Fprintf(&b, "%d. %s - %s a las %s\n", i+1, r.CourtName, shortDate(civil.DateOf(start)), start.Format("15:04"))
	}
	b.WriteString("\nPor favor, especifica cuál reserva quieres cancelar (por ejemplo: \"la de mañana\" o \"la de la Cancha 1\").")
	return b.String()
}

func noReservationsMessage(filtered bool) string {
	if filtered {
		return "No encontré ninguna reserva que coincida con esos datos.\n\n" +
			"Revisa la cancha o la fecha e intenta de nuevo."
	}
	return "No encontré ninguna reserva activa asociada a tu número de teléfono.\n\n" +
		"¿Estás seguro de que tienes una reserva? Si la hiciste con otro número, por favor proporciona más detalles."
}

func scheduleMessage(court domain.Court, when string, slots []string, hours domain.BusinessHours) string {
	footer := fmt.Sprintf("Horario del establecimiento: %s - %s", timeutil.FormatClock(hours.Open), timeutil.FormatClock(hours.Close))
	if len(slots) == 0 {
		return fmt.Sprintf("No hay horarios disponibles para %s %s.\n\n%s", court.Name, when, footer)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Horarios disponibles para %s %s:\n\n", court.Name, when)
	for _, slot := range slots {
		b.WriteString("🕐 " + slot + "\n")
	}
	b.WriteString("\n" + footer)
	return b.String()
}

func courtListMessage(free []domain.Court) string {
	if len(free) == 0 {
		return "No hay canchas disponibles en ese horario.\n\n¿Te gustaría consultar otros horarios?"
	}
	var b strings.Builder
	b.WriteString("Canchas disponibles:\n\n")
	for _, c := range free {
		b.WriteString("🏸 " + c.Name + "\n")
	}
	b.WriteString("\n¿Te gustaría reservar alguna?")
	return b.String()
}

func greetingMessage(establishment string) string {
	return fmt.Sprintf("¡Hola! Soy el asistente de reservas de %s 🎾\n\n"+
		"Puedo ayudarte a reservar una cancha, consultar horarios disponibles o cancelar una reserva. ¿Qué te gustaría hacer?", establishment)
}
