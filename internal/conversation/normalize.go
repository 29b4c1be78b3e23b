package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
)

const (
	minDurationMinutes = 30
	maxDurationMinutes = 240
)

var (
	dateLayouts = []string{"2006-01-02", "2/1/2006", "2-1-2006", "2006/1/2"}
	numbersRE   = regexp.MustCompile(`\d+`)
	meridiemRE  = regexp.MustCompile(`(?:\d|\s)([ap])\.?\s?m\b`)
	courtNumRE  = regexp.MustCompile(`^\d{1,2}$`)
)

// ParseDate reads relative words (hoy, mañana, pasado mañana) and the
// numeric layouts customers and the model produce. today is the local date.
func ParseDate(raw string, today civil.Date) (civil.Date, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "hoy", "today":
		return today, nil
	case "mañana", "manana", "mañ", "tomorrow":
		return today.AddDays(1), nil
	case "pasado mañana", "pasado manana", "day after tomorrow":
		return today.AddDays(2), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, &domain.ValidationError{Field: FieldDate, Value: raw, Reason: "unrecognized date"}
}

// ParseTime accepts 24h forms (18:00, 18:00:00, 1800, 18) and 12h forms (6pm,
// 6:30 p.m., 6 de la tarde). Out-of-range parts are clamped.
func ParseTime(raw string) (civil.Time, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "mediodía" || s == "mediodia" {
		return civil.Time{Hour: 12}, nil
	}

	var hour, minute int
	meridiem := meridiemRE.FindStringSubmatch(s)
	switch {
	case meridiem != nil:
		nums := numbersRE.FindAllString(s, 2)
		if len(nums) == 0 {
			return civil.Time{}, invalidTime(raw)
		}
		hour, _ = strconv.Atoi(nums[0])
		if len(nums) > 1 {
			minute, _ = strconv.Atoi(nums[1])
		}
		pm := meridiem[1] == "p"
		if pm && hour != 12 {
			hour += 12
		} else if !pm && hour == 12 {
			hour = 0
		}
	default:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == ':' {
				return r
			}
			return -1
		}, s)
		if cleaned == "" {
			return civil.Time{}, invalidTime(raw)
		}
		if strings.Contains(cleaned, ":") {
			// HH:MM with an optional :SS that is dropped.
			parts := strings.Split(cleaned, ":")
			if len(parts) > 3 {
				return civil.Time{}, invalidTime(raw)
			}
			nums := make([]int, len(parts))
			for i, part := range parts {
				n, err := strconv.Atoi(part)
				if err != nil {
					return civil.Time{}, invalidTime(raw)
				}
				nums[i] = n
			}
			hour, minute = nums[0], nums[1]
		} else {
			switch len(cleaned) {
			case 1, 2:
				hour, _ = strconv.Atoi(cleaned)
			case 3:
				hour, _ = strconv.Atoi(cleaned[:1])
				minute, _ = strconv.Atoi(cleaned[1:])
			default:
				hour, _ = strconv.Atoi(cleaned[:2])
				minute, _ = strconv.Atoi(cleaned[2:4])
			}
		}
		if hour < 12 && (strings.Contains(s, "tarde") || strings.Contains(s, "noche")) {
			hour += 12
		}
	}

	return civil.Time{Hour: clamp(hour, 0, 23), Minute: clamp(minute, 0, 59)}, nil
}

// ValidDuration enforces the bookable range in minutes.
func ValidDuration(minutes int) error {
	if minutes < minDurationMinutes || minutes > maxDurationMinutes {
		return &domain.ValidationError{
			Field:  "duracion",
			Value:  strconv.Itoa(minutes),
			Reason: "must be between 30 and 240 minutes",
		}
	}
	return nil
}

// courtReference turns a bare number into the conventional court id so
// "3" and "cancha_3" resolve alike.
func courtReference(raw string) string {
	s := strings.TrimSpace(raw)
	if courtNumRE.MatchString(s) {
		return "cancha_" + strings.TrimLeft(s, "0")
	}
	return s
}

func invalidTime(raw string) error {
	return &domain.ValidationError{Field: FieldTime, Value: raw, Reason: "unrecognized time"}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
