package messaging

import (
	"regexp"
	"strings"
)

const whatsappPrefix = "whatsapp:"

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// NormalizeRequester turns a Twilio address such as "whatsapp:+52 155 1234"
// into the bare E.164 number used as the conversation key. Values without
// digits are returned trimmed so test channels keep working.
func NormalizeRequester(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= len(whatsappPrefix) && strings.EqualFold(value[:len(whatsappPrefix)], whatsappPrefix) {
		value = strings.TrimSpace(value[len(whatsappPrefix):])
	}
	if value == "" {
		return ""
	}
	if normalized := NormalizeE164(value); normalized != "" {
		return normalized
	}
	return value
}

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// WhatsAppAddress re-applies the channel prefix Twilio expects on sends.
func WhatsAppAddress(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(strings.ToLower(number), whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	digits := phoneDigitsRe.FindAllString(value, -1)
	return strings.Join(digits, "")
}
