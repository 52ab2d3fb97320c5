package provider

import "strings"

// NormalizeMsisdn converts the local and international spellings of a Kenyan
// mobile number into the 2547XXXXXXXX / 2541XXXXXXXX shape Daraja expects.
func NormalizeMsisdn(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", ErrInvalidMsisdn
		}
	}

	digits := b.String()
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "254"):
		digits = digits[3:]
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	case len(digits) == 9:
	default:
		return "", ErrInvalidMsisdn
	}

	if digits[0] != '7' && digits[0] != '1' {
		return "", ErrInvalidMsisdn
	}
	return "254" + digits, nil
}
