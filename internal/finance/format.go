package finance

import (
	"fmt"
	"strings"
	"time"
)

// FormatBRL renders an amount as Brazilian currency, e.g. "R$ 1.234,56".
func FormatBRL(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := fmt.Sprintf("%.2f", amount)
	intPart := s[:len(s)-3]
	decPart := s[len(s)-2:]

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	out := "R$ " + strings.Join(groups, ".") + "," + decPart
	if neg {
		out = "-" + out
	}
	return out
}

// FormatDateTime renders a timestamp the way replies show it.
func FormatDateTime(t time.Time) string {
	return t.Format("02/01/2006 15:04")
}

// FormatDate renders only the calendar day.
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006")
}
