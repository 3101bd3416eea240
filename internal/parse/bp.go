package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	bpRe   = regexp.MustCompile(`^\s*(\d{2,3})\s*/\s*(\d{2,3})\s*(?:mmHg)?\s*$`)
	doseRe = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)(?:\s*-\s*(\d+(?:\.\d+)?))?\s*mg\s*$`)
)

// ParseBP parses the compact "systolic/diastolic" notation, e.g. "170/100" or "150 / 95 mmHg".
func ParseBP(raw string) (systolic, diastolic int, err error) {
	m := bpRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, 0, fmt.Errorf("unable to parse blood pressure: %q", raw)
	}
	// The regex guarantees digits, so Atoi cannot fail.
	systolic, _ = strconv.Atoi(m[1])
	diastolic, _ = strconv.Atoi(m[2])
	if diastolic >= systolic {
		return 0, 0, fmt.Errorf("diastolic must be lower than systolic: %q", raw)
	}
	return systolic, diastolic, nil
}

// DoseAmount returns the amount in mg of a dose string. Ranges like "5-10mg" yield the
// upper bound.
func DoseAmount(raw string) (float64, error) {
	m := doseRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("unable to parse dose: %q", raw)
	}
	amount := m[1]
	if m[2] != "" {
		amount = m[2]
	}
	return strconv.ParseFloat(amount, 64)
}
