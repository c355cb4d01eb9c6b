package features

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Cleaning helpers for raw loan-ledger values, shaped the way the training
// pipeline cleaned them ("10.5%", " 36 months", "$1,000").

var termDigits = regexp.MustCompile(`\d+`)

// ParsePercent parses "10.5%" or "10.5" into 10.5.
func ParsePercent(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	return strconv.ParseFloat(s, 64)
}

// ParseMoney parses "$1,000.50" into 1000.5.
func ParseMoney(s string) (float64, error) {
	s = strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(s))
	return strconv.ParseFloat(s, 64)
}

// ParseTermMonths extracts the month count from " 36 months".
func ParseTermMonths(s string) (float64, error) {
	m := termDigits.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("no month count in term %q", s)
	}
	return strconv.ParseFloat(m, 64)
}

// Loan statuses that count as a default outcome.
var defaultStatuses = map[string]bool{
	"Charged Off": true,
	"Default":     true,
	"Does not meet the credit policy. Status:Charged Off": true,
}

var finalStatuses = map[string]bool{
	"Fully Paid":  true,
	"Charged Off": true,
	"Default":     true,
	"Does not meet the credit policy. Status:Fully Paid":  true,
	"Does not meet the credit policy. Status:Charged Off": true,
}

// DefaultLabel maps a loan status to the binary target. ok is false for
// statuses that are not final (current, late, in grace period).
func DefaultLabel(status string) (isDefault bool, ok bool) {
	status = strings.TrimSpace(status)
	if !finalStatuses[status] {
		return false, false
	}
	return defaultStatuses[status], true
}
