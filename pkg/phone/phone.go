package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Phone numbers are stored and compared in E.164 only.
// Lead lookup by phone depends on this normalization being applied at every
// write path and at the SMS webhook boundary.

var ErrInvalid = errors.New("phone: invalid number")

// DefaultRegion is used when a number arrives without a country prefix.
const DefaultRegion = "US"

// NormalizeE164 parses a raw phone string and returns its E.164 form.
// Twilio already sends E.164 on webhooks, but lead ingestion accepts
// human-typed numbers ("(212) 555-0123"), so both paths funnel through here.
func NormalizeE164(raw string) (string, error) {
	return NormalizeE164InRegion(raw, DefaultRegion)
}

// NormalizeE164InRegion is NormalizeE164 with an explicit fallback region.
func NormalizeE164InRegion(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalid)
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// IsE164 reports whether s is already a valid E.164 number.
func IsE164(s string) bool {
	if !strings.HasPrefix(s, "+") {
		return false
	}
	norm, err := NormalizeE164(s)
	return err == nil && norm == s
}
