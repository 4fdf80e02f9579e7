package httpapi

import (
	"fmt"
	"net/url"
	"strings"
)

// paytoIBAN extracts the IBAN from a "payto://iban/..." URI, accepting both
// the "payto://iban/IBAN" and "payto://iban/BIC/IBAN" forms RFC 8905 allows.
func paytoIBAN(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("malformed payto uri: %w", err)
	}
	if u.Scheme != "payto" || u.Host != "iban" {
		return "", fmt.Errorf("not an iban payto uri: %s", raw)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch len(segments) {
	case 1:
		if segments[0] == "" {
			return "", fmt.Errorf("payto uri missing iban: %s", raw)
		}
		return segments[0], nil
	case 2:
		return segments[1], nil
	default:
		return "", fmt.Errorf("unexpected payto uri shape: %s", raw)
	}
}

// ibanPayto renders the canonical payto URI for a BIC/IBAN pair.
func ibanPayto(bic, iban string) string {
	return fmt.Sprintf("payto://iban/%s/%s", bic, iban)
}
