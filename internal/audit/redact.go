package audit

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Redaction masks personally identifiable and secret-bearing values before
// entries leave the service (list responses and CSV exports). Stored entries
// are untouched. Every rule is a fixpoint: redacting already-redacted output
// changes nothing.

const redactedMarker = "[REDACTED]"

// maskedInvalidIP replaces addresses that fail to parse.
const maskedInvalidIP = "invalid"

var (
	emailPattern = regexp.MustCompile(`^([A-Za-z0-9._%+-]+)@([A-Za-z0-9.-]+\.[A-Za-z]{2,})$`)
	// base64-like blobs: long enough that they are almost certainly credentials.
	base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]{32,}={0,2}$`)
	// opaque URL-safe identifiers (API keys, session ids).
	urlSafePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
)

var sensitiveWords = []string{"password", "secret", "token"}

// RedactString applies the value rules in order: email masking, sensitive
// substring, long-token masking.
func RedactString(s string) string {
	if m := emailPattern.FindStringSubmatch(s); m != nil {
		return maskEmail(m[1], m[2])
	}

	lower := strings.ToLower(s)
	for _, w := range sensitiveWords {
		if strings.Contains(lower, w) {
			return redactedMarker
		}
	}

	if base64Pattern.MatchString(s) || urlSafePattern.MatchString(s) {
		return s[:8] + "..." + s[len(s)-4:]
	}
	return s
}

// maskEmail keeps the first and last two characters of local parts longer
// than four characters. The masked form is itself a valid email shape, so a
// second pass reproduces it unchanged.
func maskEmail(local, domain string) string {
	if len(local) <= 4 {
		return local + "@" + domain
	}
	return local[:2] + "..." + local[len(local)-2:] + "@" + domain
}

// MaskIP anonymizes an address: IPv4 gets the last octet zeroed, IPv6 keeps
// the first four groups. Unparseable input maps to a fixed placeholder.
func MaskIP(raw string) string {
	if raw == "" {
		return ""
	}
	// Already-masked forms do not re-parse; recognize them up front.
	if raw == maskedInvalidIP || strings.HasSuffix(raw, "::xxxx") {
		return raw
	}

	ip := net.ParseIP(raw)
	if ip == nil {
		return maskedInvalidIP
	}
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}
	v6 := ip.To16()
	return fmt.Sprintf("%x:%x:%x:%x::xxxx",
		uint16(v6[0])<<8|uint16(v6[1]),
		uint16(v6[2])<<8|uint16(v6[3]),
		uint16(v6[4])<<8|uint16(v6[5]),
		uint16(v6[6])<<8|uint16(v6[7]))
}

// sensitiveKey reports whether a map key demands unconditional redaction.
func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, w := range append(sensitiveWords, "key") {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// redactValue walks JSON-like data, returning a redacted copy.
// The input is never mutated.
func redactValue(v any) any {
	switch t := v.(type) {
	case string:
		return RedactString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if sensitiveKey(k) {
				out[k] = redactedMarker
				continue
			}
			out[k] = redactValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactValue(val)
		}
		return out
	default:
		return v
	}
}

// RedactEntry returns a copy of e safe to show outside the service.
func RedactEntry(e Entry) Entry {
	e.UserEmail = RedactString(e.UserEmail)
	e.IPAddress = MaskIP(e.IPAddress)
	if e.Details != nil {
		e.Details = redactValue(e.Details).(map[string]any)
	}
	return e
}
