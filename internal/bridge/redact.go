package bridge

import (
	"encoding/json"
	"regexp"
)

var (
	reBearer      = regexp.MustCompile(`(?i)\b(bearer|basic)\s+[A-Za-z0-9._\-+/=]{8,}`)
	reKeyValue    = regexp.MustCompile(`(?i)((?:api[_-]?key|secret|token|password)"?\s*[:=]\s*"?)[A-Za-z0-9._\-+/=]{6,}`)
	reSkPrefix    = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{16,}\b`)
	reJWT         = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\b`)
	reURLUserinfo = regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`)
)

const redactedPlaceholder = "[REDACTED]"

// Redact masks secret-looking substrings in raw before it is written to a
// session ledger. Matching is best-effort pattern scanning, not a secrets
// scanner — it must never abort the hot path on a miss.
func Redact(raw []byte) []byte {
	out := raw
	out = reBearer.ReplaceAll(out, []byte(redactedPlaceholder))
	out = reKeyValue.ReplaceAll(out, []byte("${1}"+redactedPlaceholder))
	out = reSkPrefix.ReplaceAll(out, []byte(redactedPlaceholder))
	out = reJWT.ReplaceAll(out, []byte(redactedPlaceholder))
	out = reURLUserinfo.ReplaceAll(out, []byte("://"+redactedPlaceholder+"@"))
	return out
}

// RedactJSON is Redact applied to the bytes of a json.RawMessage as they
// are, without re-encoding them; used when the caller holds a
// json.RawMessage rather than raw bytes.
func RedactJSON(raw json.RawMessage) json.RawMessage {
	return json.RawMessage(Redact(raw))
}
