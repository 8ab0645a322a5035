package gatewayhttp

import (
	"encoding/json"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	panLikeRe = regexp.MustCompile(`\d{12,19}`)

	sensitiveKeyParts = []string{
		"card_number", "cardnumber", "cvv", "cvc", "security_code",
		"token", "secret", "password", "authorization", "access",
		"document", "cpf", "cnpj", "email", "phone",
	}
	sensitiveExactKeys = map[string]struct{}{
		"number":  {},
		"card_id": {},
	}
)

// Sanitize masks card numbers, tokens, document numbers and credentials in a JSON
// payload. Non-JSON bodies only get digit-run masking.
func Sanitize(raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return []byte(maskDigits(string(raw)))
	}
	clean, err := json.Marshal(sanitizeValue("", payload))
	if err != nil {
		return []byte(redacted)
	}
	return clean
}

// SanitizeMap is Sanitize for already decoded payloads.
func SanitizeMap(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out, _ := sanitizeValue("", payload).(map[string]any)
	return out
}

// SanitizeText masks card-number-like digit runs in free text such as error messages.
func SanitizeText(s string) string {
	return maskDigits(s)
}

func sanitizeValue(key string, value any) any {
	if key != "" && isSensitiveKey(key) {
		return redacted
	}
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = sanitizeValue(k, inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = sanitizeValue("", inner)
		}
		return out
	case string:
		return maskDigits(v)
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := sensitiveExactKeys[lower]; ok {
		return true
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func redactField(key string, value any) any {
	if isSensitiveKey(key) {
		return redacted
	}
	if s, ok := value.(string); ok {
		return maskDigits(s)
	}
	return value
}

func maskDigits(s string) string {
	return panLikeRe.ReplaceAllStringFunc(s, func(match string) string {
		return strings.Repeat("*", len(match)-4) + match[len(match)-4:]
	})
}
