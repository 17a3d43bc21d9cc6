package domain

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
)

// Redacted replaces the credential wherever it would otherwise be rendered.
const Redacted = "[REDACTED]"

// Credential is the single secret used to authenticate outbound calls.
// It is immutable once built. Every rendering path (fmt, slog, JSON)
// prints a placeholder; only Reveal exposes the raw value.
type Credential struct {
	value string
}

// NewCredential wraps a raw secret. An empty value is allowed and means "not configured".
func NewCredential(value string) Credential {
	return Credential{value: value}
}

// Reveal returns the raw secret. Callers must only write it to outbound
// headers or subprocess environments.
func (c Credential) Reveal() string {
	return c.value
}

// IsSet reports whether a non-empty secret was configured.
func (c Credential) IsSet() bool {
	return c.value != ""
}

// Redact removes every occurrence of the secret from s, including the forms
// it takes inside a JSON string.
func (c Credential) Redact(s string) string {
	if c.value == "" {
		return s
	}
	s = strings.ReplaceAll(s, c.value, Redacted)
	for _, form := range c.escapedForms() {
		s = strings.ReplaceAll(s, form, Redacted)
	}
	return s
}

// escapedForms returns the secret as encoding/json writes it, with and
// without HTML escaping, when that differs from the raw value.
func (c Credential) escapedForms() []string {
	var forms []string
	for _, escapeHTML := range []bool{true, false} {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(escapeHTML)
		if err := enc.Encode(c.value); err != nil {
			continue
		}
		form := strings.TrimSuffix(strings.TrimSpace(buf.String()), `"`)
		form = strings.TrimPrefix(form, `"`)
		if form != c.value && (len(forms) == 0 || forms[0] != form) {
			forms = append(forms, form)
		}
	}
	return forms
}

func (c Credential) String() string {
	if c.value == "" {
		return ""
	}
	return Redacted
}

// GoString keeps %#v from leaking the value.
func (c Credential) GoString() string {
	return "domain.Credential{" + c.String() + "}"
}

// LogValue implements slog.LogValuer.
func (c Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// MarshalJSON implements json.Marshaler.
func (c Credential) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}
