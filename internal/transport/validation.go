package transport

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"thinkora-client/pkg/apierror"
)

var registrationFields = []string{"username", "email", "password"}

// "field: reason" as produced by the registration view.
var fieldPrefix = regexp.MustCompile(`^([a-z_]+):\s*(.+)$`)

// parseValidation extracts per-field detail from a 400 registration body.
// Two shapes are understood: DRF's {"field": ["reason", ...]} and the
// flattened {"error": "field: reason"}.
func parseValidation(status int, body []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return apierror.Validation("", nil, status)
	}

	if msg, ok := decodeString(raw["error"]); ok {
		return apierror.Validation(msg, fieldsFromMessage(msg), status)
	}

	fields := make(map[string]string)
	message := ""
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		reason, ok := decodeReason(raw[key])
		if !ok {
			continue
		}
		switch key {
		case "detail", "non_field_errors", "message":
			if message == "" {
				message = reason
			}
		default:
			fields[key] = reason
		}
	}

	if message == "" && len(fields) > 0 {
		first := keys[0]
		for _, k := range keys {
			if _, ok := fields[k]; ok {
				first = k
				break
			}
		}
		message = first + ": " + fields[first]
	}
	return apierror.Validation(message, fields, status)
}

func fieldsFromMessage(msg string) map[string]string {
	if m := fieldPrefix.FindStringSubmatch(strings.TrimSpace(msg)); m != nil {
		return map[string]string{m[1]: m[2]}
	}

	// "Username already taken", "Email already registered"
	lower := strings.ToLower(msg)
	for _, field := range registrationFields {
		if strings.HasPrefix(lower, field) {
			return map[string]string{field: msg}
		}
	}
	return nil
}

func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

func decodeReason(raw json.RawMessage) (string, bool) {
	if s, ok := decodeString(raw); ok {
		return s, true
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return "", false
	}
	return list[0], true
}
