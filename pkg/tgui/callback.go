package tgui

import (
	"strings"
)

// Data formats inline callback data as "prefix:key:payload".
// Payload is kept as-is (no escaping).
func Data(prefix, key, payload string) string {
	prefix = strings.TrimSpace(prefix)
	key = strings.TrimSpace(key)
	if payload == "" {
		return prefix + ":" + key
	}
	return prefix + ":" + key + ":" + payload
}

// CheckedData is Data plus the Telegram size check.
func CheckedData(prefix, key, payload string) (string, error) {
	s := Data(prefix, key, payload)
	if len(s) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return s, nil
}

// Split is the inverse of Data. ok is false when data has fewer than two parts.
// The payload may itself contain ':'.
func Split(data string) (prefix, key, payload string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 {
		return "", "", "", false
	}
	prefix, key = parts[0], parts[1]
	if len(parts) == 3 {
		payload = parts[2]
	}
	return prefix, key, payload, true
}
