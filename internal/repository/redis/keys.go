package redis

import (
	"fmt"
	"strings"
)

// keyspace namespaces Redis keys under a configurable prefix.
type keyspace string

func newKeyspace(prefix, fallback string) keyspace {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = fallback
	}
	return keyspace(trimmed)
}

// key joins the prefix with the supplied parts, returning "" when any part is blank.
func (k keyspace) key(parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, string(k))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			return ""
		}
		segments = append(segments, trimmed)
	}
	return strings.Join(segments, ":")
}

func requireKey(key, field string) error {
	if key == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	return nil
}
