package log

// DefaultRedactedFields lists field names that carry index credentials and
// must never appear in log output.
var DefaultRedactedFields = []string{"password", "token", "secret", "authorization"}

// RedactionHook redacts sensitive values from log entries.
type RedactionHook struct {
	fields []string
}

// Levels returns the levels this hook should be called for.
func (h *RedactionHook) Levels() []Level {
	return []Level{DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel}
}

// Fire executes the hook's logic for a log entry.
func (h *RedactionHook) Fire(entry *Entry) error {
	// Iterate through fields that should be redacted
	for _, field := range h.fields {
		// Check if the field exists in the entry
		if _, ok := entry.Fields[field]; ok {
			entry.Fields[field] = "[REDACTED]"
		}
	}
	return nil
}

// NewRedactionHook creates a new redaction hook.
func NewRedactionHook(fields []string) *RedactionHook {
	if len(fields) == 0 {
		fields = DefaultRedactedFields
	}
	return &RedactionHook{
		fields: fields,
	}
}
