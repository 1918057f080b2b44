package application

import "log/slog"

// ResolveLogger guarantees a non-nil logger for use case and worker code.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// LogAttrs prefixes attrs with the module/layer fields every ledger log line
// carries.
func LogAttrs(event string, layer string, attrs ...any) []any {
	fields := make([]any, 0, len(attrs)+6)
	fields = append(fields,
		"event", event,
		"module", "governance/voting-ledger",
		"layer", layer,
	)
	return append(fields, attrs...)
}
