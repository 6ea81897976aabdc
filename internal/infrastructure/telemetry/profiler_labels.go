package telemetry

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelOperation = "operation"
	ProfilingLabelTenantID  = "tenant_id"
)

// MaxLabelValueLength caps label values; longer values are truncated
const MaxLabelValueLength = 128

// perEntityLabels are keys whose values are unique per receivable, payment
// or request. They would give every sample its own series and are dropped.
var perEntityLabels = map[string]bool{
	"receivable_id":   true,
	"payment_id":      true,
	"idempotency_key": true,
	"document_number": true,
	"user_id":         true,
	"request_id":      true,
	"trace_id":        true,
	"span_id":         true,
}

// WithProfilingLabels runs fn with labels attached to the CPU and
// allocation samples it produces. Labels are read before fn starts, so the
// caller may reuse the map.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := labelPairs(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// OperationLabels names an application operation, plus any extra labels
func OperationLabels(operation string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	maps.Copy(labels, extra)
	labels[ProfilingLabelOperation] = operation
	return labels
}

// labelPairs flattens labels into key/value pairs sorted by normalized key,
// dropping empty and per-entity entries
func labelPairs(labels map[string]string) []string {
	clean := make(map[string]string, len(labels))
	for key, value := range labels {
		key = labelKey(key)
		if key == "" || value == "" || perEntityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		clean[key] = value
	}
	pairs := make([]string, 0, len(clean)*2)
	for _, key := range slices.Sorted(maps.Keys(clean)) {
		pairs = append(pairs, key, clean[key])
	}
	return pairs
}

// labelKey lowercases key into snake_case and strips anything else
func labelKey(key string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(key) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			b.WriteRune(c)
		case c == ' ', c == '-':
			b.WriteByte('_')
		}
	}
	return b.String()
}
