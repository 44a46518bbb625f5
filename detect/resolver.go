package detect

import (
	"strings"
	"unicode"

	"vigil/core"
)

// fieldAccessor extracts one well-known field from an envelope. The second
// return distinguishes "absent" from "present but zero".
type fieldAccessor func(env *core.EventEnvelope) (interface{}, bool)

// FieldResolver resolves dotted field paths against an envelope. Lookup order:
// the fixed accessor table of well-known normalized-event fields (camelCase and
// snake_case spellings both accepted), then the metadata/enrichment mappings
// for prefixed paths, then metadata key-variant retries. Dynamic lookups are
// backed by this enumerated table only; unknown paths resolve to absent rather
// than attempting open-ended introspection.
type FieldResolver struct {
	known map[string]fieldAccessor
}

// NewFieldResolver builds a resolver with the well-known field table.
func NewFieldResolver() *FieldResolver {
	r := &FieldResolver{known: make(map[string]fieldAccessor)}

	register := func(acc fieldAccessor, names ...string) {
		for _, n := range names {
			r.known[n] = acc
		}
	}

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.SourceIP == "" {
			return nil, false
		}
		return env.Normalized.SourceIP, true
	}, "source_ip", "sourceIp")

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.DestinationIP == "" {
			return nil, false
		}
		return env.Normalized.DestinationIP, true
	}, "destination_ip", "destinationIp")

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.SourcePort == 0 {
			return nil, false
		}
		return env.Normalized.SourcePort, true
	}, "source_port", "sourcePort")

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.DestinationPort == 0 {
			return nil, false
		}
		return env.Normalized.DestinationPort, true
	}, "destination_port", "destinationPort")

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.Protocol == "" {
			return nil, false
		}
		return env.Normalized.Protocol, true
	}, "protocol")

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.EventType == "" {
			return nil, false
		}
		return env.Normalized.EventType, true
	}, "event_type", "eventType")

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.Severity == "" {
			return nil, false
		}
		return env.Normalized.Severity, true
	}, "severity")

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.Timestamp.IsZero() {
			return nil, false
		}
		return env.Normalized.Timestamp, true
	}, "timestamp")

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.Timestamp.IsZero() {
			return nil, false
		}
		return env.Normalized.Timestamp.Hour(), true
	}, "hour_of_day", "hourOfDay")

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.Timestamp.IsZero() {
			return nil, false
		}
		return env.Normalized.Timestamp.Weekday().String(), true
	}, "day_of_week", "dayOfWeek")

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.DeviceID == "" {
			return nil, false
		}
		return env.Normalized.DeviceID, true
	}, "device_id", "deviceId")

	register(func(env *core.EventEnvelope) (interface{}, bool) {
		if env.Normalized == nil || env.Normalized.SensorID == "" {
			return nil, false
		}
		return env.Normalized.SensorID, true
	}, "sensor_id", "sensorId")

	// Metadata aliases: common fields upstream producers put into metadata
	// under inconsistent keys.
	metadataAlias := func(key string) fieldAccessor {
		return func(env *core.EventEnvelope) (interface{}, bool) {
			if env.Normalized == nil {
				return nil, false
			}
			return lookupWithVariants(env.Normalized.Metadata, key)
		}
	}
	register(metadataAlias("failure_reason"), "failure_reason", "failureReason")
	register(metadataAlias("process_name"), "process_name", "processName")
	register(metadataAlias("username"), "username", "user_name", "userName")
	register(metadataAlias("hostname"), "hostname", "host_name", "hostName")

	return r
}

// Resolve returns the value at fieldPath, or (nil, false) when absent.
// Absence is a valid outcome, never an error.
func (r *FieldResolver) Resolve(env *core.EventEnvelope, fieldPath string) (interface{}, bool) {
	if env == nil || fieldPath == "" {
		return nil, false
	}

	parts := strings.Split(fieldPath, ".")
	if len(parts) == 1 {
		return r.resolveSingle(env, fieldPath)
	}

	switch parts[0] {
	case "metadata":
		if env.Normalized == nil {
			return nil, false
		}
		return traverseWithVariants(env.Normalized.Metadata, parts[1:])
	case "enrichment":
		return traverse(env.Enrichment, parts[1:])
	default:
		// Unknown multi-segment paths fall back to the single-segment table
		// with the full original path as a last resort.
		return r.resolveSingle(env, fieldPath)
	}
}

func (r *FieldResolver) resolveSingle(env *core.EventEnvelope, key string) (interface{}, bool) {
	if acc, ok := r.known[key]; ok {
		return acc(env)
	}
	// Not a well-known field: retry against metadata with key variants.
	if env.Normalized != nil {
		return lookupWithVariants(env.Normalized.Metadata, key)
	}
	return nil, false
}

// lookupWithVariants tries the key as given, then generated casing variants,
// because upstream producers are inconsistent about metadata key casing.
func lookupWithVariants(m map[string]interface{}, key string) (interface{}, bool) {
	if len(m) == 0 {
		return nil, false
	}
	for _, variant := range keyVariants(key) {
		if v, ok := m[variant]; ok {
			return v, true
		}
	}
	return nil, false
}

// traverse walks nested maps segment by segment with exact keys.
func traverse(m map[string]interface{}, segments []string) (interface{}, bool) {
	current := m
	for i, seg := range segments {
		v, ok := current[seg]
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return v, true
		}
		next, ok := v.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// traverseWithVariants walks nested maps applying key-variant retries per
// segment (metadata only).
func traverseWithVariants(m map[string]interface{}, segments []string) (interface{}, bool) {
	current := m
	for i, seg := range segments {
		v, ok := lookupWithVariants(current, seg)
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return v, true
		}
		next, ok := v.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// keyVariants generates lookup variants for a key: as given, underscores
// stripped, camelCase, PascalCase and snake_case.
func keyVariants(key string) []string {
	variants := []string{key}
	seen := map[string]bool{key: true}
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	add(strings.ToLower(strings.ReplaceAll(key, "_", "")))
	add(toCamelCase(key))
	add(toPascalCase(key))
	add(toSnakeCase(key))
	return variants
}

func splitWords(key string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, strings.ToLower(current.String()))
			current.Reset()
		}
	}
	for _, r := range key {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}

func toSnakeCase(key string) string {
	return strings.Join(splitWords(key), "_")
}

func toCamelCase(key string) string {
	words := splitWords(key)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(words[0])
	for _, w := range words[1:] {
		b.WriteString(capitalize(w))
	}
	return b.String()
}

func toPascalCase(key string) string {
	var b strings.Builder
	for _, w := range splitWords(key) {
		b.WriteString(capitalize(w))
	}
	return b.String()
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
