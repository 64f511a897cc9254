package vectorstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"lerian-vectorstore/internal/logging"
)

// FlatStrategy names one of the per-field transform strategies a
// PayloadAdapter can apply when projecting a nested Payload down to the
// flat, primitive-only metadata some backends require.
type FlatStrategy int

const (
	// StrategyPreserve passes a primitive through unchanged.
	StrategyPreserve FlatStrategy = iota
	// StrategyCommaSeparated turns a homogeneous scalar sequence into a
	// delimited string.
	StrategyCommaSeparated
	// StrategyDotFlatten turns a nested mapping into dot-joined keys.
	StrategyDotFlatten
	// StrategyJSONString serializes complex/mixed structures as a JSON string.
	StrategyJSONString
	// StrategyBooleanFlags turns a set into many prefix_value=true entries.
	StrategyBooleanFlags
	// StrategyCustom delegates to a caller-supplied serialize/deserialize pair.
	StrategyCustom
)

// FieldCodec is the caller-supplied pair used by StrategyCustom.
type FieldCodec struct {
	Serialize   func(interface{}) (map[string]interface{}, error)
	Deserialize func(map[string]interface{}) (interface{}, error)
}

// AdapterConfig configures a PayloadAdapter. It is immutable after
// construction except via Reconfigure, which produces a fresh, independent
// adapter.
type AdapterConfig struct {
	// FieldStrategies maps a top-level payload key to the strategy used for
	// it. Fields absent from this map use Default.
	FieldStrategies map[string]FlatStrategy
	// Default is the strategy applied to fields with no explicit entry.
	Default FlatStrategy
	// MaxFlattenDepth bounds dot-notation flattening recursion.
	MaxFlattenDepth int
	// DotSeparator joins flattened key segments (default ".").
	DotSeparator string
	// CustomCodecs supplies per-field codecs for StrategyCustom fields.
	CustomCodecs map[string]FieldCodec
}

// DefaultAdapterConfig returns sane defaults: every field uses Preserve,
// so primitives pass through unchanged and a sequence or nested map, which
// Preserve rejects, is stored as a JSON string by Serialize's fallback.
// Flatten depth 4 and separator "." apply only to fields configured with
// the dot-flatten strategy.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		FieldStrategies: map[string]FlatStrategy{},
		Default:         StrategyPreserve,
		MaxFlattenDepth: 4,
		DotSeparator:    ".",
	}
}

// PayloadAdapter performs the bidirectional transform between nested
// Payloads and the flat map[string]interface{} of primitives (string,
// float64, bool) that flat-metadata backends require.
type PayloadAdapter struct {
	cfg    AdapterConfig
	logger logging.Logger
}

// NewPayloadAdapter constructs an adapter with the given configuration.
func NewPayloadAdapter(cfg AdapterConfig) *PayloadAdapter {
	if cfg.DotSeparator == "" {
		cfg.DotSeparator = "."
	}
	if cfg.MaxFlattenDepth <= 0 {
		cfg.MaxFlattenDepth = 4
	}
	return &PayloadAdapter{cfg: cfg, logger: logging.WithComponent("payload-adapter")}
}

// Reconfigure returns a new adapter with updated configuration; the
// receiver is left untouched (the adapter's configuration is immutable
// except through this explicit method).
func (a *PayloadAdapter) Reconfigure(cfg AdapterConfig) *PayloadAdapter {
	return NewPayloadAdapter(cfg)
}

func (a *PayloadAdapter) strategyFor(key string) FlatStrategy {
	if s, ok := a.cfg.FieldStrategies[key]; ok {
		return s
	}
	return a.cfg.Default
}

// Serialize projects p down to a flat map of primitives. A failure
// serializing one field is logged and that field falls back to a JSON
// string rather than poisoning the rest of the payload.
func (a *PayloadAdapter) Serialize(p Payload) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for key, val := range p {
		flat, err := a.serializeField(key, val)
		if err != nil {
			a.logger.Warn("payload field serialization failed, falling back to JSON string", "field", key, "error", err)
			if b, jerr := marshalTolerateCycles(val); jerr == nil {
				out[key] = string(b)
			}
			continue
		}
		for k, v := range flat {
			out[k] = v
		}
	}
	return out
}

func (a *PayloadAdapter) serializeField(key string, val interface{}) (map[string]interface{}, error) {
	if val == nil {
		return nil, nil
	}
	strategy := a.strategyFor(key)

	switch strategy {
	case StrategyPreserve:
		if !isPrimitive(val) {
			return nil, fmt.Errorf("field %q is not primitive, cannot preserve", key)
		}
		return map[string]interface{}{key: val}, nil

	case StrategyCommaSeparated:
		seq, ok := val.([]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q is not a sequence", key)
		}
		if len(seq) == 0 {
			return map[string]interface{}{key: ""}, nil
		}
		parts := make([]string, len(seq))
		for i, e := range seq {
			parts[i] = fmt.Sprintf("%v", e)
		}
		return map[string]interface{}{key: strings.Join(parts, ",")}, nil

	case StrategyDotFlatten:
		m, ok := val.(map[string]interface{})
		if !ok {
			if pm, ok2 := val.(Payload); ok2 {
				m = map[string]interface{}(pm)
			} else {
				return nil, fmt.Errorf("field %q is not a mapping", key)
			}
		}
		out := map[string]interface{}{}
		flattenInto(key, m, a.cfg.DotSeparator, a.cfg.MaxFlattenDepth, out)
		return out, nil

	case StrategyJSONString:
		b, err := marshalTolerateCycles(val)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{key: string(b)}, nil

	case StrategyBooleanFlags:
		seq, ok := val.([]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q is not a set", key)
		}
		out := map[string]interface{}{}
		for _, e := range seq {
			out[fmt.Sprintf("%s_%v", key, e)] = true
		}
		return out, nil

	case StrategyCustom:
		codec, ok := a.cfg.CustomCodecs[key]
		if !ok || codec.Serialize == nil {
			return nil, fmt.Errorf("no custom codec registered for field %q", key)
		}
		return codec.Serialize(val)

	default:
		return nil, fmt.Errorf("unknown strategy for field %q", key)
	}
}

// Deserialize reconstructs a Payload from a backend's flat primitive map,
// reversing Serialize per-field strategy. Parse failures fall back to the
// raw flat value rather than dropping the field.
func (a *PayloadAdapter) Deserialize(flat map[string]interface{}) Payload {
	out := Payload{}
	consumed := map[string]bool{}

	// Reassemble dot-flattened and boolean-flag groups first.
	groups := map[string]map[string]interface{}{}
	for key := range a.cfg.FieldStrategies {
		switch a.cfg.FieldStrategies[key] {
		case StrategyDotFlatten:
			prefix := key + a.cfg.DotSeparator
			sub := map[string]interface{}{}
			for fk, fv := range flat {
				if strings.HasPrefix(fk, prefix) {
					sub[strings.TrimPrefix(fk, prefix)] = fv
					consumed[fk] = true
				}
			}
			if len(sub) > 0 {
				out[key] = unflatten(sub, a.cfg.DotSeparator)
			}
		case StrategyBooleanFlags:
			prefix := key + "_"
			var members []interface{}
			for fk, fv := range flat {
				if strings.HasPrefix(fk, prefix) && fv == true {
					members = append(members, stripPrefixValue(fk, prefix))
					consumed[fk] = true
				}
			}
			if members != nil {
				out[key] = members
			}
		case StrategyCustom:
			codec, ok := a.cfg.CustomCodecs[key]
			if ok && codec.Deserialize != nil {
				if v, err := codec.Deserialize(flat); err == nil {
					out[key] = v
					groups[key] = nil
				} else {
					a.logger.Warn("custom field deserialization failed", "field", key, "error", err)
				}
			}
		}
	}

	for key, val := range flat {
		if consumed[key] {
			continue
		}
		strategy := a.strategyFor(key)
		switch strategy {
		case StrategyCommaSeparated:
			s, ok := val.(string)
			if !ok {
				out[key] = val
				continue
			}
			if s == "" {
				out[key] = []interface{}{}
				continue
			}
			parts := strings.Split(s, ",")
			seq := make([]interface{}, len(parts))
			for i, p := range parts {
				if n, err := strconv.ParseFloat(p, 64); err == nil {
					seq[i] = n
				} else {
					seq[i] = p
				}
			}
			out[key] = seq

		case StrategyJSONString:
			s, ok := val.(string)
			if !ok {
				out[key] = val
				continue
			}
			var decoded interface{}
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				out[key] = s
				continue
			}
			out[key] = decoded

		case StrategyDotFlatten, StrategyBooleanFlags, StrategyCustom:
			// handled in the groups pass above; nothing left over to assign.

		default:
			out[key] = val
		}
	}

	return out
}

func isPrimitive(v interface{}) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int64:
		return true
	default:
		return false
	}
}

func flattenInto(prefix string, m map[string]interface{}, sep string, depth int, out map[string]interface{}) {
	if depth <= 0 {
		b, _ := marshalTolerateCycles(m)
		out[prefix] = string(b)
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m[k]
		full := prefix + sep + k
		switch sub := v.(type) {
		case map[string]interface{}:
			flattenInto(full, sub, sep, depth-1, out)
		case Payload:
			flattenInto(full, map[string]interface{}(sub), sep, depth-1, out)
		default:
			out[full] = v
		}
	}
}

func unflatten(flat map[string]interface{}, sep string) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range flat {
		parts := strings.Split(k, sep)
		cur := out
		for i, p := range parts {
			if i == len(parts)-1 {
				cur[p] = v
				continue
			}
			next, ok := cur[p].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				cur[p] = next
			}
			cur = next
		}
	}
	return out
}

func stripPrefixValue(key, prefix string) interface{} {
	raw := strings.TrimPrefix(key, prefix)
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

// marshalTolerateCycles serializes v as JSON, breaking cyclic map/slice
// references rather than recursing forever: any container already being
// visited on the current path is replaced with a marker string.
func marshalTolerateCycles(v interface{}) ([]byte, error) {
	visiting := map[uintptr]bool{}
	sanitized := sanitizeCycles(v, visiting)
	return json.Marshal(sanitized)
}

func sanitizeCycles(v interface{}, visiting map[uintptr]bool) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		ptr := reflect.ValueOf(val).Pointer()
		if visiting[ptr] {
			return "<cycle>"
		}
		visiting[ptr] = true
		out := map[string]interface{}{}
		for k, e := range val {
			out[k] = sanitizeCycles(e, visiting)
		}
		delete(visiting, ptr)
		return out
	case Payload:
		return sanitizeCycles(map[string]interface{}(val), visiting)
	case []interface{}:
		ptr := reflect.ValueOf(val).Pointer()
		if visiting[ptr] {
			return "<cycle>"
		}
		visiting[ptr] = true
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = sanitizeCycles(e, visiting)
		}
		delete(visiting, ptr)
		return out
	default:
		return v
	}
}
