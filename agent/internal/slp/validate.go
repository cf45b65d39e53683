package slp

import (
	"encoding/json"
	"errors"
	"html"
	"regexp"
	"strings"
)

// MaxJSONSize bounds the raw status JSON payload, applied before any
// parsing is attempted. A server large enough to need more than this is
// indistinguishable from one trying to exhaust agent memory.
const MaxJSONSize = 100 * 1024

// MaxJSONDepth bounds object/array nesting, applied during the same
// pre-parse pass as MaxJSONSize. Deeply nested JSON is a classic decoder
// stack-exhaustion vector and has no legitimate use in a status response.
const MaxJSONDepth = 32

// MaxFaviconSize bounds the favicon data URI after validation.
const MaxFaviconSize = 1 << 20

// MaxSampleLen bounds the players.sample array.
const MaxSampleLen = 1000

// MaxSampleNameLen bounds each players.sample[].name.
const MaxSampleNameLen = 100

var (
	// ErrJSONTooLarge is returned when the raw payload exceeds MaxJSONSize.
	ErrJSONTooLarge = errors.New("slp: status JSON exceeds maximum size")
	// ErrJSONTooDeep is returned when nesting exceeds MaxJSONDepth.
	ErrJSONTooDeep = errors.New("slp: status JSON nesting exceeds maximum depth")
	// ErrJSONNotObject is returned when the payload does not decode as a
	// JSON object, including malformed or truncated JSON.
	ErrJSONNotObject = errors.New("slp: status JSON is not an object")
)

// uuidPattern matches the canonical 8-4-4-4-12 hyphenated UUID shape,
// accepting both dashed and (Mojang's historically undashed) forms.
var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12}$`)

// ValidateStatusJSON applies the pre-parse size/depth caps, decodes the
// payload, coerces and bounds every field a scan bundle persists, and
// HTML-escapes and NUL-strips every string leaf before returning a
// sanitized, re-marshaled document. A malformed or oversize payload is
// rejected outright rather than partially salvaged.
func ValidateStatusJSON(raw []byte) (json.RawMessage, error) {
	if len(raw) > MaxJSONSize {
		return nil, ErrJSONTooLarge
	}
	if err := checkDepth(raw, MaxJSONDepth); err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, ErrJSONNotObject
	}

	sanitizeValue(doc)

	if v, ok := doc["version"].(map[string]interface{}); ok {
		if proto, ok := v["protocol"]; ok {
			v["protocol"] = clampInt(proto, 0, 9999)
		}
	}

	if p, ok := doc["players"].(map[string]interface{}); ok {
		if online, ok := p["online"]; ok {
			p["online"] = clampInt(online, 0, 1_000_000)
		}
		if max, ok := p["max"]; ok {
			p["max"] = clampInt(max, 0, 1_000_000)
		}
		if sample, ok := p["sample"].([]interface{}); ok {
			p["sample"] = sanitizeSample(sample)
		}
	}

	if favicon, ok := doc["favicon"].(string); ok {
		if len(favicon) > MaxFaviconSize {
			delete(doc, "favicon")
		} else {
			doc["favicon"] = favicon
		}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// sanitizeSample bounds the player-sample array length and, per entry,
// truncates oversize names and drops entries whose id isn't UUID-shaped —
// a malformed sample entry is excluded, not allowed to fail the whole
// response.
func sanitizeSample(sample []interface{}) []interface{} {
	if len(sample) > MaxSampleLen {
		sample = sample[:MaxSampleLen]
	}
	out := make([]interface{}, 0, len(sample))
	for _, entry := range sample {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		if !uuidPattern.MatchString(id) {
			continue
		}
		if name, ok := m["name"].(string); ok && len(name) > MaxSampleNameLen {
			m["name"] = name[:MaxSampleNameLen]
		}
		out = append(out, m)
	}
	return out
}

// sanitizeValue walks a decoded JSON value in place, HTML-escaping and
// NUL-stripping every string leaf it finds. description is passed through
// this same walk rather than given special treatment: it is opaque chat
// component JSON and the leaves within it are exactly the strings that will
// eventually be rendered.
func sanitizeValue(v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			if s, ok := child.(string); ok {
				val[k] = sanitizeString(s)
			} else {
				sanitizeValue(child)
			}
		}
	case []interface{}:
		for i, child := range val {
			if s, ok := child.(string); ok {
				val[i] = sanitizeString(s)
			} else {
				sanitizeValue(child)
			}
		}
	}
}

func sanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return html.EscapeString(s)
}

// clampInt coerces a decoded JSON number (always float64 via
// encoding/json's default map[string]interface{} decoding) into the
// inclusive [lo, hi] range. A non-numeric value collapses to lo.
func clampInt(v interface{}, lo, hi int) int {
	f, ok := v.(float64)
	if !ok {
		return lo
	}
	n := int(f)
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// checkDepth performs a cheap single-pass scan of raw JSON bytes, counting
// bracket/brace nesting without fully parsing, so an attacker can't force a
// deep json.Unmarshal stack before this check has a chance to reject it.
// String contents are skipped so braces inside a JSON string value don't
// throw off the count.
func checkDepth(raw []byte, maxDepth int) error {
	depth := 0
	inString := false
	escaped := false
	for _, b := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > maxDepth {
				return ErrJSONTooDeep
			}
		case '}', ']':
			depth--
		}
	}
	return nil
}
