package ingest

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// nodeField is one normalized dictionary field: {name,title,type}.
type nodeField struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

var boolTokenRe = regexp.MustCompile(`^(?i:1|true|yes|on)$`)

// tryNormalizeNodes detects the recognizable node-dictionary shapes in
// a captured sub-tree and produces the canonical
// {nodes:[{info,dict:{cache,fields},values,time}]} form.
//
// Three extractors are tried per node object, in order: the flat-fields
// form (node.fields.field[]), the node-field-array form (node.field[])
// and the recursive dictionary form (node.dictionary). The first one
// that yields fields wins.
//
// Returns false when the capture does not look like a node dictionary
// at all; the caller then emits it under its original tag name.
func tryNormalizeNodes(v any, timeMs uint64) (map[string]any, bool) {
	candidates := nodeCandidates(v)
	if len(candidates) == 0 {
		return nil, false
	}

	nodes := make([]any, 0, len(candidates))
	for _, n := range candidates {
		fields, values, ok := extractFlatFields(n)
		if !ok {
			fields, values, ok = extractFieldArray(n)
		}
		if !ok {
			fields, values, ok = extractDictionary(n)
		}
		if !ok {
			continue
		}

		node := map[string]any{
			"dict": map[string]any{
				"cache":  cacheToken(fields),
				"fields": fields,
			},
			"time": timeMs,
		}
		if info, ok := asObject(n["info"]); ok {
			node["info"] = info
		}
		if len(values) > 0 {
			node["values"] = values
		}
		nodes = append(nodes, node)
	}

	if len(nodes) == 0 {
		return nil, false
	}

	return map[string]any{"nodes": nodes}, true
}

// nodeCandidates finds the node objects in a capture: either a "node"
// member (single or repeated), or the capture itself when it carries
// one of the recognizable shapes directly.
func nodeCandidates(v any) []map[string]any {
	obj, ok := asObject(v)
	if !ok {
		return nil
	}

	if raw, ok := obj["node"]; ok {
		var out []map[string]any
		for _, item := range asArray(raw) {
			if n, ok := asObject(item); ok {
				out = append(out, n)
			}
		}

		return out
	}

	if _, ok := obj["fields"]; ok {
		return []map[string]any{obj}
	}
	if _, ok := obj["field"]; ok {
		return []map[string]any{obj}
	}
	if _, ok := obj["dictionary"]; ok {
		return []map[string]any{obj}
	}

	return nil
}

// extractFlatFields handles node.fields.field[] with name/@_name,
// optional title, and a type possibly nested under struct.type.
func extractFlatFields(n map[string]any) ([]nodeField, map[string]any, bool) {
	fs, ok := asObject(n["fields"])
	if !ok {
		return nil, nil, false
	}

	var fields []nodeField
	for _, item := range asArray(fs["field"]) {
		f, ok := asObject(item)
		if !ok {
			continue
		}
		name := fieldName(f)
		if name == "" {
			continue
		}

		typ := asString(f["type"])
		if typ == "" {
			if st, ok := asObject(f["struct"]); ok {
				typ = asString(st["type"])
			}
		}

		fields = append(fields, nodeField{
			Name:  name,
			Title: fieldTitle(f, name),
			Type:  normalizeType(typ),
		})
	}

	if len(fields) == 0 {
		return nil, nil, false
	}

	return fields, nil, true
}

// extractFieldArray handles node.field[] with @_name/type attributes
// and optional inline value/#text initial values.
func extractFieldArray(n map[string]any) ([]nodeField, map[string]any, bool) {
	var fields []nodeField
	values := make(map[string]any)

	for _, item := range asArray(n["field"]) {
		f, ok := asObject(item)
		if !ok {
			continue
		}
		name := fieldName(f)
		if name == "" {
			continue
		}

		typ := asString(f["@_type"])
		if typ == "" {
			typ = asString(f["type"])
		}
		normType := normalizeType(typ)

		fields = append(fields, nodeField{
			Name:  name,
			Title: fieldTitle(f, name),
			Type:  normType,
		})

		raw := f["@_value"]
		if raw == nil {
			raw = f["value"]
		}
		if raw == nil {
			raw = f["#text"]
		}
		if raw != nil {
			values[name] = initialValue(normType, asString(raw))
		}
	}

	if len(fields) == 0 {
		return nil, nil, false
	}
	if len(values) == 0 {
		values = nil
	}

	return fields, values, true
}

// extractDictionary handles the recursive dictionary form: any subtree
// object carrying both a name and a type becomes a field; the
// info/hardware/version sub-objects are skipped.
func extractDictionary(n map[string]any) ([]nodeField, map[string]any, bool) {
	dict, ok := n["dictionary"]
	if !ok {
		return nil, nil, false
	}

	var fields []nodeField
	walkDictionary(dict, &fields)
	if len(fields) == 0 {
		return nil, nil, false
	}

	return fields, nil, true
}

func walkDictionary(v any, fields *[]nodeField) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			walkDictionary(item, fields)
		}
	case map[string]any:
		name := fieldName(t)
		typ := asString(t["@_type"])
		if typ == "" {
			typ = asString(t["type"])
		}
		if name != "" && typ != "" {
			*fields = append(*fields, nodeField{
				Name:  name,
				Title: fieldTitle(t, name),
				Type:  normalizeType(typ),
			})
		}
		// Sorted keys keep the collected field order (and thus the cache
		// token) stable across runs.
		keys := make([]string, 0, len(t))
		for key := range t {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			switch key {
			case "info", "hardware", "version":
				continue
			}
			switch child := t[key].(type) {
			case map[string]any, []any:
				walkDictionary(child, fields)
			}
		}
	}
}

func fieldName(f map[string]any) string {
	if s := asString(f["name"]); s != "" {
		return s
	}

	return asString(f["@_name"])
}

func fieldTitle(f map[string]any, fallback string) string {
	if s := asString(f["title"]); s != "" {
		return s
	}
	if s := asString(f["@_title"]); s != "" {
		return s
	}

	return fallback
}

// normalizeType lowercases a dictionary type; option and enum types
// collapse to string.
func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "option" || t == "enum" {
		return "string"
	}

	return t
}

// initialValue parses a field's inline initial value according to its
// normalized type: numeric parse with a zero fallback for integer and
// float types, a token match for booleans, the trimmed string otherwise.
func initialValue(normType, raw string) any {
	raw = strings.TrimSpace(raw)
	switch {
	case isNumericType(normType):
		if v, ok := parseFinite(raw); ok {
			return v
		}
		return float64(0)
	case isBoolType(normType):
		return boolTokenRe.MatchString(raw)
	default:
		return raw
	}
}

func isNumericType(t string) bool {
	switch t {
	case "float", "real", "double", "byte", "word", "dword":
		return true
	}

	return strings.Contains(t, "int")
}

func isBoolType(t string) bool {
	return t == "bool" || t == "boolean" || t == "bit"
}

// cacheToken derives the dictionary cache tag: the first 8 hex
// characters, uppercased, of SHA-1 over the JSON field list.
func cacheToken(fields []nodeField) string {
	payload, err := json.Marshal(fields)
	if err != nil {
		return ""
	}

	sum := sha1.Sum(payload)

	return strings.ToUpper(fmt.Sprintf("%x", sum[:4]))
}
