// pkg/parse/output.go
//
// One place that understands the output shapes the engines produce. The
// query subcommand usually prints a bare JSON array of row objects, some
// subcommands wrap rows in an object, and a few emit newline-delimited JSON
// fragments. Everything else is raw text.

package parse

import (
	"encoding/json"
	"strings"
)

// Kind tags the shape a tool's output resolved to.
type Kind int

const (
	// KindRows - an ordered sequence of row objects
	KindRows Kind = iota
	// KindObject - a single JSON object
	KindObject
	// KindRaw - unparseable as JSON, kept as text
	KindRaw
)

// Payload is the tagged union of tool output shapes.
type Payload struct {
	Kind   Kind
	Rows   []map[string]interface{}
	Object map[string]interface{}
	Raw    string
}

// ToolOutput parses tool output defensively: bare array, object with a
// "rows" field, other single object, newline-delimited JSON fragments, or
// raw text. It never fails — unrecognized input becomes KindRaw.
func ToolOutput(output string) Payload {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return Payload{Kind: KindRaw, Raw: ""}
	}

	// Bare array of rows.
	var rows []map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &rows); err == nil {
		return Payload{Kind: KindRows, Rows: rows}
	}

	// Single object, possibly wrapping rows.
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		if rows, ok := rowsField(obj); ok {
			return Payload{Kind: KindRows, Rows: rows}
		}
		return Payload{Kind: KindObject, Object: obj}
	}

	// Newline-delimited JSON fragments.
	if rows, ok := parseNDJSON(trimmed); ok {
		return Payload{Kind: KindRows, Rows: rows}
	}

	return Payload{Kind: KindRaw, Raw: output}
}

// RowsOf normalizes any payload to an ordered row slice: rows pass through,
// a single object becomes a one-row slice, raw text yields nil.
func (p Payload) RowsOf() []map[string]interface{} {
	switch p.Kind {
	case KindRows:
		return p.Rows
	case KindObject:
		return []map[string]interface{}{p.Object}
	default:
		return nil
	}
}

func rowsField(obj map[string]interface{}) ([]map[string]interface{}, bool) {
	raw, ok := obj["rows"]
	if !ok {
		return nil, false
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, false
	}
	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		row, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		rows = append(rows, row)
	}
	return rows, true
}

func parseNDJSON(input string) ([]map[string]interface{}, bool) {
	lines := strings.Split(input, "\n")
	var rows []map[string]interface{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var row map[string]interface{}
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, false
		}
		rows = append(rows, row)
	}
	return rows, len(rows) > 0
}

// ExtractJSONMap parses input as a single JSON object.
func ExtractJSONMap(input string) (map[string]interface{}, error) {
	m := make(map[string]interface{})
	err := json.Unmarshal([]byte(input), &m)
	return m, err
}
