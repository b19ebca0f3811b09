// Package frenet rewrites the generic "frenet" shipping method id of WooCommerce
// order payloads into the carrier-specific FRENET_ID stored in the shipping line's
// meta data, so downstream ERPs can map the line to the right carrier.
//
// Both entry points work on raw JSON bodies and never fail: anything that does not
// have the expected shape is passed through unchanged.
package frenet

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
)

const (
	// MethodID is the generic method id WooCommerce assigns to every Frenet rate.
	MethodID = "frenet"
	// MetaKey is the shipping line meta key that holds the carrier-specific id.
	MetaKey = "FRENET_ID"
	// LogSource tags log records emitted by the webhook patcher.
	LogSource = "frenet-tiny-fix"
)

// Substitution describes one shipping line whose method id was replaced.
type Substitution struct {
	Line       int
	InstanceID json.RawMessage
	From       string
	To         string
}

// RewriteShippingLines replaces method_id on every "frenet" shipping line of body
// that carries a FRENET_ID meta entry. Only the first matching entry of a line is
// used. When nothing is rewritten the input slice is returned as is.
func RewriteShippingLines(body []byte) ([]byte, []Substitution) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return body, nil
	}

	rawLines, ok := top["shipping_lines"]
	if !ok {
		return body, nil
	}

	var lines []json.RawMessage
	if err := json.Unmarshal(rawLines, &lines); err != nil || lines == nil {
		return body, nil
	}

	var subs []Substitution
	for i, raw := range lines {
		patched, sub, ok := rewriteLine(raw)
		if !ok {
			continue
		}
		sub.Line = i
		lines[i] = patched
		subs = append(subs, sub)
	}

	if len(subs) == 0 {
		return body, nil
	}

	encodedLines, err := encode(lines)
	if err != nil {
		return body, nil
	}

	out, err := replaceMember(body, "shipping_lines", encodedLines)
	if err != nil {
		return body, nil
	}
	return out, subs
}

// rewriteLine returns the patched line when raw is a frenet line with a usable
// FRENET_ID entry.
func rewriteLine(raw json.RawMessage) (json.RawMessage, Substitution, bool) {
	var line domain.ShippingLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return nil, Substitution{}, false
	}
	if !line.HasMethod(MethodID) {
		return nil, Substitution{}, false
	}

	id, ok := frenetID(line.MetaData)
	if !ok {
		return nil, Substitution{}, false
	}

	encodedID, err := encode(id)
	if err != nil {
		return nil, Substitution{}, false
	}

	patched, err := replaceMember(raw, "method_id", encodedID)
	if err != nil {
		return nil, Substitution{}, false
	}

	return patched, Substitution{
		InstanceID: line.InstanceID,
		From:       MethodID,
		To:         id,
	}, true
}

// frenetID returns the value of the first FRENET_ID entry that has one. Entries
// with a null or missing value are passed over; a value that is not a string
// ends the scan without a match.
func frenetID(entries []json.RawMessage) (string, bool) {
	for _, raw := range entries {
		var entry domain.MetaEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if !entry.HasKey(MetaKey) || !entry.ValuePresent() {
			continue
		}
		return entry.StringValue()
	}
	return "", false
}

// replaceMember re-encodes the JSON object obj with every member named key set
// to val. Members keep their original order and raw values.
func replaceMember(obj []byte, key string, val json.RawMessage) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(obj))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("not a JSON object")
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for first := true; dec.More(); first = false {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var member json.RawMessage
		if err := dec.Decode(&member); err != nil {
			return nil, err
		}
		if name == key {
			member = val
		}

		encodedName, err := encode(name)
		if err != nil {
			return nil, err
		}
		if !first {
			buf.WriteByte(',')
		}
		buf.Write(encodedName)
		buf.WriteByte(':')
		if err := json.Compact(&buf, member); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// OrderID extracts the top-level numeric "id" of an order body.
func OrderID(body []byte) (int64, bool) {
	var order struct {
		ID json.Number `json:"id"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&order); err != nil || order.ID == "" {
		return 0, false
	}
	id, err := order.ID.Int64()
	if err != nil {
		return 0, false
	}
	return id, true
}

// encode marshals v without HTML escaping so untouched string values keep their bytes.
func encode(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
