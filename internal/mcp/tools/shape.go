package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/MrWong99/yhfinance/internal/page"
)

// shape reduces a raw response according to e.Shape. cursor is nil unless
// the caller asked for an explicit page.
func shape(e Endpoint, raw []byte, cursor *int) ([]byte, error) {
	doc := gjson.ParseBytes(raw)
	if isEmpty(doc) {
		return nil, ErrEmptyResult
	}

	switch e.Shape {
	case ShapeWhole:
		return raw, nil

	case ShapeList, ShapeListOrWhole:
		v := doc.Get(e.ResultKey)
		if isEmpty(v) {
			return nil, ErrEmptyResult
		}
		if !v.IsArray() {
			if e.Shape == ShapeListOrWhole {
				return []byte(v.Raw), nil
			}
			return nil, fmt.Errorf("%w: %q is %s, not an array", ErrEmptyResult, e.ResultKey, v.Type)
		}
		items := rawItems(v)
		if cursor != nil {
			return encode(page.Paginate(items, *cursor))
		}
		return encode(page.Head(items, page.Size))

	case ShapeListInPlace:
		v := doc.Get(e.ResultKey)
		if isEmpty(v) {
			return nil, ErrEmptyResult
		}
		if !v.IsArray() {
			return raw, nil
		}
		head, err := encode(page.Head(rawItems(v), page.Size))
		if err != nil {
			return nil, err
		}
		return sjson.SetRawBytes(raw, e.ResultKey, head)
	}
	return nil, fmt.Errorf("tools: unknown shape %s", e.Shape)
}

func rawItems(v gjson.Result) []json.RawMessage {
	arr := v.Array()
	items := make([]json.RawMessage, len(arr))
	for i, it := range arr {
		items[i] = json.RawMessage(it.Raw)
	}
	return items
}

// isEmpty mirrors JSON truthiness: null, false, 0, "", {} and [] are empty,
// as is a missing value.
func isEmpty(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return true
	case gjson.False:
		return true
	case gjson.Number:
		return v.Num == 0
	case gjson.String:
		return v.Str == ""
	case gjson.JSON:
		if v.IsArray() {
			return len(v.Array()) == 0
		}
		empty := true
		v.ForEach(func(_, _ gjson.Result) bool {
			empty = false
			return false
		})
		return empty
	}
	return false
}

// encode marshals v compactly without HTML escaping.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// pretty re-indents JSON with four spaces, preserving key order.
func pretty(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "    "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
