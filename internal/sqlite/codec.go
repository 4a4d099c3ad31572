// This file implements the value codec between canonical store values and
// the (kind, value) columns of the kv table.
package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/kvsync/pkg/types"
)

// Value kinds stored in kv.kind.
const (
	kindString = "string"
	kindBool   = "bool"
	kindInt    = "int"
	kindFloat  = "float"
	kindData   = "data"
	kindArray  = "array"
	kindDict   = "dict"
)

// encodeValue normalizes v and returns its kind and JSON text.
// Byte slices are stored as base64 JSON strings.
func encodeValue(v any) (kind string, text string, err error) {
	n, err := types.NormalizeValue(v)
	if err != nil {
		return "", "", err
	}

	switch n.(type) {
	case string:
		kind = kindString
	case bool:
		kind = kindBool
	case int64:
		kind = kindInt
	case float64:
		kind = kindFloat
	case []byte:
		kind = kindData
	case []any:
		kind = kindArray
	case map[string]any:
		kind = kindDict
	default:
		return "", "", fmt.Errorf("%w: %T", types.ErrInvalidValue, n)
	}

	b, err := json.Marshal(n)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", types.ErrInvalidValue, err)
	}
	return kind, string(b), nil
}

// decodeValue reverses encodeValue. Numbers nested in arrays and dicts come
// back as int64 when they are whole and fit, float64 otherwise; byte slices
// nested in them come back as base64 strings.
func decodeValue(kind, text string) (any, error) {
	data := []byte(text)
	switch kind {
	case kindString:
		var s string
		err := json.Unmarshal(data, &s)
		return s, err
	case kindBool:
		var b bool
		err := json.Unmarshal(data, &b)
		return b, err
	case kindInt:
		var n int64
		err := json.Unmarshal(data, &n)
		return n, err
	case kindFloat:
		var f float64
		err := json.Unmarshal(data, &f)
		return f, err
	case kindData:
		var b []byte
		err := json.Unmarshal(data, &b)
		return b, err
	case kindArray, kindDict:
		return types.DecodeJSON(data)
	default:
		return nil, fmt.Errorf("unknown value kind %q", kind)
	}
}
