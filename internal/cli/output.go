// Value parsing and printing shared by kvsync commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cast"

	"github.com/mesh-intelligence/kvsync/pkg/types"
)

// Value types accepted by --type.
const (
	typeAuto   = "auto"
	typeString = "string"
	typeBool   = "bool"
	typeInt    = "int"
	typeFloat  = "float"
	typeJSON   = "json"
)

// parseValue converts a command-line argument to a store value. In auto mode
// anything that parses as JSON is taken as JSON, everything else as a string.
func parseValue(raw, typ string) (any, error) {
	switch typ {
	case typeAuto, "":
		if v, err := types.DecodeJSON([]byte(raw)); err == nil {
			return v, nil
		}
		return raw, nil
	case typeString:
		return raw, nil
	case typeBool:
		return wrapParse(cast.ToBoolE(raw))
	case typeInt:
		return wrapParse(cast.ToInt64E(raw))
	case typeFloat:
		return wrapParse(cast.ToFloat64E(raw))
	case typeJSON:
		return wrapParse(types.DecodeJSON([]byte(raw)))
	default:
		return nil, fmt.Errorf("%w: unknown value type %q", errUsage, typ)
	}
}

func wrapParse(v any, err error) (any, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidValue, err)
	}
	return v, nil
}

// entry is the --json form of one key and its value.
type entry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// printValue writes key's value. Plain mode prints strings bare and other
// values as JSON; --json mode prints an entry object.
func printValue(w io.Writer, key string, v any) error {
	if flags.jsonMode {
		return writeJSON(w, entry{Key: key, Value: v})
	}
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	return writeJSON(w, v)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
