package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/fastly-mcp/pkg/domain"
)

func decodeAPICall(tool string, args map[string]any, raw json.RawMessage) (domain.APICallRequest, error) {
	var req domain.APICallRequest
	if !truthy(args["path"]) || !truthy(args["method"]) {
		return req, &domain.ValidationError{Tool: tool, Reason: "path and method are required"}
	}
	if err := decode(args, &req); err != nil {
		return req, &domain.ValidationError{Tool: tool, Reason: err.Error(), Err: err}
	}
	if len(req.Params) > 0 && len(raw) > 0 {
		query, err := orderedParams(raw)
		if err != nil {
			return req, &domain.ValidationError{Tool: tool, Reason: err.Error(), Err: err}
		}
		req.Query = query
	}
	return req, nil
}

func decodeCLICall(tool string, args map[string]any) (domain.CLICallRequest, error) {
	var req domain.CLICallRequest
	if !truthy(args["command"]) {
		return req, &domain.ValidationError{Tool: tool, Reason: "command is required"}
	}
	if err := decode(args, &req); err != nil {
		return req, &domain.ValidationError{Tool: tool, Reason: err.Error(), Err: err}
	}
	return req, nil
}

// decode maps the argument bag onto out. Falsy values are dropped first,
// so an empty body or working directory reads as absent.
func decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	compact := make(map[string]any, len(args))
	for k, v := range args {
		if truthy(v) {
			compact[k] = v
		}
	}
	return dec.Decode(compact)
}

// orderedParams reads the "params" object of the raw arguments in wire order.
// A repeated key keeps its first position and its last value.
func orderedParams(raw json.RawMessage) ([]domain.Param, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("arguments: %w", err)
	}
	obj, ok := top["params"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(obj), []byte("{")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(obj))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}

	var out []domain.Param
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("params: %w", err)
		}
		key, _ := tok.(string)

		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, fmt.Errorf("params.%s: %w", key, err)
		}
		if i, seen := index[key]; seen {
			out[i].Value = val
			continue
		}
		index[key] = len(out)
		out = append(out, domain.Param{Key: key, Value: val})
	}
	return out, nil
}

// truthy reports whether v counts as supplied: nil, "", false and numeric zero do not.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}
